package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/helios/pkg/async"
	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/middleware"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/orgs"
	"github.com/platinummonkey/helios/pkg/users"
)

// EmailVerificationTTL is how long a registration verification token stays valid
const EmailVerificationTTL = 24 * time.Hour

const lastLoginTimeout = 5 * time.Second

// UserStore is the account persistence used by the auth handlers
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
	LoadIdentity(ctx context.Context, id string) (*auth.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	EmailAvailable(ctx context.Context, email string) (bool, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user *auth.User) error
	CreateWithOrganization(ctx context.Context, user *auth.User, org *orgs.Organization) error
	CreateWithMembership(ctx context.Context, user *auth.User, orgSlug string) (*orgs.Organization, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	VerifyEmail(ctx context.Context, token string, now time.Time) (string, error)
	SaveRefreshToken(ctx context.Context, token *auth.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, userID, tokenHash string, at time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error)
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	auth    *auth.Service
	users   UserStore
	audit   *auth.AuditLogger
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewAuthHandlers creates a new auth handlers instance; metrics may be nil
func NewAuthHandlers(svc *auth.Service, store UserStore, metrics *observability.Metrics, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		auth:    svc,
		users:   store,
		audit:   auth.NewAuditLogger(logger),
		metrics: metrics,
		logger:  logger.WithField("component", "auth_handlers"),
		now:     time.Now,
	}
}

// RegisterRoutes registers authentication routes. Credential endpoints are
// wrapped with throttle; session endpoints require authn.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, authn *middleware.Authenticator, throttle func(http.Handler) http.Handler) {
	router.Handle("/auth/register", throttle(http.HandlerFunc(h.register))).Methods("POST")
	router.Handle("/auth/register/join/{orgSlug}", throttle(http.HandlerFunc(h.joinOrganization))).Methods("POST")
	router.Handle("/auth/login", throttle(http.HandlerFunc(h.login))).Methods("POST")
	router.Handle("/auth/refresh", throttle(http.HandlerFunc(h.refresh))).Methods("POST")
	router.HandleFunc("/auth/verify-email", h.verifyEmail).Methods("POST")

	router.Handle("/auth/logout", authn.Authenticate(http.HandlerFunc(h.logout))).Methods("POST")
	router.Handle("/auth/me", authn.Authenticate(http.HandlerFunc(h.me))).Methods("GET")
}

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Username         string `json:"username"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	OrganizationName string `json:"organizationName"`
	OrganizationSlug string `json:"organizationSlug"`
}

func (req *registerRequest) normalize() {
	req.Email = users.NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = sanitizeText(req.FirstName)
	req.LastName = sanitizeText(req.LastName)
	req.OrganizationName = sanitizeText(req.OrganizationName)
	req.OrganizationSlug = strings.TrimSpace(req.OrganizationSlug)
}

func (req *registerRequest) validate() fieldErrors {
	var errs fieldErrors
	errs.email("email", req.Email)
	errs.length("password", req.Password, "Password", 8, 0)
	errs.length("username", req.Username, "Username", 3, 30)
	errs.length("firstName", req.FirstName, "First name", 1, 50)
	errs.length("lastName", req.LastName, "Last name", 1, 50)
	if req.OrganizationSlug != "" {
		if err := orgs.ValidateSlug(req.OrganizationSlug); err != nil {
			errs.add("organizationSlug", err.Error())
		}
	}
	return errs
}

type registeredUser struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Username       string        `json:"username"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	Role           auth.UserRole `json:"role"`
	EmailVerified  bool          `json:"emailVerified"`
	OrganizationID string        `json:"organizationId,omitempty"`
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.normalize()

	if errs := req.validate(); len(errs) > 0 {
		httputil.WriteValidationError(w, errs)
		return
	}

	if strength := h.auth.ValidatePasswordStrength(req.Password); !strength.Valid {
		httputil.WriteAPIError(w, http.StatusBadRequest, httputil.APIError{
			Error:   "Weak password",
			Message: "Password does not meet security requirements",
			Details: strength.Errors,
		})
		return
	}

	ctx := r.Context()
	emailTaken, usernameTaken, err := h.users.ExistsByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		h.registrationFailed(w, r, err)
		return
	}
	if emailTaken || usernameTaken {
		message := "Username is already taken"
		if emailTaken {
			message = "An account with this email already exists"
		}
		writeUserExists(w, message)
		return
	}

	user, err := h.newAccount(req)
	if err != nil {
		h.registrationFailed(w, r, err)
		return
	}

	var organizationID string
	if req.OrganizationName != "" && req.OrganizationSlug != "" {
		org := &orgs.Organization{
			Name:        req.OrganizationName,
			Slug:        req.OrganizationSlug,
			Description: req.OrganizationName + " - Created during user registration",
		}
		err = h.users.CreateWithOrganization(ctx, user, org)
		if errors.Is(err, orgs.ErrSlugTaken) {
			httputil.WriteAPIError(w, http.StatusConflict, httputil.APIError{
				Error:   "Organization slug taken",
				Message: "This organization slug is already in use",
			})
			return
		}
		organizationID = org.ID
	} else {
		err = h.users.Create(ctx, user)
	}
	if err != nil {
		h.registrationFailed(w, r, err)
		return
	}

	h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionRegister, UserID: user.ID, Email: user.Email, Success: true})

	httputil.WriteCreated(w, map[string]any{
		"message": "Account created successfully",
		"user": registeredUser{
			ID:             user.ID,
			Email:          user.Email,
			Username:       user.Username,
			FirstName:      user.FirstName,
			LastName:       user.LastName,
			Role:           user.Role,
			EmailVerified:  user.EmailVerified,
			OrganizationID: organizationID,
		},
		"nextStep": "Please check your email and verify your account before signing in",
	})
}

// joinOrganization handles POST /api/auth/register/join/{orgSlug}. The new
// account becomes a MEMBER of the existing organization.
func (h *AuthHandlers) joinOrganization(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.normalize()
	req.OrganizationName, req.OrganizationSlug = "", ""

	if errs := req.validate(); len(errs) > 0 {
		httputil.WriteValidationError(w, errs)
		return
	}

	if strength := h.auth.ValidatePasswordStrength(req.Password); !strength.Valid {
		httputil.WriteAPIError(w, http.StatusBadRequest, httputil.APIError{
			Error:   "Weak password",
			Message: "Password does not meet security requirements",
			Details: strength.Errors,
		})
		return
	}

	ctx := r.Context()
	emailTaken, usernameTaken, err := h.users.ExistsByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		h.registrationFailed(w, r, err)
		return
	}
	if emailTaken || usernameTaken {
		message := "Username is already taken"
		if emailTaken {
			message = "An account with this email already exists"
		}
		writeUserExists(w, message)
		return
	}

	user, err := h.newAccount(req)
	if err != nil {
		h.registrationFailed(w, r, err)
		return
	}

	org, err := h.users.CreateWithMembership(ctx, user, strings.TrimSpace(mux.Vars(r)["orgSlug"]))
	switch {
	case errors.Is(err, orgs.ErrNotFound):
		httputil.WriteAPIError(w, http.StatusNotFound, httputil.APIError{
			Error:   "Organization not found",
			Message: "No active organization uses this slug",
		})
		return
	case errors.Is(err, users.ErrUserExists):
		writeUserExists(w, "An account with this email or username already exists")
		return
	case err != nil:
		h.registrationFailed(w, r, err)
		return
	}

	h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionRegister, UserID: user.ID, Email: user.Email, Success: true})

	httputil.WriteCreated(w, map[string]any{
		"message": "Account created successfully",
		"user": registeredUser{
			ID:             user.ID,
			Email:          user.Email,
			Username:       user.Username,
			FirstName:      user.FirstName,
			LastName:       user.LastName,
			Role:           user.Role,
			EmailVerified:  user.EmailVerified,
			OrganizationID: org.ID,
		},
		"organization": map[string]any{
			"id":   org.ID,
			"name": org.Name,
			"slug": org.Slug,
			"role": auth.OrgRoleMember,
		},
		"nextStep": "Please check your email and verify your account before signing in",
	})
}

// newAccount builds an unverified USER account with a fresh verification token
func (h *AuthHandlers) newAccount(req registerRequest) (*auth.User, error) {
	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	verifyToken, err := h.auth.GenerateSecureToken(auth.SecureTokenLength)
	if err != nil {
		return nil, err
	}
	verifyExpiry := h.now().Add(EmailVerificationTTL)

	return &auth.User{
		Email:                      req.Email,
		Username:                   req.Username,
		FirstName:                  req.FirstName,
		LastName:                   req.LastName,
		PasswordHash:               hash,
		Role:                       auth.RoleUser,
		EmailVerificationToken:     verifyToken,
		EmailVerificationExpiresAt: &verifyExpiry,
	}, nil
}

func writeUserExists(w http.ResponseWriter, message string) {
	httputil.WriteAPIError(w, http.StatusConflict, httputil.APIError{
		Error:   "User already exists",
		Message: message,
	})
}

func (h *AuthHandlers) registrationFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).Error("registration failed")
	httputil.WriteAPIError(w, http.StatusInternalServerError, httputil.APIError{
		Error:   "Registration failed",
		Message: "An unexpected error occurred during registration",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = users.NormalizeEmail(req.Email)

	var errs fieldErrors
	errs.email("email", req.Email)
	if req.Password == "" {
		errs.add("password", "Password is required")
	}
	if len(errs) > 0 {
		httputil.WriteValidationError(w, errs)
		return
	}

	ctx := r.Context()
	if h.auth.IsAccountLocked(ctx, req.Email) {
		h.metrics.RecordLogin("locked")
		h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionLogin, Email: req.Email, Reason: "account locked"})
		httputil.WriteAPIError(w, http.StatusTooManyRequests, httputil.APIError{
			Error:   "Account locked",
			Message: "Account is temporarily locked due to multiple failed login attempts. Please try again later.",
			Code:    "ACCOUNT_LOCKED",
		})
		return
	}

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		h.loginFailed(w, err, "An unexpected error occurred during login")
		return
	}
	if user == nil || !h.auth.VerifyPassword(req.Password, user.PasswordHash) {
		remaining := h.auth.RecordFailedLogin(ctx, req.Email)
		h.metrics.RecordLogin("invalid_credentials")
		h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionLogin, Email: req.Email, Reason: "invalid credentials"})
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"error":             "Invalid credentials",
			"message":           "Email or password is incorrect",
			"remainingAttempts": remaining,
		})
		return
	}

	h.auth.ClearFailedLogins(ctx, req.Email)

	if !user.EmailVerified {
		h.metrics.RecordLogin("unverified")
		httputil.WriteAPIError(w, http.StatusUnauthorized, httputil.APIError{
			Error:   "Email not verified",
			Message: "Please verify your email address before signing in",
			Code:    middleware.CodeEmailNotVerified,
		})
		return
	}

	identity, err := h.users.LoadIdentity(ctx, user.ID)
	if err != nil {
		h.loginFailed(w, err, "Unable to retrieve user information")
		return
	}

	pair, err := h.auth.Tokens().IssueTokenPair(identity.Identity(), req.Remember)
	if err != nil {
		h.loginFailed(w, err, "An unexpected error occurred during login")
		return
	}

	now := h.now()
	record := &auth.RefreshToken{
		UserID:    identity.ID,
		TokenHash: h.auth.HashToken(pair.RefreshToken),
		UserAgent: userAgent(r),
		IPAddress: httputil.ClientIP(r),
		ExpiresAt: now.Add(time.Duration(pair.RefreshTTL) * time.Second),
	}
	if err := h.users.SaveRefreshToken(ctx, record); err != nil {
		h.loginFailed(w, err, "An unexpected error occurred during login")
		return
	}
	async.SafeGo(context.WithoutCancel(ctx), h.logger.WithField("user_id", identity.ID), lastLoginTimeout, "record last login",
		func(ctx context.Context) error {
			return h.users.UpdateLastLogin(ctx, identity.ID, now)
		})

	h.metrics.RecordLogin("success")
	h.metrics.RecordTokenIssued(string(auth.TokenTypeAccess))
	h.metrics.RecordTokenIssued(string(auth.TokenTypeRefresh))
	h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionLogin, UserID: identity.ID, Email: identity.Email, Success: true})

	httputil.WriteSuccess(w, map[string]any{
		"message": "Login successful",
		"tokens":  pair,
		"user":    profileOf(identity),
	})
}

func (h *AuthHandlers) loginFailed(w http.ResponseWriter, err error, message string) {
	h.logger.WithError(err).Error("login failed")
	h.metrics.RecordLogin("error")
	httputil.WriteAPIError(w, http.StatusInternalServerError, httputil.APIError{
		Error:   "Login failed",
		Message: message,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

var errInvalidRefresh = httputil.APIError{
	Error:   "Invalid refresh token",
	Message: "Refresh token is invalid, expired or revoked",
	Code:    "INVALID_REFRESH_TOKEN",
}

// refresh handles POST /api/auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteValidationError(w, fieldErrors{{Field: "refreshToken", Message: "Refresh token is required"}})
		return
	}

	claims, err := h.auth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		httputil.WriteAPIError(w, http.StatusUnauthorized, errInvalidRefresh)
		return
	}

	ctx := r.Context()
	record, err := h.users.GetRefreshToken(ctx, h.auth.HashToken(req.RefreshToken))
	if errors.Is(err, users.ErrTokenNotFound) {
		httputil.WriteAPIError(w, http.StatusUnauthorized, errInvalidRefresh)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("refresh token lookup failed")
		httputil.WriteInternalError(w, "Token refresh failed")
		return
	}
	if record.UserID != claims.Identity.ID || !record.Usable(h.now()) {
		httputil.WriteAPIError(w, http.StatusUnauthorized, errInvalidRefresh)
		return
	}

	identity, err := h.users.LoadIdentity(ctx, record.UserID)
	if errors.Is(err, users.ErrNotFound) || (err == nil && !identity.IsActive) {
		httputil.WriteAPIError(w, http.StatusUnauthorized, errInvalidRefresh)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load identity for refresh")
		httputil.WriteInternalError(w, "Token refresh failed")
		return
	}

	access, err := h.auth.IssueAccessToken(identity.Identity())
	if err != nil {
		h.logger.WithError(err).Error("failed to sign access token")
		httputil.WriteInternalError(w, "Token refresh failed")
		return
	}

	h.metrics.RecordTokenIssued(string(auth.TokenTypeAccess))
	h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionRefresh, UserID: identity.ID, Email: identity.Email, Success: true})

	httputil.WriteSuccess(w, map[string]any{
		"accessToken": access,
		"expiresIn":   int64(h.auth.Tokens().AccessTTL() / time.Second),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`

	// AllDevices revokes every outstanding refresh token of the user
	AllDevices bool `json:"allDevices"`
}

// logout handles POST /api/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	var req logoutRequest
	if !httputil.ParseOptionalJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	h.auth.BlacklistToken(ctx, authCtx.Token, h.auth.Tokens().RemainingValidity(authCtx.Claims))

	var err error
	switch {
	case req.AllDevices:
		var revoked int64
		revoked, err = h.users.RevokeAllRefreshTokens(ctx, authCtx.User.ID, h.now())
		h.logger.WithField("user_id", authCtx.User.ID).WithField("revoked", revoked).Debug("revoked all refresh tokens")
	case req.RefreshToken != "":
		err = h.users.RevokeRefreshToken(ctx, authCtx.User.ID, h.auth.HashToken(req.RefreshToken), h.now())
		if errors.Is(err, users.ErrTokenNotFound) {
			err = nil
		}
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to revoke refresh token")
		httputil.WriteAPIError(w, http.StatusInternalServerError, httputil.APIError{
			Error:   "Logout failed",
			Message: "An unexpected error occurred during logout",
		})
		return
	}

	h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionLogout, UserID: authCtx.User.ID, Email: authCtx.User.Email, Success: true})
	httputil.WriteSuccess(w, map[string]string{"message": "Logout successful"})
}

// me handles GET /api/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	profile := profileOf(authCtx.User)
	profile.Permissions = authCtx.Permissions.Slice()

	httputil.WriteSuccess(w, map[string]any{
		"message": "Profile retrieved successfully",
		"user":    profile,
	})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

// verifyEmail handles POST /api/auth/verify-email
func (h *AuthHandlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteValidationError(w, fieldErrors{{Field: "token", Message: "Verification token is required"}})
		return
	}

	userID, err := h.users.VerifyEmail(r.Context(), req.Token, h.now())
	if errors.Is(err, users.ErrInvalidToken) {
		h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionVerify, Reason: "invalid token"})
		httputil.WriteAPIError(w, http.StatusBadRequest, httputil.APIError{
			Error:   "Invalid verification token",
			Message: "The verification link is invalid or has expired",
			Code:    "INVALID_VERIFICATION_TOKEN",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("email verification failed")
		httputil.WriteInternalError(w, "Email verification failed")
		return
	}

	h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.AuditActionVerify, UserID: userID, Success: true})
	httputil.WriteSuccess(w, map[string]string{"message": "Email verified successfully"})
}

// userProfile is the account view returned to its owner
type userProfile struct {
	ID                      string            `json:"id"`
	Email                   string            `json:"email"`
	Username                string            `json:"username"`
	FirstName               string            `json:"firstName"`
	LastName                string            `json:"lastName"`
	Role                    auth.UserRole     `json:"role"`
	EmailVerified           bool              `json:"emailVerified"`
	OrganizationMemberships []auth.Membership `json:"organizationMemberships"`
	Permissions             []string          `json:"permissions"`
	Preferences             map[string]any    `json:"preferences,omitempty"`
	LastLoginAt             *time.Time        `json:"lastLoginAt,omitempty"`
}

func profileOf(user *auth.User) userProfile {
	memberships := user.Memberships
	if memberships == nil {
		memberships = []auth.Membership{}
	}
	return userProfile{
		ID:                      user.ID,
		Email:                   user.Email,
		Username:                user.Username,
		FirstName:               user.FirstName,
		LastName:                user.LastName,
		Role:                    user.Role,
		EmailVerified:           user.EmailVerified,
		OrganizationMemberships: memberships,
		Permissions:             auth.PermissionsFor(user.Role, user.Memberships).Slice(),
		Preferences:             user.Preferences,
		LastLoginAt:             user.LastLoginAt,
	}
}

func userAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return "Unknown"
}
