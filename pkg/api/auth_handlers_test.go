package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/helios/pkg/auth"
)

const testPassword = "correct-horse"

func registration() map[string]any {
	return map[string]any{
		"email":     "Ada@Example.com",
		"password":  testPassword,
		"username":  "ada",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	}
}

func TestRegister(t *testing.T) {
	t.Run("creates an unverified user", func(t *testing.T) {
		f := newAPIFixture(t)

		w := f.do(t, "POST", "/api/auth/register", registration(), "")
		require.Equal(t, http.StatusCreated, w.Code, statusOf(w))

		body := decode(t, w)
		assert.Equal(t, "Account created successfully", body["message"])
		assert.Contains(t, body["nextStep"], "verify your account")
		user := body["user"].(map[string]any)
		assert.Equal(t, "ada@example.com", user["email"])
		assert.Equal(t, "USER", user["role"])
		assert.Equal(t, false, user["emailVerified"])
		assert.NotContains(t, user, "organizationId")

		stored := f.store.user(user["id"].(string))
		assert.NotEqual(t, testPassword, stored.PasswordHash)
		assert.True(t, f.svc.VerifyPassword(testPassword, stored.PasswordHash))
		assert.Len(t, stored.EmailVerificationToken, auth.SecureTokenLength)
		require.NotNil(t, stored.EmailVerificationExpiresAt)
		assert.WithinDuration(t, time.Now().Add(EmailVerificationTTL), *stored.EmailVerificationExpiresAt, time.Minute)
	})

	t.Run("creates the organization with the user as owner", func(t *testing.T) {
		f := newAPIFixture(t)
		req := registration()
		req["organizationName"] = "Acme Solar"
		req["organizationSlug"] = "acme-solar"

		w := f.do(t, "POST", "/api/auth/register", req, "")
		require.Equal(t, http.StatusCreated, w.Code, statusOf(w))

		user := decode(t, w)["user"].(map[string]any)
		assert.NotEmpty(t, user["organizationId"])

		identity, err := f.store.LoadIdentity(context.Background(), user["id"].(string))
		require.NoError(t, err)
		require.Len(t, identity.Memberships, 1)
		assert.Equal(t, "acme-solar", identity.Memberships[0].OrganizationSlug)
		assert.Equal(t, auth.OrgRoleOwner, identity.Memberships[0].Role)
	})

	t.Run("strips markup from names", func(t *testing.T) {
		f := newAPIFixture(t)
		req := registration()
		req["firstName"] = "<b>Ada</b><script>alert(1)</script>"

		w := f.do(t, "POST", "/api/auth/register", req, "")
		require.Equal(t, http.StatusCreated, w.Code, statusOf(w))
		assert.Equal(t, "Ada", decode(t, w)["user"].(map[string]any)["firstName"])
	})

	t.Run("ignores a requested role", func(t *testing.T) {
		f := newAPIFixture(t)
		req := registration()
		req["role"] = "SUPER_ADMIN"

		w := f.do(t, "POST", "/api/auth/register", req, "")
		require.Equal(t, http.StatusCreated, w.Code, statusOf(w))
		assert.Equal(t, "USER", decode(t, w)["user"].(map[string]any)["role"])
	})
}

func TestRegister_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, f *apiFixture)
		mutate    func(req map[string]any)
		rawBody   string
		wantCode  int
		wantError string
		wantMsg   string
	}{
		{
			name:      "malformed json",
			rawBody:   "{",
			wantCode:  http.StatusBadRequest,
			wantError: "Invalid request body",
		},
		{
			name:      "invalid fields",
			mutate:    func(req map[string]any) { req["email"] = "not-an-email"; req["username"] = "a" },
			wantCode:  http.StatusBadRequest,
			wantError: "Validation failed",
		},
		{
			name:      "short password",
			mutate:    func(req map[string]any) { req["password"] = "short" },
			wantCode:  http.StatusBadRequest,
			wantError: "Validation failed",
		},
		{
			name:      "invalid organization slug",
			mutate:    func(req map[string]any) { req["organizationName"] = "Acme"; req["organizationSlug"] = "Acme Inc" },
			wantCode:  http.StatusBadRequest,
			wantError: "Validation failed",
		},
		{
			name: "email taken",
			setup: func(t *testing.T, f *apiFixture) {
				f.addUser(t, auth.User{Email: "ada@example.com", Username: "someone"}, testPassword)
			},
			wantCode:  http.StatusConflict,
			wantError: "User already exists",
			wantMsg:   "An account with this email already exists",
		},
		{
			name: "username taken",
			setup: func(t *testing.T, f *apiFixture) {
				f.addUser(t, auth.User{Email: "other@example.com", Username: "ada"}, testPassword)
			},
			wantCode:  http.StatusConflict,
			wantError: "User already exists",
			wantMsg:   "Username is already taken",
		},
		{
			name:      "organization slug taken",
			setup:     func(t *testing.T, f *apiFixture) { f.addOrg(t, "acme", "") },
			mutate:    func(req map[string]any) { req["organizationName"] = "Acme"; req["organizationSlug"] = "acme" },
			wantCode:  http.StatusConflict,
			wantError: "Organization slug taken",
		},
		{
			name:      "store failure",
			setup:     func(t *testing.T, f *apiFixture) { f.store.failWith(errDatabaseDown) },
			wantCode:  http.StatusInternalServerError,
			wantError: "Registration failed",
			wantMsg:   "An unexpected error occurred during registration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			var body any = tt.rawBody
			if tt.rawBody == "" {
				req := registration()
				if tt.mutate != nil {
					tt.mutate(req)
				}
				body = req
			}

			w := f.do(t, "POST", "/api/auth/register", body, "")
			require.Equal(t, tt.wantCode, w.Code, statusOf(w))
			resp := decode(t, w)
			assert.Equal(t, tt.wantError, resp["error"])
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp["message"])
			}
		})
	}
}

func TestRegister_ValidationDetails(t *testing.T) {
	f := newAPIFixture(t)
	req := registration()
	req["email"] = ""
	req["lastName"] = ""

	w := f.do(t, "POST", "/api/auth/register", req, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	details := decode(t, w)["details"].([]any)
	var fields []string
	for _, d := range details {
		fields = append(fields, d.(map[string]any)["field"].(string))
	}
	assert.Equal(t, []string{"email", "lastName"}, fields)
}

func TestRegister_WeakPassword(t *testing.T) {
	strict := auth.StrictPasswordPolicy()
	f := newAPIFixture(t, func(o *fixtureOptions) { o.policy = &strict })

	w := f.do(t, "POST", "/api/auth/register", registration(), "")
	require.Equal(t, http.StatusBadRequest, w.Code, statusOf(w))

	body := decode(t, w)
	assert.Equal(t, "Weak password", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestJoinOrganization(t *testing.T) {
	t.Run("adds the new user as a member", func(t *testing.T) {
		f := newAPIFixture(t)
		owner := f.addUser(t, auth.User{Email: "owner@example.com", Username: "owner", EmailVerified: true}, testPassword)
		org := f.addOrg(t, "acme-solar", owner.ID)

		w := f.do(t, "POST", "/api/auth/register/join/acme-solar", registration(), "")
		require.Equal(t, http.StatusCreated, w.Code, statusOf(w))

		body := decode(t, w)
		user := body["user"].(map[string]any)
		assert.Equal(t, "USER", user["role"])
		assert.Equal(t, false, user["emailVerified"])
		assert.Equal(t, org.ID, user["organizationId"])
		assert.Equal(t, "MEMBER", body["organization"].(map[string]any)["role"])

		identity, err := f.store.LoadIdentity(context.Background(), user["id"].(string))
		require.NoError(t, err)
		require.Len(t, identity.Memberships, 1)
		assert.Equal(t, "acme-solar", identity.Memberships[0].OrganizationSlug)
		assert.Equal(t, auth.OrgRoleMember, identity.Memberships[0].Role)
	})

	t.Run("unknown organization", func(t *testing.T) {
		f := newAPIFixture(t)

		w := f.do(t, "POST", "/api/auth/register/join/nobody", registration(), "")
		require.Equal(t, http.StatusNotFound, w.Code, statusOf(w))
		assert.Equal(t, "Organization not found", decode(t, w)["error"])
		assert.Nil(t, f.store.findByEmail("ada@example.com"))
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAPIFixture(t)
		f.addUser(t, auth.User{Email: "ada@example.com", Username: "someone"}, testPassword)
		f.addOrg(t, "acme-solar", "")

		w := f.do(t, "POST", "/api/auth/register/join/acme-solar", registration(), "")
		require.Equal(t, http.StatusConflict, w.Code, statusOf(w))
		assert.Equal(t, "An account with this email already exists", decode(t, w)["message"])
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newAPIFixture(t)
		f.addUser(t, auth.User{Email: "other@example.com", Username: "ada"}, testPassword)
		f.addOrg(t, "acme-solar", "")

		w := f.do(t, "POST", "/api/auth/register/join/acme-solar", registration(), "")
		require.Equal(t, http.StatusConflict, w.Code, statusOf(w))
		assert.Equal(t, "Username is already taken", decode(t, w)["message"])
	})

	t.Run("validates the account fields", func(t *testing.T) {
		f := newAPIFixture(t)
		f.addOrg(t, "acme-solar", "")
		req := registration()
		req["email"] = "not-an-email"

		w := f.do(t, "POST", "/api/auth/register/join/acme-solar", req, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, statusOf(w))
	})
}

func loginBody(email, password string) map[string]any {
	return map[string]any{"email": email, "password": password}
}

func TestLogin(t *testing.T) {
	t.Run("issues tokens and records the session", func(t *testing.T) {
		f := newAPIFixture(t)
		user := f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)
		f.addOrg(t, "acme", user.ID)
		f.mr.Set("failed_attempts:ada@example.com", "2")

		w := f.do(t, "POST", "/api/auth/login", loginBody("ADA@example.com ", testPassword), "")
		require.Equal(t, http.StatusOK, w.Code, statusOf(w))

		body := decode(t, w)
		assert.Equal(t, "Login successful", body["message"])
		tokens := body["tokens"].(map[string]any)
		assert.Equal(t, float64(900), tokens["expiresIn"])

		claims, err := f.svc.VerifyAccessToken(tokens["accessToken"].(string))
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.Identity.ID)
		require.Len(t, claims.Memberships, 1)
		assert.Equal(t, "acme", claims.Memberships[0].OrganizationSlug)

		profile := body["user"].(map[string]any)
		assert.Contains(t, profile["permissions"], auth.PermProjectsRead)
		assert.Contains(t, profile["permissions"], auth.PermOrgAdmin)

		records := f.store.refreshRecords()
		require.Len(t, records, 1)
		assert.Equal(t, f.svc.HashToken(tokens["refreshToken"].(string)), records[0].TokenHash)
		assert.Equal(t, "helios-test", records[0].UserAgent)
		assert.Equal(t, "10.0.0.7", records[0].IPAddress)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), records[0].ExpiresAt, time.Minute)

		assert.False(t, f.mr.Exists("failed_attempts:ada@example.com"))
		assert.Eventually(t, func() bool { return f.store.seen(user.ID) }, time.Second, 10*time.Millisecond)
	})

	t.Run("remember me extends the refresh session", func(t *testing.T) {
		f := newAPIFixture(t)
		f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)

		req := loginBody("ada@example.com", testPassword)
		req["remember"] = true
		w := f.do(t, "POST", "/api/auth/login", req, "")
		require.Equal(t, http.StatusOK, w.Code, statusOf(w))

		records := f.store.refreshRecords()
		require.Len(t, records, 1)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), records[0].ExpiresAt, time.Minute)
	})
}

func TestLogin_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name  string
		email string
		pass  string
	}{
		{"wrong password", "ada@example.com", "wrong-password"},
		{"unknown user", "nobody@example.com", testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)

			w := f.do(t, "POST", "/api/auth/login", loginBody(tt.email, tt.pass), "")
			require.Equal(t, http.StatusUnauthorized, w.Code, statusOf(w))

			body := decode(t, w)
			assert.Equal(t, "Invalid credentials", body["error"])
			assert.Equal(t, "Email or password is incorrect", body["message"])
			assert.Equal(t, float64(4), body["remainingAttempts"])

			count, err := f.mr.Get("failed_attempts:" + tt.email)
			require.NoError(t, err)
			assert.Equal(t, "1", count)
		})
	}
}

func TestLogin_Lockout(t *testing.T) {
	f := newAPIFixture(t)
	f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)

	for i := 4; i >= 0; i-- {
		w := f.do(t, "POST", "/api/auth/login", loginBody("ada@example.com", "wrong-password"), "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, float64(i), decode(t, w)["remainingAttempts"])
	}

	w := f.do(t, "POST", "/api/auth/login", loginBody("ada@example.com", testPassword), "")
	require.Equal(t, http.StatusTooManyRequests, w.Code, statusOf(w))
	body := decode(t, w)
	assert.Equal(t, "Account locked", body["error"])
	assert.Equal(t, "ACCOUNT_LOCKED", body["code"])

	f.mr.FastForward(31 * time.Minute)
	w = f.do(t, "POST", "/api/auth/login", loginBody("ada@example.com", testPassword), "")
	assert.Equal(t, http.StatusOK, w.Code, statusOf(w))
}

func TestLogin_Unverified(t *testing.T) {
	f := newAPIFixture(t)
	f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada"}, testPassword)
	f.mr.Set("failed_attempts:ada@example.com", "3")

	w := f.do(t, "POST", "/api/auth/login", loginBody("ada@example.com", testPassword), "")
	require.Equal(t, http.StatusUnauthorized, w.Code, statusOf(w))

	body := decode(t, w)
	assert.Equal(t, "Email not verified", body["error"])
	assert.Equal(t, "EMAIL_NOT_VERIFIED", body["code"])
	assert.False(t, f.mr.Exists("failed_attempts:ada@example.com"), "correct password clears the counter")
	assert.Empty(t, f.store.refreshRecords())
}

func TestLogin_Validation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "POST", "/api/auth/login", loginBody("ada", ""), "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", decode(t, w)["error"])
}

func TestLogin_StoreFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.store.failWith(errDatabaseDown)

	w := f.do(t, "POST", "/api/auth/login", loginBody("ada@example.com", testPassword), "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Login failed", decode(t, w)["error"])
}

// login signs in a verified user and returns the token pair
func login(t *testing.T, f *apiFixture, email string) (access, refresh string) {
	t.Helper()
	w := f.do(t, "POST", "/api/auth/login", loginBody(email, testPassword), "")
	require.Equal(t, http.StatusOK, w.Code, statusOf(w))
	tokens := decode(t, w)["tokens"].(map[string]any)
	return tokens["accessToken"].(string), tokens["refreshToken"].(string)
}

func TestRefresh(t *testing.T) {
	f := newAPIFixture(t)
	user := f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)
	access, refresh := login(t, f, "ada@example.com")

	t.Run("issues a new access token", func(t *testing.T) {
		w := f.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": refresh}, "")
		require.Equal(t, http.StatusOK, w.Code, statusOf(w))

		body := decode(t, w)
		assert.Equal(t, float64(900), body["expiresIn"])
		claims, err := f.svc.VerifyAccessToken(body["accessToken"].(string))
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.Identity.ID)
	})

	t.Run("rejects tokens it cannot honor", func(t *testing.T) {
		unpersisted, err := f.svc.IssueRefreshToken(user.Identity(), false)
		require.NoError(t, err)

		for name, token := range map[string]string{
			"access token":    access,
			"garbage":         "not-a-token",
			"never persisted": unpersisted,
		} {
			w := f.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": token}, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code, name)
			assert.Equal(t, "INVALID_REFRESH_TOKEN", decode(t, w)["code"], name)
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		w := f.do(t, "POST", "/api/auth/refresh", map[string]string{}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogout(t *testing.T) {
	f := newAPIFixture(t)
	f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)
	access, refresh := login(t, f, "ada@example.com")

	w := f.do(t, "POST", "/api/auth/logout", map[string]string{"refreshToken": refresh}, access)
	require.Equal(t, http.StatusOK, w.Code, statusOf(w))
	assert.Equal(t, "Logout successful", decode(t, w)["message"])

	assert.True(t, f.mr.Exists("blacklist:"+access))
	ttl := f.mr.TTL("blacklist:" + access)
	assert.True(t, ttl > 14*time.Minute && ttl <= 15*time.Minute, "ttl %s", ttl)

	w = f.do(t, "GET", "/api/auth/me", nil, access)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_BLACKLISTED", decode(t, w)["code"])

	w = f.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked refresh token")
}

func TestLogout_WithoutBody(t *testing.T) {
	f := newAPIFixture(t)
	f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)
	access, _ := login(t, f, "ada@example.com")

	w := f.do(t, "POST", "/api/auth/logout", nil, access)
	require.Equal(t, http.StatusOK, w.Code, statusOf(w))
	assert.True(t, f.mr.Exists("blacklist:"+access))
}

func TestLogout_AllDevices(t *testing.T) {
	f := newAPIFixture(t)
	f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", EmailVerified: true}, testPassword)
	access, laptop := login(t, f, "ada@example.com")
	_, phone := login(t, f, "ada@example.com")

	w := f.do(t, "POST", "/api/auth/logout", map[string]any{"allDevices": true}, access)
	require.Equal(t, http.StatusOK, w.Code, statusOf(w))

	for _, rt := range f.store.refreshRecords() {
		assert.NotNil(t, rt.RevokedAt)
	}
	for name, refresh := range map[string]string{"laptop": laptop, "phone": phone} {
		w = f.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": refresh}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func TestLogout_RequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "POST", "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NO_TOKEN", decode(t, w)["code"])
}

func TestMe(t *testing.T) {
	f := newAPIFixture(t)
	user := f.addUser(t, auth.User{Email: "ada@example.com", Username: "ada", FirstName: "Ada", EmailVerified: true}, testPassword)
	f.addOrg(t, "acme", user.ID)

	w := f.do(t, "GET", "/api/auth/me", nil, f.tokenFor(t, user.ID))
	require.Equal(t, http.StatusOK, w.Code, statusOf(w))

	profile := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "Ada", profile["firstName"])
	memberships := profile["organizationMemberships"].([]any)
	require.Len(t, memberships, 1)
	assert.Equal(t, "OWNER", memberships[0].(map[string]any)["role"])
	assert.Contains(t, profile["permissions"], auth.PermOrgMembers)
	assert.NotContains(t, profile, "passwordHash")
}

func TestVerifyEmail(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, "POST", "/api/auth/register", registration(), "")
	require.Equal(t, http.StatusCreated, w.Code, statusOf(w))
	userID := decode(t, w)["user"].(map[string]any)["id"].(string)
	token := f.store.user(userID).EmailVerificationToken

	w = f.do(t, "POST", "/api/auth/verify-email", map[string]string{"token": "wrong"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_VERIFICATION_TOKEN", decode(t, w)["code"])

	w = f.do(t, "POST", "/api/auth/verify-email", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", decode(t, w)["error"])

	w = f.do(t, "POST", "/api/auth/verify-email", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, w.Code, statusOf(w))
	assert.True(t, f.store.user(userID).EmailVerified)

	login(t, f, "ada@example.com")

	w = f.do(t, "POST", "/api/auth/verify-email", map[string]string{"token": token}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "tokens are single use")
}
