package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/orgs"
	"github.com/platinummonkey/helios/pkg/users"
)

// SlugChecker reports organization slug availability
type SlugChecker interface {
	SlugAvailable(ctx context.Context, slug string) (bool, error)
}

// ValidationHandlers answers registration form availability checks
type ValidationHandlers struct {
	users  UserStore
	slugs  SlugChecker
	logger *observability.Logger
}

// NewValidationHandlers creates a new ValidationHandlers
func NewValidationHandlers(store UserStore, slugs SlugChecker, logger *observability.Logger) *ValidationHandlers {
	return &ValidationHandlers{
		users:  store,
		slugs:  slugs,
		logger: logger.WithField("component", "validation_handlers"),
	}
}

// RegisterRoutes registers availability routes
func (h *ValidationHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/validate/org-slug/{slug}", h.orgSlug).Methods("GET")
	router.HandleFunc("/validate/username/{username}", h.username).Methods("GET")
	router.HandleFunc("/validate/email/{email}", h.email).Methods("GET")
}

type availability struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// orgSlug handles GET /api/validate/org-slug/{slug}
func (h *ValidationHandlers) orgSlug(w http.ResponseWriter, r *http.Request) {
	slug, ok := httputil.ParsePathStringOrError(w, r, "slug")
	if !ok {
		return
	}
	if err := orgs.ValidateSlug(slug); err != nil {
		httputil.WriteSuccess(w, availability{Available: false, Message: err.Error()})
		return
	}
	h.respond(r.Context(), w, "org slug", h.slugs.SlugAvailable, slug)
}

// username handles GET /api/validate/username/{username}
func (h *ValidationHandlers) username(w http.ResponseWriter, r *http.Request) {
	username, ok := httputil.ParsePathStringOrError(w, r, "username")
	if !ok {
		return
	}
	var errs fieldErrors
	errs.length("username", strings.TrimSpace(username), "Username", 3, 30)
	if len(errs) > 0 {
		httputil.WriteSuccess(w, availability{Available: false, Message: errs[0].Message})
		return
	}
	h.respond(r.Context(), w, "username", h.users.UsernameAvailable, strings.TrimSpace(username))
}

// email handles GET /api/validate/email/{email}
func (h *ValidationHandlers) email(w http.ResponseWriter, r *http.Request) {
	email, ok := httputil.ParsePathStringOrError(w, r, "email")
	if !ok {
		return
	}
	email = users.NormalizeEmail(email)
	var errs fieldErrors
	errs.email("email", email)
	if len(errs) > 0 {
		httputil.WriteSuccess(w, availability{Available: false, Message: errs[0].Message})
		return
	}
	h.respond(r.Context(), w, "email", h.users.EmailAvailable, email)
}

func (h *ValidationHandlers) respond(ctx context.Context, w http.ResponseWriter, what string, check func(context.Context, string) (bool, error), value string) {
	available, err := check(ctx, value)
	if err != nil {
		h.logger.WithError(err).WithField("check", what).Error("availability check failed")
		httputil.WriteInternalError(w, "Validation check failed")
		return
	}
	result := availability{Available: available}
	if !available {
		result.Message = strings.ToUpper(what[:1]) + what[1:] + " is already taken"
	}
	httputil.WriteSuccess(w, result)
}
