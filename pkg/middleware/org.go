package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/contextkeys"
	"github.com/platinummonkey/helios/pkg/httputil"
)

const (
	// OrgSlugVar is the route variable holding the organization slug
	OrgSlugVar = "orgSlug"
	// OrgSlugHeader carries the organization slug when the route has none
	OrgSlugHeader = "X-Organization-Slug"
)

// OrgContext resolves the caller's active membership in the organization
// named by the route or header. It must run after Authenticate.
func OrgContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)[OrgSlugVar]
		if slug == "" {
			slug = r.Header.Get(OrgSlugHeader)
		}
		if slug == "" {
			httputil.WriteAPIError(w, http.StatusBadRequest, httputil.APIError{
				Error:   "Organization context required",
				Message: "Organization slug must be provided in URL params or X-Organization-Slug header",
			})
			return
		}

		authCtx := GetAuthContext(r)
		if authCtx == nil || authCtx.User == nil {
			httputil.WriteAPIError(w, http.StatusUnauthorized, httputil.APIError{
				Error:   "Authentication required",
				Message: "Please authenticate to access organization resources",
			})
			return
		}

		membership, ok := authCtx.ActiveMembership(slug)
		if !ok {
			httputil.WriteAPIError(w, http.StatusForbidden, httputil.APIError{
				Error:   "Organization access denied",
				Message: "You are not a member of this organization or your membership is inactive",
			})
			return
		}

		orgCtx := &auth.OrganizationContext{
			OrganizationID: membership.OrganizationID,
			Slug:           membership.OrganizationSlug,
			Role:           membership.Role,
		}
		authCtx.Organization = orgCtx

		next.ServeHTTP(w, r.WithContext(contextkeys.WithOrg(r.Context(), orgCtx)))
	})
}

// GetOrgContext extracts the resolved organization context from request
func GetOrgContext(r *http.Request) *auth.OrganizationContext {
	orgCtx, ok := r.Context().Value(contextkeys.OrgKey).(*auth.OrganizationContext)
	if !ok {
		return nil
	}
	return orgCtx
}
