package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/httputil"
)

// PermissionDenied is the 403 body of RequirePermission
type PermissionDenied struct {
	httputil.APIError
	Required        []string `json:"required"`
	UserPermissions []string `json:"userPermissions"`
}

// RoleDenied is the 403 body of RequireRole
type RoleDenied struct {
	httputil.APIError
	Required []auth.UserRole `json:"required"`
	UserRole auth.UserRole   `json:"userRole"`
}

func writeUnauthenticated(w http.ResponseWriter) {
	httputil.WriteAPIError(w, http.StatusUnauthorized, httputil.APIError{
		Error:   "Authentication required",
		Message: "Please authenticate to access this resource",
	})
}

// RequirePermission allows the request if the caller holds any of perms
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil || authCtx.User == nil {
				writeUnauthenticated(w)
				return
			}

			if !authCtx.HasPermission(perms...) {
				httputil.WriteJSON(w, http.StatusForbidden, PermissionDenied{
					APIError: httputil.APIError{
						Error:   "Insufficient permissions",
						Message: fmt.Sprintf("Requires one of the following permissions: %s", strings.Join(perms, ", ")),
					},
					Required:        perms,
					UserPermissions: authCtx.Permissions.Slice(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows the request if the caller's global role is one of roles
func RequireRole(roles ...auth.UserRole) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil || authCtx.User == nil {
				writeUnauthenticated(w)
				return
			}

			if !authCtx.HasRole(roles...) {
				httputil.WriteJSON(w, http.StatusForbidden, RoleDenied{
					APIError: httputil.APIError{
						Error:   "Insufficient role",
						Message: fmt.Sprintf("Requires one of the following roles: %s", strings.Join(names, ", ")),
					},
					Required: roles,
					UserRole: authCtx.User.Role,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
