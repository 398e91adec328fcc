package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/middleware"
	"github.com/platinummonkey/helios/pkg/realtime"
)

// RealtimeHandlers exposes broadcast state over REST
type RealtimeHandlers struct {
	service *realtime.Service
}

// NewRealtimeHandlers creates a new RealtimeHandlers
func NewRealtimeHandlers(service *realtime.Service) *RealtimeHandlers {
	return &RealtimeHandlers{service: service}
}

// RegisterRoutes registers notification and live metrics routes
func (h *RealtimeHandlers) RegisterRoutes(router *mux.Router, authn *middleware.Authenticator) {
	admin := httputil.Chain(authn.Authenticate, middleware.RequireRole(auth.RoleSuperAdmin, auth.RoleAdmin))
	reader := httputil.Chain(authn.Authenticate, middleware.RequirePermission(auth.PermProjectsRead))

	router.Handle("/notifications", admin(http.HandlerFunc(h.sendNotification))).Methods("POST")
	router.Handle("/notifications", admin(http.HandlerFunc(h.listNotifications))).Methods("GET")
	router.Handle("/projects/{projectId}/metrics/recent", reader(http.HandlerFunc(h.recentMetrics))).Methods("GET")
}

type notificationRequest struct {
	Message string                    `json:"message"`
	Type    realtime.NotificationType `json:"type"`
}

// sendNotification broadcasts a system notification to every connected client
func (h *RealtimeHandlers) sendNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Message = sanitizeText(req.Message)

	var errs fieldErrors
	errs.length("message", req.Message, "Message", 1, 500)
	if req.Type != "" && !req.Type.Valid() {
		errs.add("type", "Type must be one of info, warning, error")
	}
	if len(errs) > 0 {
		httputil.WriteValidationError(w, errs)
		return
	}

	notification, err := h.service.SendSystemNotification(req.Message, req.Type)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, notification)
}

// listNotifications returns the most recent notifications, oldest first
func (h *RealtimeHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]any{"notifications": h.service.RecentNotifications()})
}

// recentMetrics returns the buffered live metrics of one project
func (h *RealtimeHandlers) recentMetrics(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathStringOrError(w, r, "projectId")
	if !ok {
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"projectId": projectID,
		"metrics":   h.service.RecentMetrics(projectID),
	})
}
