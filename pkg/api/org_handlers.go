package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/middleware"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/orgs"
)

// OrgHandlers handles organization-related HTTP requests
type OrgHandlers struct {
	orgService orgs.Service
	logger     *observability.Logger
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(orgService orgs.Service, logger *observability.Logger) *OrgHandlers {
	return &OrgHandlers{
		orgService: orgService,
		logger:     logger.WithField("component", "org_handlers"),
	}
}

// RegisterRoutes registers organization routes. Every route resolves the
// caller's membership in {orgSlug} first.
func (h *OrgHandlers) RegisterRoutes(router *mux.Router, authn *middleware.Authenticator) {
	scoped := func(handler http.HandlerFunc, guards ...func(http.Handler) http.Handler) http.Handler {
		chain := append([]func(http.Handler) http.Handler{authn.Authenticate, middleware.OrgContext}, guards...)
		return httputil.Chain(chain...)(handler)
	}
	viewMembers := middleware.RequirePermission(auth.PermOrgMembers, auth.PermOrgView)
	manageMembers := middleware.RequirePermission(auth.PermOrgMembers)

	router.Handle("/organizations/{orgSlug}", scoped(h.GetOrganization)).Methods("GET")
	router.Handle("/organizations/{orgSlug}/members", scoped(h.ListMembers, viewMembers)).Methods("GET")
	router.Handle("/organizations/{orgSlug}/members", scoped(h.AddMember, manageMembers)).Methods("POST")
	router.Handle("/organizations/{orgSlug}/members/{userId}", scoped(h.UpdateMember, manageMembers)).Methods("PUT")
	router.Handle("/organizations/{orgSlug}/members/{userId}", scoped(h.RemoveMember, manageMembers)).Methods("DELETE")
}

// GetOrganization returns the organization in the request context
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgCtx := middleware.GetOrgContext(r)

	org, err := h.orgService.GetOrganizationBySlug(r.Context(), orgCtx.Slug)
	if errors.Is(err, orgs.ErrNotFound) {
		httputil.WriteNotFound(w, "Organization not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("org", orgCtx.Slug).Error("failed to load organization")
		httputil.WriteInternalError(w, "Failed to load organization")
		return
	}

	httputil.WriteSuccess(w, map[string]any{
		"organization": org,
		"role":         orgCtx.Role,
	})
}

// ListMembers lists the organization's members
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgCtx := middleware.GetOrgContext(r)

	members, err := h.orgService.ListMembers(r.Context(), orgCtx.OrganizationID)
	if err != nil {
		h.logger.WithError(err).WithField("org", orgCtx.Slug).Error("failed to list members")
		httputil.WriteInternalError(w, "Failed to list members")
		return
	}
	if members == nil {
		members = []*orgs.Member{}
	}

	httputil.WriteSuccess(w, map[string]any{"members": members})
}

type memberRequest struct {
	UserID string                `json:"userId"`
	Role   auth.OrganizationRole `json:"role"`
}

// AddMember adds a user to the organization
func (h *OrgHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	orgCtx := middleware.GetOrgContext(r)

	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	var errs fieldErrors
	if req.UserID == "" {
		errs.add("userId", "User ID is required")
	}
	if !req.Role.Valid() {
		errs.add("role", "Invalid organization role")
	}
	if len(errs) > 0 {
		httputil.WriteValidationError(w, errs)
		return
	}

	err := h.orgService.AddMember(r.Context(), orgCtx.OrganizationID, req.UserID, req.Role)
	if errors.Is(err, orgs.ErrMemberExists) {
		httputil.WriteErrorMessage(w, http.StatusConflict, "Member already exists")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("org", orgCtx.Slug).Error("failed to add member")
		httputil.WriteInternalError(w, "Failed to add member")
		return
	}

	httputil.WriteCreated(w, map[string]any{"userId": req.UserID, "role": req.Role})
}

// UpdateMember changes a member's organization role
func (h *OrgHandlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	orgCtx := middleware.GetOrgContext(r)
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		httputil.WriteValidationError(w, fieldErrors{{Field: "role", Message: "Invalid organization role"}})
		return
	}

	err := h.orgService.UpdateMemberRole(r.Context(), orgCtx.OrganizationID, userID, req.Role)
	if errors.Is(err, orgs.ErrMemberNotFound) {
		httputil.WriteNotFound(w, "Member not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("org", orgCtx.Slug).Error("failed to update member")
		httputil.WriteInternalError(w, "Failed to update member")
		return
	}

	httputil.WriteSuccess(w, map[string]any{"userId": userID, "role": req.Role})
}

// RemoveMember deactivates a membership
func (h *OrgHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgCtx := middleware.GetOrgContext(r)
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	err := h.orgService.RemoveMember(r.Context(), orgCtx.OrganizationID, userID)
	if errors.Is(err, orgs.ErrMemberNotFound) {
		httputil.WriteNotFound(w, "Member not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("org", orgCtx.Slug).Error("failed to remove member")
		httputil.WriteInternalError(w, "Failed to remove member")
		return
	}

	httputil.WriteNoContent(w)
}
