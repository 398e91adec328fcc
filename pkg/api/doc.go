// Package api provides the HTTP REST surface of the Helios platform.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups, each
// registering its own routes under /api:
//
//   - Authentication: register, join an organization, login, token refresh, logout, profile, email verification
//   - Validation: availability checks used by the registration form
//   - Organizations: organization details and membership management, scoped by {orgSlug}
//   - Realtime: system notifications and buffered live project metrics
//
// The websocket endpoint /ws and the Prometheus endpoint /metrics are mounted
// at the root.
//
// # Request pipeline
//
// Every request passes request ID assignment, structured access logging, panic
// recovery, CORS and a body size limit. Protected routes then run
// middleware.Authenticator, and organization routes additionally resolve the
// caller's membership with middleware.OrgContext before permission guards.
//
// # Usage
//
//	server := api.NewServer(ctx, api.Config{CORSOrigins: origins}, api.Deps{
//		Auth:          authService,
//		Authenticator: authenticator,
//		Users:         userStore,
//		Orgs:          orgService,
//		Realtime:      realtimeService,
//		Logger:        logger,
//	})
//	http.ListenAndServe(":3001", server)
//
// # Error Handling
//
// Errors use the body shape of httputil.APIError:
//
//	{"error": "Invalid credentials", "message": "Email or password is incorrect"}
//
// Internal failures are logged and never expose their cause.
package api
