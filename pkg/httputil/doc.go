// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//
// Every error uses the same body shape:
//
//	{"error": "Authentication failed", "message": "Invalid or expired token", "code": "INVALID_TOKEN"}
//
//	httputil.WriteAPIError(w, http.StatusUnauthorized, httputil.APIError{...})
//	httputil.WriteValidationError(w, fieldErrors)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// LoggingMiddleware's writer supports http.Hijacker so websocket upgrades
// work behind it.
//
// # Related Packages
//
//   - pkg/middleware: Authentication and authorization middleware
package httputil
