package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/middleware"
)

// IdentityResolver turns a bearer token into an identity;
// *middleware.Authenticator satisfies it
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (*auth.AuthContext, error)
}

// ServeWS upgrades the request and serves the connection until it closes.
// A token in the "token" query parameter or Authorization header must be
// valid; connections without one are anonymous.
func (s *Service) ServeWS(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = middleware.ExtractBearerToken(r.Header.Get("Authorization"))
		}

		var authCtx *auth.AuthContext
		if token != "" && s.identities != nil {
			resolved, err := s.identities.ResolveToken(r.Context(), token)
			if err != nil {
				var failure *middleware.Failure
				if errors.As(err, &failure) {
					httputil.WriteAPIError(w, failure.Status, failure.Body)
					return
				}
				httputil.WriteInternalError(w, "Authentication error")
				return
			}
			authCtx = resolved
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := NewClient(conn, authCtx, s.cfg.SendQueueSize)
		s.hub.Register(client)

		go client.writePump(s.logger)
		go client.taskPump(ctx, s.logger, s.cfg.HandlerTimeout, s.HandleEvent)
		go client.readPump(ctx, s.hub, s.logger, s.dispatch)
	})
}

func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}
