package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/policy"
)

// PolicyMiddleware asks the policy engine whether the caller's role may
// perform an action on a resource.
type PolicyMiddleware struct {
	engine policy.Engine
	logger *zap.Logger
}

func NewPolicyMiddleware(engine policy.Engine, logger *zap.Logger) *PolicyMiddleware {
	return &PolicyMiddleware{engine: engine, logger: logger}
}

// Require returns middleware guarding one route. It must run after auth.
func (pm *PolicyMiddleware) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := auth.UserFromContext(r.Context())
			if !ok {
				sendUnauthorized(w)
				return
			}

			d, err := pm.engine.Evaluate(r.Context(), &policy.Input{
				Role:      u.Role,
				Action:    action,
				Resource:  resource,
				UserID:    u.UserID,
				CompanyID: u.CompanyID,
			})
			if err != nil && (d == nil || !d.Allow) {
				pm.logger.Error("Policy evaluation failed",
					zap.Error(err),
					zap.String("resource", resource),
					zap.String("action", action),
				)
				writeError(w, http.StatusForbidden, "This action is unauthorized.")
				return
			}
			if !d.Allow {
				pm.logger.Info("Request denied by policy",
					zap.Int64("user_id", u.UserID),
					zap.String("role", u.Role),
					zap.String("resource", resource),
					zap.String("action", action),
					zap.String("reason", d.Reason),
				)
				writeError(w, http.StatusForbidden, d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
