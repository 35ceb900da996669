package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// AuthService is the part of auth.Service the account endpoints use.
type AuthService interface {
	Register(ctx context.Context, req *auth.RegisterRequest) (*auth.User, *auth.TokenPair, error)
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.User, *auth.TokenPair, error)
	Logout(ctx context.Context, userID int64) error
	GetUser(ctx context.Context, id int64) (*auth.User, error)
}

// ipLimiter hands out one token bucket per client address. Idle buckets are
// swept at most once a minute.
type ipLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > 5*time.Minute {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// AuthHandler serves register, login, logout and the current user.
type AuthHandler struct {
	svc     AuthService
	limiter *ipLimiter
	logger  *zap.Logger
}

// NewAuthHandler throttles login and register per client IP at perSecond
// with the given burst.
func NewAuthHandler(svc AuthService, perSecond float64, burst int, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		svc:     svc,
		limiter: newIPLimiter(perSecond, burst),
		logger:  logger,
	}
}

type authResponse struct {
	Success bool            `json:"success"`
	User    *auth.User      `json:"user"`
	Tokens  *auth.TokenPair `json:"tokens"`
}

func (h *AuthHandler) throttled(w http.ResponseWriter, r *http.Request, action string) bool {
	if h.limiter.allow(getClientIP(r)) {
		return false
	}
	metrics.RateLimited.WithLabelValues("login").Inc()
	metrics.AuthAttempts.WithLabelValues(action, "throttled").Inc()
	sendError(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
	return true
}

// Register handles POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.throttled(w, r, "register") {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	req := &auth.RegisterRequest{
		Name:        deref(v.String("name", validation.Required, validation.Max(255))),
		Email:       strings.ToLower(deref(v.String("email", validation.Required, validation.Email, validation.Max(255)))),
		Password:    deref(v.String("password", validation.Required, validation.Min(8), validation.Confirmed)),
		CompanyName: deref(v.String("company_name", validation.Max(255))),
	}
	if v.Fails() {
		metrics.AuthAttempts.WithLabelValues("register", "invalid").Inc()
		sendValidation(w, v.Errors())
		return
	}

	user, tokens, err := h.svc.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			metrics.AuthAttempts.WithLabelValues("register", "invalid").Inc()
			sendValidation(w, validation.Errors{"email": {"The email has already been taken."}})
			return
		}
		metrics.AuthAttempts.WithLabelValues("register", "error").Inc()
		h.logger.Error("Failed to register user", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}
	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	writeJSON(w, http.StatusCreated, authResponse{Success: true, User: user, Tokens: tokens})
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.throttled(w, r, "login") {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	req := &auth.LoginRequest{
		Email:    strings.ToLower(deref(v.String("email", validation.Required, validation.Email))),
		Password: deref(v.String("password", validation.Required)),
	}
	if v.Fails() {
		metrics.AuthAttempts.WithLabelValues("login", "invalid").Inc()
		sendValidation(w, v.Errors())
		return
	}

	user, tokens, err := h.svc.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
			sendValidation(w, validation.Errors{"email": {"These credentials do not match our records."}})
			return
		}
		metrics.AuthAttempts.WithLabelValues("login", "error").Inc()
		h.logger.Error("Failed to log in", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: user, Tokens: tokens})
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), u.UserID); err != nil {
		h.logger.Error("Failed to log out", zap.Int64("user_id", u.UserID), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Logged out"})
}

// Me handles GET /api/user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.svc.GetUser(r.Context(), u.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			sendError(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		h.logger.Error("Failed to load user", zap.Int64("user_id", u.UserID), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// getClientIP prefers the rightmost X-Forwarded-For entry, which the load
// balancer appends.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
