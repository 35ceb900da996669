package locations

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/store"
)

const (
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Store persists position reports.
type Store interface {
	RecordLocation(ctx context.Context, l *store.Location) error
	LatestLocations(ctx context.Context, companyID int64) ([]store.Location, error)
}

// Service records reports and streams them to subscribers.
type Service struct {
	store    Store
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewService(s Store, hub *Hub, allowedOrigins []string, logger *zap.Logger) *Service {
	return &Service{
		store:  s,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Record stores l and publishes the stored row.
func (s *Service) Record(ctx context.Context, l *store.Location) error {
	if err := s.store.RecordLocation(ctx, l); err != nil {
		return err
	}
	n := s.hub.Publish(*l)
	s.logger.Debug("Location recorded",
		zap.Int64("company_id", l.CompanyID),
		zap.Int64("location_id", l.ID),
		zap.Int("subscribers", n),
	)
	return nil
}

func (s *Service) Latest(ctx context.Context, companyID int64) ([]store.Location, error) {
	return s.store.LatestLocations(ctx, companyID)
}

// Stream upgrades the request and writes the company's reports until the
// client goes away. Client messages are discarded.
func (s *Service) Stream(w http.ResponseWriter, r *http.Request, companyID int64) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe(companyID, 64)
	defer s.hub.Unsubscribe(companyID, ch)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case loc, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(loc); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
