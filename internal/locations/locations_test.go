package locations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetworks/fleet-api/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	rows []store.Location
}

func (m *memStore) RecordLocation(_ context.Context, l *store.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = int64(len(m.rows) + 1)
	l.RecordedAt = time.Now()
	m.rows = append(m.rows, *l)
	return nil
}

func (m *memStore) LatestLocations(_ context.Context, companyID int64) ([]store.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Location
	for _, l := range m.rows {
		if l.CompanyID == companyID {
			out = append(out, l)
		}
	}
	return out, nil
}

func TestHubScopesByCompany(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(1, 4)
	b := hub.Subscribe(2, 4)

	assert.Equal(t, 1, hub.Publish(store.Location{CompanyID: 1, Latitude: 1}))
	assert.Equal(t, 0, hub.Publish(store.Location{CompanyID: 3}))

	got := <-a
	assert.Equal(t, 1.0, got.Latitude)
	select {
	case <-b:
		t.Fatal("company 2 received company 1's report")
	default:
	}

	hub.Unsubscribe(1, a)
	hub.Unsubscribe(1, a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers(1))
	assert.Equal(t, 1, hub.Subscribers(2))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1, 1)
	defer hub.Unsubscribe(1, ch)

	assert.Equal(t, 1, hub.Publish(store.Location{CompanyID: 1}))
	assert.Equal(t, 0, hub.Publish(store.Location{CompanyID: 1}))
}

func TestStreamDeliversRecordedLocations(t *testing.T) {
	svc := NewService(&memStore{}, NewHub(), []string{"*"}, zaptest.NewLogger(t))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc.Stream(w, r, 7)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return svc.hub.Subscribers(7) == 1 }, time.Second, 10*time.Millisecond)

	vehicleID := int64(3)
	require.NoError(t, svc.Record(context.Background(), &store.Location{CompanyID: 7, VehicleID: &vehicleID, Latitude: 40.7, Longitude: -74}))

	var got store.Location
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, 40.7, got.Latitude)
	require.NotNil(t, got.VehicleID)
	assert.Equal(t, int64(3), *got.VehicleID)

	latest, err := svc.Latest(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://fleet.example.com"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://fleet.example.com")
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}
