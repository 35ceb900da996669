package dashboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetworks/fleet-api/internal/circuitbreaker"
	"github.com/fleetworks/fleet-api/internal/config"
)

var fixedNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *miniredis.Miniredis) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zaptest.NewLogger(t)
	svc := NewService(sqlx.NewDb(mockDB, "postgres"), circuitbreaker.NewRedisWrapper(client, logger),
		config.DashboardConfig{StatsTTL: 300 * time.Second, ChartTTL: 600 * time.Second}, logger)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock, mr
}

func monthRows() *sqlmock.Rows { return sqlmock.NewRows([]string{"month", "value"}) }

func TestChartDataCachesResult(t *testing.T) {
	svc, mock, mr := newTestService(t)
	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	mock.ExpectQuery("FROM expenses").
		WithArgs(int64(4), from, to).
		WillReturnRows(monthRows().AddRow(1, 120.5).AddRow(6, 80.0))
	mock.ExpectQuery("FROM fuel_fillups").
		WithArgs(int64(4), from, to).
		WillReturnRows(monthRows().AddRow(6, 310.25))

	cd, err := svc.ChartData(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Jan", cd.Labels[0])
	assert.Equal(t, "Dec", cd.Labels[11])
	assert.Equal(t, 120.5, cd.Expenses[0])
	assert.Equal(t, 80.0, cd.Expenses[5])
	assert.Equal(t, 0.0, cd.Expenses[1])
	assert.Equal(t, 310.25, cd.Revenue[5])

	assert.True(t, mr.Exists("chart_data_4"))
	assert.Equal(t, 600*time.Second, mr.TTL("chart_data_4"))

	// Served from Redis; sqlmock would fail on an unexpected query.
	again, err := svc.ChartData(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, cd, again)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsBuildsAndCaches(t *testing.T) {
	svc, mock, mr := newTestService(t)
	ctx := context.Background()
	avg := 23.456

	mock.ExpectQuery("SELECT (.+) AS total_vehicles").
		WithArgs(int64(4), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_vehicles", "active_vehicles", "total_drivers", "active_drivers", "total_trips",
			"completed_trips", "total_expenses", "avg_mpg",
		}).AddRow(3, 2, 2, 1, 10, 6, 500.0, avg))
	mock.ExpectQuery("FROM trips").WillReturnRows(monthRows().AddRow(6, 10.0))
	mock.ExpectQuery("FROM expenses").WillReturnRows(monthRows().AddRow(6, 500.0))
	mock.ExpectQuery("FROM fuel_fillups").WillReturnRows(monthRows().AddRow(5, 100.0).AddRow(6, 150.0))
	mock.ExpectQuery("GROUP BY vehicle_id").
		WillReturnRows(sqlmock.NewRows([]string{"vehicle_id", "trip_count", "total_distance"}).AddRow(7, 6, 800.0))
	mock.ExpectQuery("FROM issues i").
		WillReturnRows(sqlmock.NewRows([]string{"id", "vehicle_id", "title", "priority", "created_at",
			"make", "model", "license_plate"}).
			AddRow(1, 7, "Brake noise", "high", fixedNow, "Volvo", "FH16", "ABC-1"))
	mock.ExpectQuery("FROM services sv").
		WithArgs(int64(4), time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vehicle_id", "service_type", "service_date", "status",
			"make", "model", "license_plate"}))

	st, err := svc.Stats(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalVehicles)
	assert.Equal(t, map[string]int64{"6": 10}, st.MonthlyTrips)
	assert.Equal(t, 750.0, st.TotalCost)
	assert.Equal(t, 23.5, st.AvgMPG)
	assert.Equal(t, 75.0, st.CostPerMile, "total cost over trip count")
	assert.Equal(t, int64(1), st.OpenIssues, "counts the recent issues list")
	assert.Zero(t, st.MaintenanceQueue)
	assert.Equal(t, 25.0, st.CostPerDay)
	require.Len(t, st.RecentIssues, 1)
	assert.Equal(t, "ABC-1", *st.RecentIssues[0].Vehicle.LicensePlate)
	assert.Equal(t, st.RecentIssues, st.RecentIssuesAlt)
	assert.Empty(t, st.UpcomingServices)
	require.NoError(t, mock.ExpectationsWereMet())

	raw, err := mr.Get("dashboard_stats_4")
	require.NoError(t, err)
	var cached Stats
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, 750.0, cached.TotalCost)
}

func TestInvalidateDropsBothKeys(t *testing.T) {
	svc, _, mr := newTestService(t)
	require.NoError(t, mr.Set("dashboard_stats_4", "{}"))
	require.NoError(t, mr.Set("chart_data_4", "{}"))
	require.NoError(t, mr.Set("chart_data_5", "{}"))

	require.NoError(t, svc.Invalidate(context.Background(), 4))
	assert.False(t, mr.Exists("dashboard_stats_4"))
	assert.False(t, mr.Exists("chart_data_4"))
	assert.True(t, mr.Exists("chart_data_5"))
}

func TestInvalidateAllDropsEveryCompany(t *testing.T) {
	svc, _, mr := newTestService(t)
	for _, k := range []string{"dashboard_stats_4", "chart_data_4", "dashboard_stats_9", "chart_data_9"} {
		require.NoError(t, mr.Set(k, "{}"))
	}
	require.NoError(t, mr.Set("idempotency:abc", "{}"))

	require.NoError(t, svc.InvalidateAll(context.Background()))
	assert.Equal(t, []string{"idempotency:abc"}, mr.Keys())

	// Nothing left to drop.
	require.NoError(t, svc.InvalidateAll(context.Background()))
}

func TestCorruptCacheEntryIsRebuilt(t *testing.T) {
	svc, mock, mr := newTestService(t)
	require.NoError(t, mr.Set("chart_data_4", "not json"))

	mock.ExpectQuery("FROM expenses").WillReturnRows(monthRows())
	mock.ExpectQuery("FROM fuel_fillups").WillReturnRows(monthRows())

	cd, err := svc.ChartData(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, cd.Revenue, 12)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarizeDefaults(t *testing.T) {
	st := summarize(&rawStats{})
	assert.Equal(t, DefaultAvgMPG, st.AvgMPG)
	assert.Zero(t, st.CostPerMile)
	assert.Zero(t, st.TotalCost)
	assert.Zero(t, st.DowntimeDays)
	assert.Zero(t, st.RenewalCount)
	assert.NotNil(t, st.MonthlyExpenses)
}

func TestStatsWithoutCache(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewService(sqlx.NewDb(mockDB, "postgres"), nil, config.DashboardConfig{}, zaptest.NewLogger(t))
	svc.now = func() time.Time { return fixedNow }
	assert.Equal(t, 300*time.Second, svc.statsTTL)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("FROM expenses").WillReturnRows(monthRows())
		mock.ExpectQuery("FROM fuel_fillups").WillReturnRows(monthRows())
	}
	for i := 0; i < 2; i++ {
		_, err := svc.ChartData(context.Background(), 1)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Invalidate(context.Background(), 1))
	require.NoError(t, mock.ExpectationsWereMet())
}
