// Package dashboard aggregates per-company KPIs and chart series and caches
// them in Redis.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/circuitbreaker"
	"github.com/fleetworks/fleet-api/internal/config"
	"github.com/fleetworks/fleet-api/internal/db"
	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/mpg"
)

const (
	viewStats = "stats"
	viewChart = "chart"
)

const (
	statsKeyPrefix = "dashboard_stats_"
	chartKeyPrefix = "chart_data_"
)

func StatsKey(companyID int64) string { return statsKeyPrefix + strconv.FormatInt(companyID, 10) }
func ChartKey(companyID int64) string { return chartKeyPrefix + strconv.FormatInt(companyID, 10) }

// Service builds dashboard views. cache may be nil, in which case every call
// hits the database.
type Service struct {
	db       db.Handle
	cache    *circuitbreaker.RedisWrapper
	logger   *zap.Logger
	statsTTL time.Duration
	chartTTL time.Duration
	now      func() time.Time
}

func NewService(h db.Handle, cache *circuitbreaker.RedisWrapper, cfg config.DashboardConfig, logger *zap.Logger) *Service {
	s := &Service{
		db:       h,
		cache:    cache,
		logger:   logger,
		statsTTL: cfg.StatsTTL,
		chartTTL: cfg.ChartTTL,
		now:      time.Now,
	}
	if s.statsTTL <= 0 {
		s.statsTTL = 300 * time.Second
	}
	if s.chartTTL <= 0 {
		s.chartTTL = 600 * time.Second
	}
	return s
}

// Stats returns the KPI payload for a company.
func (s *Service) Stats(ctx context.Context, companyID int64) (*Stats, error) {
	return remember(ctx, s, viewStats, StatsKey(companyID), s.statsTTL, func(ctx context.Context) (*Stats, error) {
		return s.buildStats(ctx, companyID)
	})
}

// ChartData returns the monthly expense and fuel series for a company.
func (s *Service) ChartData(ctx context.Context, companyID int64) (*ChartData, error) {
	return remember(ctx, s, viewChart, ChartKey(companyID), s.chartTTL, func(ctx context.Context) (*ChartData, error) {
		return s.buildChart(ctx, companyID)
	})
}

// Invalidate drops both cached views of a company.
func (s *Service) Invalidate(ctx context.Context, companyID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, StatsKey(companyID), ChartKey(companyID)); err != nil {
		s.logger.Warn("Failed to invalidate dashboard cache",
			zap.Int64("company_id", companyID), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateAll drops the cached views of every company.
func (s *Service) InvalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	var keys []string
	for _, pattern := range []string{statsKeyPrefix + "*", chartKeyPrefix + "*"} {
		iter := s.cache.Client().Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("Failed to invalidate dashboard cache", zap.Int("keys", len(keys)), zap.Error(err))
		return err
	}
	return nil
}

func remember[T any](ctx context.Context, s *Service, view, key string, ttl time.Duration, build func(context.Context) (*T, error)) (*T, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				metrics.DashboardCacheHits.WithLabelValues(view).Inc()
				return &v, nil
			}
			s.logger.Warn("Discarding undecodable dashboard cache entry", zap.String("key", key))
		case errors.Is(err, redis.Nil):
		default:
			s.logger.Warn("Dashboard cache read failed", zap.String("key", key), zap.Error(err))
		}
	}
	metrics.DashboardCacheMisses.WithLabelValues(view).Inc()

	start := time.Now()
	v, err := build(ctx)
	metrics.DashboardBuildDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		raw, err := json.Marshal(v)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, ttl)
		}
		if err != nil {
			s.logger.Warn("Dashboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func (s *Service) yearBounds() (from, to, today time.Time) {
	now := s.now()
	from = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	to = from.AddDate(1, 0, 0)
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, to, today
}

// rawStats is everything loaded from the database before derivation.
type rawStats struct {
	totals   totals
	trips    map[int]float64
	expenses map[int]float64
	fuel     map[int]float64
	util     []Utilization
	issues   []RecentIssue
	services []UpcomingService
}

func (s *Service) buildStats(ctx context.Context, companyID int64) (*Stats, error) {
	from, to, today := s.yearBounds()
	var raw rawStats
	var err error

	if err = sqlx.GetContext(ctx, s.db, &raw.totals, totalsQuery, companyID, from, to); err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}
	if raw.trips, err = s.monthly(ctx, "trips", "created_at", "COUNT(*)", companyID, from, to); err != nil {
		return nil, err
	}
	if raw.expenses, err = s.monthly(ctx, "expenses", "expense_date", "SUM(amount)", companyID, from, to); err != nil {
		return nil, err
	}
	if raw.fuel, err = s.monthly(ctx, "fuel_fillups", "fillup_date", "SUM(cost)", companyID, from, to); err != nil {
		return nil, err
	}
	if raw.util, err = s.utilization(ctx, companyID); err != nil {
		return nil, err
	}
	if raw.issues, err = s.recentIssues(ctx, companyID); err != nil {
		return nil, err
	}
	if raw.services, err = s.upcomingServices(ctx, companyID, today); err != nil {
		return nil, err
	}
	return summarize(&raw), nil
}

// summarize derives the cost and efficiency figures.
func summarize(raw *rawStats) *Stats {
	t := raw.totals
	var fuelTotal float64
	for _, v := range raw.fuel {
		fuelTotal += v
	}
	totalCost := t.TotalExpenses + fuelTotal

	avg := DefaultAvgMPG
	if t.AvgMPG != nil {
		avg = *t.AvgMPG
	}
	// Spread over the trip count.
	var perMile float64
	if t.TotalTrips > 0 {
		perMile = totalCost / float64(t.TotalTrips)
	}

	return &Stats{
		TotalVehicles:       t.TotalVehicles,
		ActiveVehicles:      t.ActiveVehicles,
		TotalDrivers:        t.TotalDrivers,
		ActiveDrivers:       t.ActiveDrivers,
		TotalTrips:          t.TotalTrips,
		CompletedTrips:      t.CompletedTrips,
		MonthlyTrips:        monthCounts(raw.trips),
		MonthlyExpenses:     monthKeys(raw.expenses),
		MonthlyFuelCosts:    monthKeys(raw.fuel),
		VehicleUtilization:  raw.util,
		RecentIssues:        raw.issues,
		UpcomingServices:    raw.services,
		TotalCost:           mpg.Round(totalCost, 2),
		TotalExpenses:       mpg.Round(t.TotalExpenses, 2),
		AvgMPG:              mpg.Round(avg, 1),
		OpenIssues:          int64(len(raw.issues)),
		MaintenanceQueue:    0,
		CostPerMile:         mpg.Round(perMile, 2),
		CostPerDay:          mpg.Round(totalCost/30, 2),
		RecentIssuesAlt:     raw.issues,
		UpcomingServicesAlt: raw.services,
	}
}

func (s *Service) buildChart(ctx context.Context, companyID int64) (*ChartData, error) {
	from, to, _ := s.yearBounds()
	expenses, err := s.monthly(ctx, "expenses", "expense_date", "SUM(amount)", companyID, from, to)
	if err != nil {
		return nil, err
	}
	fuel, err := s.monthly(ctx, "fuel_fillups", "fillup_date", "SUM(cost)", companyID, from, to)
	if err != nil {
		return nil, err
	}
	return chartFrom(expenses, fuel), nil
}

func chartFrom(expenses, fuel map[int]float64) *ChartData {
	cd := &ChartData{
		Labels:   append([]string(nil), monthLabels...),
		Expenses: make([]float64, 12),
		Revenue:  make([]float64, 12),
	}
	for m := 1; m <= 12; m++ {
		cd.Expenses[m-1] = expenses[m]
		cd.Revenue[m-1] = fuel[m]
	}
	return cd
}
