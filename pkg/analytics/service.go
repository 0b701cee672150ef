// Package analytics computes read-only performance metrics for territories
// from their current lead assignments.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jordanlanch/territoryengine/pkg/cache"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/jordanlanch/territoryengine/pkg/metrics"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"golang.org/x/sync/errgroup"
)

const performanceKeyPrefix = "territory:analytics:performance:"

// Ranking metrics
const (
	MetricRevenue         = "revenue"
	MetricConversionRate  = "conversion_rate"
	MetricLeadCount       = "lead_count"
	MetricWonLeads        = "won_leads"
	MetricPipelineValue   = "pipeline_value"
	MetricAverageDealSize = "average_deal_size"
)

// PerformanceMetrics describes one territory's lead pipeline.
type PerformanceMetrics struct {
	TerritoryID     string  `json:"territory_id"`
	TerritoryName   string  `json:"territory_name"`
	TotalLeads      int     `json:"total_leads"`
	WonLeads        int     `json:"won_leads"`
	LostLeads       int     `json:"lost_leads"`
	OpenLeads       int     `json:"open_leads"`
	ConversionRate  float64 `json:"conversion_rate"`
	Revenue         float64 `json:"revenue"`
	AverageDealSize float64 `json:"average_deal_size"`
	PipelineValue   float64 `json:"pipeline_value"`
}

// AggregatedMetrics sums performance across every territory.
type AggregatedMetrics struct {
	TotalTerritories      int     `json:"total_territories"`
	ActiveTerritories     int     `json:"active_territories"`
	TotalLeads            int     `json:"total_leads"`
	WonLeads              int     `json:"won_leads"`
	LostLeads             int     `json:"lost_leads"`
	OpenLeads             int     `json:"open_leads"`
	TotalRevenue          float64 `json:"total_revenue"`
	TotalPipelineValue    float64 `json:"total_pipeline_value"`
	OverallConversionRate float64 `json:"overall_conversion_rate"`
	AverageConversionRate float64 `json:"average_conversion_rate"`
}

// TrendPoint is a territory's performance for one calendar month.
type TrendPoint struct {
	Period  string             `json:"period"` // YYYY-MM
	Start   time.Time          `json:"start"`
	End     time.Time          `json:"end"`
	Metrics PerformanceMetrics `json:"metrics"`
}

// RankedTerritory is a territory's performance with its 1-based rank.
type RankedTerritory struct {
	Rank int `json:"rank"`
	PerformanceMetrics
}

// Service handles territory analytics.
type Service struct {
	territories domain.TerritoryStore
	assignments domain.AssignmentStore
	leads       domain.LeadRepository
	cache       domain.CacheRepository
	cacheTTL    time.Duration
	concurrency int
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches per-territory performance for ttl.
func WithCache(c domain.CacheRepository, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithConcurrency bounds how many territories are computed at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides the time source used for trends.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new analytics service.
func NewService(territories domain.TerritoryStore, assignments domain.AssignmentStore, leads domain.LeadRepository, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Default()
	}
	s := &Service{
		territories: territories,
		assignments: assignments,
		leads:       leads,
		concurrency: 8,
		now:         time.Now,
		logger:      log.With("component", "territory_analytics"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLeadCount returns the number of leads currently assigned to the
// territory. It counts the same lead set as PerformanceMetrics.TotalLeads, so
// assignments whose lead no longer exists are left out.
func (s *Service) GetLeadCount(ctx context.Context, territoryID string) (int, error) {
	leads, err := s.GetLeads(ctx, territoryID)
	if err != nil {
		return 0, err
	}
	return len(leads), nil
}

// GetLeads returns the leads currently assigned to the territory.
func (s *Service) GetLeads(ctx context.Context, territoryID string) ([]*models.Lead, error) {
	assignments, err := s.assignments.GetAssignmentsByTerritory(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	return s.leadsFor(ctx, assignments)
}

// GetConversionRate returns won leads as a percentage of all leads, rounded
// to two decimals. A territory without leads converts at 0.
func (s *Service) GetConversionRate(ctx context.Context, territoryID string) (float64, error) {
	leads, err := s.GetLeads(ctx, territoryID)
	if err != nil {
		return 0, err
	}
	return compute(nil, leads).ConversionRate, nil
}

// GetRevenue sums the value of won leads.
func (s *Service) GetRevenue(ctx context.Context, territoryID string) (float64, error) {
	leads, err := s.GetLeads(ctx, territoryID)
	if err != nil {
		return 0, err
	}
	return compute(nil, leads).Revenue, nil
}

// GetWonLeadsCount counts won leads.
func (s *Service) GetWonLeadsCount(ctx context.Context, territoryID string) (int, error) {
	leads, err := s.GetLeads(ctx, territoryID)
	if err != nil {
		return 0, err
	}
	return compute(nil, leads).WonLeads, nil
}

// GetLostLeadsCount counts lost leads.
func (s *Service) GetLostLeadsCount(ctx context.Context, territoryID string) (int, error) {
	leads, err := s.GetLeads(ctx, territoryID)
	if err != nil {
		return 0, err
	}
	return compute(nil, leads).LostLeads, nil
}

// GetPerformanceMetrics returns the territory's performance, served from the
// cache when one is configured.
func (s *Service) GetPerformanceMetrics(ctx context.Context, territoryID string) (*PerformanceMetrics, error) {
	territory, err := s.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	return s.performance(ctx, territory)
}

// GetAllTerritoriesPerformance returns performance for every territory, in
// territory order.
func (s *Service) GetAllTerritoriesPerformance(ctx context.Context) ([]*PerformanceMetrics, error) {
	territories, err := s.territories.All(ctx)
	if err != nil {
		return nil, err
	}
	return s.performanceFor(ctx, territories)
}

// GetPerformanceByType returns performance for the territories of one type.
func (s *Service) GetPerformanceByType(ctx context.Context, territoryType string) ([]*PerformanceMetrics, error) {
	territories, err := s.territories.GetByType(ctx, territoryType)
	if err != nil {
		return nil, err
	}
	return s.performanceFor(ctx, territories)
}

// GetTopTerritoriesByRevenue returns up to limit territories, highest revenue first.
func (s *Service) GetTopTerritoriesByRevenue(ctx context.Context, limit int) ([]*PerformanceMetrics, error) {
	return s.top(ctx, limit, MetricRevenue, false)
}

// GetTopTerritoriesByConversionRate ranks territories with at least one lead by conversion rate.
func (s *Service) GetTopTerritoriesByConversionRate(ctx context.Context, limit int) ([]*PerformanceMetrics, error) {
	return s.top(ctx, limit, MetricConversionRate, true)
}

// GetTopTerritoriesByLeadCount returns up to limit territories, most leads first.
func (s *Service) GetTopTerritoriesByLeadCount(ctx context.Context, limit int) ([]*PerformanceMetrics, error) {
	return s.top(ctx, limit, MetricLeadCount, false)
}

// GetPerformanceByDateRange computes performance over the leads assigned
// within [start, end]. Results are never cached.
func (s *Service) GetPerformanceByDateRange(ctx context.Context, territoryID string, start, end time.Time) (*PerformanceMetrics, error) {
	if end.Before(start) {
		return nil, domain.NewValidationError("end must not be before start")
	}
	territory, err := s.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	return s.performanceBetween(ctx, territory, start, end)
}

// ComparePerformance returns performance for each territory in the order given.
func (s *Service) ComparePerformance(ctx context.Context, territoryIDs []string) ([]*PerformanceMetrics, error) {
	results := make([]*PerformanceMetrics, 0, len(territoryIDs))
	for _, id := range territoryIDs {
		m, err := s.GetPerformanceMetrics(ctx, id)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, nil
}

// GetAggregatedMetrics sums performance over every territory.
// AverageConversionRate is the mean of per-territory rates.
func (s *Service) GetAggregatedMetrics(ctx context.Context) (*AggregatedMetrics, error) {
	territories, err := s.territories.All(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.performanceFor(ctx, territories)
	if err != nil {
		return nil, err
	}

	agg := &AggregatedMetrics{TotalTerritories: len(territories)}
	var rateSum float64
	for i, m := range all {
		if territories[i].IsActive() {
			agg.ActiveTerritories++
		}
		agg.TotalLeads += m.TotalLeads
		agg.WonLeads += m.WonLeads
		agg.LostLeads += m.LostLeads
		agg.OpenLeads += m.OpenLeads
		agg.TotalRevenue += m.Revenue
		agg.TotalPipelineValue += m.PipelineValue
		rateSum += m.ConversionRate
	}

	agg.TotalRevenue = round2(agg.TotalRevenue)
	agg.TotalPipelineValue = round2(agg.TotalPipelineValue)
	if agg.TotalLeads > 0 {
		agg.OverallConversionRate = round2(float64(agg.WonLeads) / float64(agg.TotalLeads) * 100)
	}
	if len(all) > 0 {
		agg.AverageConversionRate = round2(rateSum / float64(len(all)))
	}
	return agg, nil
}

// GetPerformanceTrend returns one snapshot per calendar month for the last
// months months, the current month included, oldest first.
func (s *Service) GetPerformanceTrend(ctx context.Context, territoryID string, months int) ([]TrendPoint, error) {
	if months < 1 {
		return nil, domain.NewValidationError("months must be at least 1")
	}
	territory, err := s.territories.Find(ctx, territoryID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	points := make([]TrendPoint, 0, months)
	for i := months - 1; i >= 0; i-- {
		start := thisMonth.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)

		m, err := s.performanceBetween(ctx, territory, start, end)
		if err != nil {
			return nil, err
		}
		points = append(points, TrendPoint{
			Period:  start.Format("2006-01"),
			Start:   start,
			End:     end,
			Metrics: *m,
		})
	}
	return points, nil
}

// GetTerritoryRankings ranks every territory by metric, starting at 1.
func (s *Service) GetTerritoryRankings(ctx context.Context, metric string) ([]RankedTerritory, error) {
	if _, ok := metricValue(metric); !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown ranking metric %q", metric))
	}
	all, err := s.GetAllTerritoriesPerformance(ctx)
	if err != nil {
		return nil, err
	}
	sortBy(all, metric)

	ranked := make([]RankedTerritory, len(all))
	for i, m := range all {
		ranked[i] = RankedTerritory{Rank: i + 1, PerformanceMetrics: *m}
	}
	return ranked, nil
}

// InvalidateTerritory drops the territory's cached performance.
func (s *Service) InvalidateTerritory(ctx context.Context, territoryID string) error {
	if s.cache == nil || territoryID == "" {
		return nil
	}
	return s.cache.Delete(ctx, performanceKeyPrefix+territoryID)
}

// WarmCache recomputes and caches every territory's performance. It returns
// the number of territories cached.
func (s *Service) WarmCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	if err := s.cache.DeletePattern(ctx, performanceKeyPrefix+"*"); err != nil {
		return 0, fmt.Errorf("failed to clear analytics cache: %w", err)
	}
	all, err := s.GetAllTerritoriesPerformance(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *Service) top(ctx context.Context, limit int, metric string, skipEmpty bool) ([]*PerformanceMetrics, error) {
	all, err := s.GetAllTerritoriesPerformance(ctx)
	if err != nil {
		return nil, err
	}

	if skipEmpty {
		filtered := all[:0]
		for _, m := range all {
			if m.TotalLeads > 0 {
				filtered = append(filtered, m)
			}
		}
		all = filtered
	}

	sortBy(all, metric)
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// performanceFor computes territories in parallel, keeping their order.
func (s *Service) performanceFor(ctx context.Context, territories []*models.Territory) ([]*PerformanceMetrics, error) {
	results := make([]*PerformanceMetrics, len(territories))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, t := range territories {
		g.Go(func() error {
			m, err := s.performance(ctx, t)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) performance(ctx context.Context, territory *models.Territory) (*PerformanceMetrics, error) {
	key := performanceKeyPrefix + territory.ID
	if m, ok := s.cached(ctx, key); ok {
		return m, nil
	}

	start := time.Now()
	assignments, err := s.assignments.GetAssignmentsByTerritory(ctx, territory.ID)
	if err != nil {
		return nil, err
	}
	leads, err := s.leadsFor(ctx, assignments)
	if err != nil {
		return nil, err
	}
	m := compute(territory, leads)
	s.metrics.RecordAnalytics("performance", time.Since(start))

	s.store(ctx, key, m)
	return m, nil
}

func (s *Service) performanceBetween(ctx context.Context, territory *models.Territory, start, end time.Time) (*PerformanceMetrics, error) {
	assignments, err := s.assignments.GetAssignmentsByDateRange(ctx, territory.ID, start, end)
	if err != nil {
		return nil, err
	}
	leads, err := s.leadsFor(ctx, assignments)
	if err != nil {
		return nil, err
	}
	return compute(territory, leads), nil
}

func (s *Service) cached(ctx context.Context, key string) (*PerformanceMetrics, bool) {
	if s.cache == nil {
		return nil, false
	}

	var m PerformanceMetrics
	if err := s.cache.GetJSON(ctx, key, &m); err != nil {
		if !cache.IsMiss(err) {
			s.logger.Warn("Analytics cache read failed", "key", key, "error", err)
		}
		s.metrics.RecordCacheMiss("redis")
		return nil, false
	}
	s.metrics.RecordCacheHit("redis")
	return &m, true
}

func (s *Service) store(ctx context.Context, key string, m *PerformanceMetrics) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, m, s.cacheTTL); err != nil {
		s.logger.Warn("Analytics cache write failed", "key", key, "error", err)
	}
}

func (s *Service) leadsFor(ctx context.Context, assignments []*models.Assignment) ([]*models.Lead, error) {
	var ids []string
	for _, a := range assignments {
		if a.AssignableType == models.EntityTypeLead {
			ids = append(ids, a.AssignableID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	leads, err := s.leads.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load territory leads: %w", err)
	}
	return leads, nil
}

// compute derives performance from a lead set. territory may be nil.
func compute(territory *models.Territory, leads []*models.Lead) *PerformanceMetrics {
	m := &PerformanceMetrics{TotalLeads: len(leads)}
	if territory != nil {
		m.TerritoryID = territory.ID
		m.TerritoryName = territory.Name
	}

	for _, l := range leads {
		switch {
		case l.IsWon():
			m.WonLeads++
			m.Revenue += l.LeadValue
		case l.IsLost():
			m.LostLeads++
		default:
			m.OpenLeads++
			m.PipelineValue += l.LeadValue
		}
	}

	if m.TotalLeads > 0 {
		m.ConversionRate = round2(float64(m.WonLeads) / float64(m.TotalLeads) * 100)
	}
	if m.WonLeads > 0 {
		m.AverageDealSize = round2(m.Revenue / float64(m.WonLeads))
	}
	m.Revenue = round2(m.Revenue)
	m.PipelineValue = round2(m.PipelineValue)
	return m
}

func metricValue(metric string) (func(*PerformanceMetrics) float64, bool) {
	switch metric {
	case MetricRevenue:
		return func(m *PerformanceMetrics) float64 { return m.Revenue }, true
	case MetricConversionRate:
		return func(m *PerformanceMetrics) float64 { return m.ConversionRate }, true
	case MetricLeadCount:
		return func(m *PerformanceMetrics) float64 { return float64(m.TotalLeads) }, true
	case MetricWonLeads:
		return func(m *PerformanceMetrics) float64 { return float64(m.WonLeads) }, true
	case MetricPipelineValue:
		return func(m *PerformanceMetrics) float64 { return m.PipelineValue }, true
	case MetricAverageDealSize:
		return func(m *PerformanceMetrics) float64 { return m.AverageDealSize }, true
	}
	return nil, false
}

// sortBy orders descending by metric. Ties keep territory order.
func sortBy(all []*PerformanceMetrics, metric string) {
	value, ok := metricValue(metric)
	if !ok {
		return
	}
	sort.SliceStable(all, func(i, j int) bool {
		return value(all[i]) > value(all[j])
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
