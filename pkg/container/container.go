package container

import (
	"context"
	"errors"
	"log"

	"github.com/jordanlanch/territoryengine/config"
	"github.com/jordanlanch/territoryengine/pkg/analytics"
	"github.com/jordanlanch/territoryengine/pkg/assignment"
	"github.com/jordanlanch/territoryengine/pkg/cache"
	"github.com/jordanlanch/territoryengine/pkg/database"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/entity"
	"github.com/jordanlanch/territoryengine/pkg/events"
	"github.com/jordanlanch/territoryengine/pkg/jobs"
	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/jordanlanch/territoryengine/pkg/metrics"
	"github.com/jordanlanch/territoryengine/pkg/ownership"
	"github.com/jordanlanch/territoryengine/pkg/rules"
	"github.com/jordanlanch/territoryengine/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics

	// Infrastructure
	DB    *database.Client
	Cache domain.CacheRepository // nil when REDIS_URL is unset
	Bus   *events.Bus
	Kafka *events.KafkaForwarder // nil when KAFKA_BROKERS is unset

	// Stores
	Territories   *store.TerritoryStore
	Rules         *store.RuleStore
	Assignments   *store.AssignmentStore
	Leads         *store.LeadStore
	Organizations *store.OrganizationStore
	Persons       *store.PersonStore
	Entities      *entity.Registry

	// Services
	Evaluator         *rules.Evaluator
	AssignmentService *assignment.Service
	OwnershipHandler  *ownership.Handler
	AnalyticsService  *analytics.Service

	Cron *jobs.CronManager

	started bool
}

// New creates and initializes all application dependencies. Metrics are
// registered with reg.
func New(cfg *config.Config, reg prometheus.Registerer) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger.New(cfg.LogLevel),
		Metrics: metrics.NewWithRegistry(reg),
	}

	if err := c.initInfrastructure(); err != nil {
		c.Close()
		return nil, err
	}

	c.initServices()

	if err := c.initJobs(); err != nil {
		c.Close()
		return nil, err
	}

	c.Logger.Info("Container initialized successfully",
		"environment", cfg.Environment,
		"database", cfg.DatabaseDriver,
		"cache", cfg.CacheEnabled(),
		"kafka", cfg.KafkaEnabled())

	return c, nil
}

// initInfrastructure opens the database, cache and event transport
func (c *Container) initInfrastructure() error {
	var err error

	// Database
	var sslCfg *database.SSLConfig
	if c.Config.DBSSLMode != "" {
		sslCfg = &database.SSLConfig{
			Mode:         c.Config.DBSSLMode,
			CertPath:     c.Config.DBSSLCert,
			KeyPath:      c.Config.DBSSLKey,
			RootCertPath: c.Config.DBSSLRootCert,
		}
	}
	c.DB, err = database.Open(c.Config.DatabaseDriver, c.Config.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    c.Config.DBMaxOpenConns,
		MaxIdleConns:    c.Config.DBMaxIdleConns,
		ConnMaxLifetime: c.Config.DBConnMaxLifetime,
		ConnMaxIdleTime: c.Config.DBConnMaxIdleTime,
	}, sslCfg)
	if err != nil {
		c.Logger.Error("Failed to connect to database", "error", err)
		return err
	}
	if err := c.DB.Migrate(context.Background()); err != nil {
		c.Logger.Error("Failed to migrate database", "error", err)
		return err
	}

	// Cache
	if c.Config.CacheEnabled() {
		cacheClient, err := cache.NewClient(c.Config.RedisURL)
		if err != nil {
			c.Logger.Error("Failed to connect to cache", "error", err)
			return err
		}
		c.Cache = cacheClient
	}

	// Events
	c.Bus = events.NewBus(c.Config.EventBufferSize, c.Logger)
	if c.Config.KafkaEnabled() {
		c.Kafka, err = events.NewKafkaForwarder(events.KafkaConfig{
			Brokers: c.Config.KafkaBrokers,
			Topic:   c.Config.KafkaTopic,
		}, c.Logger)
		if err != nil {
			c.Logger.Error("Failed to configure Kafka forwarder", "error", err)
			return err
		}
	}

	c.Logger.Info("Infrastructure initialized",
		"database", "connected",
		"cache", c.Cache != nil,
		"kafka", c.Kafka != nil)

	return nil
}

// initServices wires stores and domain services
func (c *Container) initServices() {
	c.Territories = store.NewTerritoryStore(c.DB)
	c.Rules = store.NewRuleStore(c.DB)
	c.Assignments = store.NewAssignmentStore(c.DB)
	c.Leads = store.NewLeadStore(c.DB)
	c.Organizations = store.NewOrganizationStore(c.DB)
	c.Persons = store.NewPersonStore(c.DB)
	c.Entities = entity.NewRegistry(c.Leads, c.Organizations, c.Persons)

	c.Evaluator = rules.NewEvaluator(c.Territories, c.Rules, c.Logger)

	c.AssignmentService = assignment.NewService(
		c.Territories,
		c.Assignments,
		c.Evaluator,
		c.Entities,
		c.Logger,
		assignment.WithPublisher(c.Bus),
		assignment.WithMetrics(c.Metrics),
	)

	c.OwnershipHandler = ownership.NewHandler(
		c.Territories,
		c.Assignments,
		c.Entities,
		c.Logger,
		ownership.WithPublisher(c.Bus),
		ownership.WithMetrics(c.Metrics),
	)

	analyticsOpts := []analytics.Option{
		analytics.WithConcurrency(c.Config.AnalyticsConcurrency),
		analytics.WithMetrics(c.Metrics),
	}
	if c.Cache != nil {
		analyticsOpts = append(analyticsOpts, analytics.WithCache(c.Cache, c.Config.AnalyticsCacheTTL))
	}
	c.AnalyticsService = analytics.NewService(c.Territories, c.Assignments, c.Leads, c.Logger, analyticsOpts...)

	// Subscribers
	if c.Cache != nil {
		c.Bus.Subscribe("analytics_cache", analytics.NewCacheInvalidator(c.AnalyticsService))
	}
	if c.Kafka != nil {
		c.Bus.Subscribe("kafka", c.Kafka)
	}
}

// initJobs configures scheduled jobs
func (c *Container) initJobs() error {
	var warmer jobs.AnalyticsWarmer
	if c.Cache != nil {
		warmer = c.AnalyticsService
	}
	c.Cron = jobs.NewCronManager(c.OwnershipHandler, warmer, jobs.Schedules{
		OwnershipSync: c.Config.OwnershipSyncSchedule,
		AnalyticsWarm: c.Config.AnalyticsWarmSchedule,
	}, c.Metrics, log.Default())
	return c.Cron.SetupJobs()
}

// Start runs the event bus and the cron scheduler until ctx is cancelled or Close is called.
func (c *Container) Start(ctx context.Context) {
	c.Bus.Start(ctx)
	c.Cron.Start()
	c.started = true
}

// Close releases every resource the container opened. Queued events are
// delivered before the transports close. Safe after a partial initialization.
func (c *Container) Close() error {
	var errs []error

	if c.Cron != nil {
		c.Cron.Stop()
	}
	if c.started {
		c.Bus.Stop()
		c.started = false
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
