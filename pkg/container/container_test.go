package container

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/territoryengine/config"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Environment:           "test",
		DatabaseDriver:        "sqlite3",
		DatabaseURL:           "file:" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1",
		DBMaxOpenConns:        1,
		DBMaxIdleConns:        1,
		LogLevel:              "error",
		OwnershipSyncSchedule: "0 2 * * *",
		AnalyticsWarmSchedule: "*/30 * * * *",
		AnalyticsConcurrency:  2,
		EventBufferSize:       16,
	}
}

func TestNew(t *testing.T) {
	t.Run("Success - Wires an end to end assignment", func(t *testing.T) {
		c, err := New(testConfig(t), prometheus.NewRegistry())
		require.NoError(t, err)
		assert.Nil(t, c.Cache)
		assert.Nil(t, c.Kafka)
		assert.Equal(t, 1, c.Cron.Entries())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		now := time.Now().UTC()
		territory := &models.Territory{
			ID:        uuid.NewString(),
			Name:      "Iberia",
			Type:      models.TerritoryTypeGeographic,
			Status:    models.TerritoryStatusActive,
			UserID:    "owner-1",
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, c.Territories.Create(ctx, territory))
		require.NoError(t, c.Rules.Create(ctx, &models.Rule{
			ID:          uuid.NewString(),
			TerritoryID: territory.ID,
			Type:        models.RuleTypeGeographic,
			Field:       "country",
			Operator:    models.OperatorIn,
			Value:       []any{"ES", "PT"},
			Priority:    1,
			IsActive:    true,
			CreatedAt:   now,
		}))
		lead := &models.Lead{ID: uuid.NewString(), Title: "Lisbon", Country: "PT", StageCode: models.StageNew, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, c.Leads.Create(ctx, lead))

		a, err := c.AssignmentService.AutoAssign(ctx, lead, "system")
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, territory.ID, a.TerritoryID)

		stats, err := c.OwnershipHandler.GetOwnershipStatistics(ctx, territory.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.NoOwnerCount)

		updated, err := c.Cron.RunOwnershipSync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		m, err := c.AnalyticsService.GetPerformanceMetrics(ctx, territory.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, m.OpenLeads)

		require.NoError(t, c.Close())
	})

	t.Run("Error - Unsupported database driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DatabaseDriver = "oracle"
		_, err := New(cfg, prometheus.NewRegistry())
		assert.Error(t, err)
	})

	t.Run("Error - Invalid cron schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.OwnershipSyncSchedule = "nightly"
		_, err := New(cfg, prometheus.NewRegistry())
		assert.Error(t, err)
	})
}
