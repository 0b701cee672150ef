package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"github.com/jordanlanch/territoryengine/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func createTestTerritory(t *testing.T, s *TerritoryStore, name, status, owner string, offset time.Duration) *models.Territory {
	territory := &models.Territory{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      models.TerritoryTypeGeographic,
		Status:    status,
		UserID:    owner,
		CreatedAt: baseTime.Add(offset),
		UpdatedAt: baseTime.Add(offset),
	}
	require.NoError(t, s.Create(context.Background(), territory))
	return territory
}

func newAssignment(territoryID string, entityType models.EntityType, entityID string, at time.Time) *models.Assignment {
	return &models.Assignment{
		ID:             uuid.NewString(),
		TerritoryID:    territoryID,
		AssignableType: entityType,
		AssignableID:   entityID,
		AssignmentType: models.AssignmentTypeAutomatic,
		AssignedAt:     at,
	}
}

func TestTerritoryStore(t *testing.T) {
	db := testutil.OpenDB(t)
	s := NewTerritoryStore(db)
	ctx := context.Background()

	north := createTestTerritory(t, s, "North", models.TerritoryStatusActive, "u1", 0)
	south := createTestTerritory(t, s, "South", models.TerritoryStatusActive, "", time.Minute)
	createTestTerritory(t, s, "Closed", models.TerritoryStatusInactive, "u2", 2*time.Minute)

	t.Run("Success - Find", func(t *testing.T) {
		found, err := s.Find(ctx, north.ID)
		require.NoError(t, err)
		assert.Equal(t, "North", found.Name)
		assert.Equal(t, "u1", found.UserID)
		assert.True(t, found.CreatedAt.Equal(north.CreatedAt))
	})

	t.Run("Error - Find unknown territory", func(t *testing.T) {
		_, err := s.Find(ctx, uuid.NewString())
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Success - Active territories in creation order", func(t *testing.T) {
		active, err := s.GetActiveTerritories(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, north.ID, active[0].ID)
		assert.Equal(t, south.ID, active[1].ID)
	})

	t.Run("Success - FindWhere with owner filter", func(t *testing.T) {
		hasOwner := true
		owned, err := s.FindWhere(ctx, domain.TerritoryFilter{Status: models.TerritoryStatusActive, HasOwner: &hasOwner})
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, north.ID, owned[0].ID)

		all, err := s.FindWhere(ctx, domain.TerritoryFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Success - Update owner", func(t *testing.T) {
		south.UserID = "u9"
		require.NoError(t, s.Update(ctx, south))

		found, err := s.Find(ctx, south.ID)
		require.NoError(t, err)
		assert.Equal(t, "u9", found.UserID)
	})

	t.Run("Success - GetByType", func(t *testing.T) {
		geographic, err := s.GetByType(ctx, models.TerritoryTypeGeographic)
		require.NoError(t, err)
		assert.Len(t, geographic, 3)
	})

	t.Run("Error - Create rejects unknown type and status", func(t *testing.T) {
		invalid := []*models.Territory{
			{ID: uuid.NewString(), Name: "Mars", Type: "planetary", Status: models.TerritoryStatusActive},
			{ID: uuid.NewString(), Name: "Mars", Type: models.TerritoryTypeGeographic, Status: "paused"},
			{ID: uuid.NewString(), Name: "", Type: models.TerritoryTypeGeographic, Status: models.TerritoryStatusActive},
		}
		for _, territory := range invalid {
			err := s.Create(ctx, territory)
			assert.True(t, domain.IsValidation(err))
		}

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Error - Update rejects unknown status", func(t *testing.T) {
		changed := *north
		changed.Status = "archived"
		assert.True(t, domain.IsValidation(s.Update(ctx, &changed)))

		found, err := s.Find(ctx, north.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TerritoryStatusActive, found.Status)
	})
}

func TestRuleStore(t *testing.T) {
	db := testutil.OpenDB(t)
	territories := NewTerritoryStore(db)
	s := NewRuleStore(db)
	ctx := context.Background()

	territory := createTestTerritory(t, territories, "North", models.TerritoryStatusActive, "", 0)

	rules := []*models.Rule{
		{ID: uuid.NewString(), TerritoryID: territory.ID, Type: models.RuleTypeGeographic, Field: "country", Operator: models.OperatorEquals, Value: "US", Priority: 5, IsActive: true},
		{ID: uuid.NewString(), TerritoryID: territory.ID, Type: models.RuleTypeIndustry, Field: "industry", Operator: models.OperatorIn, Value: []string{"saas", "fintech"}, Priority: 10, IsActive: true},
		{ID: uuid.NewString(), TerritoryID: territory.ID, Type: models.RuleTypeGeographic, Field: "city", Operator: models.OperatorEquals, Value: "Austin", Priority: 99, IsActive: false},
	}
	for i, r := range rules {
		r.CreatedAt = baseTime.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Create(ctx, r))
	}

	t.Run("Success - Active rules by descending priority", func(t *testing.T) {
		active, err := s.GetActiveRulesByPriority(ctx, territory.ID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, 10, active[0].Priority)
		assert.Equal(t, []any{"saas", "fintech"}, active[0].Value)
		assert.Equal(t, "US", active[1].Value)
	})

	t.Run("Success - Filter by type", func(t *testing.T) {
		geographic, err := s.GetActiveRulesByType(ctx, models.RuleTypeGeographic)
		require.NoError(t, err)
		require.Len(t, geographic, 1)
		assert.Equal(t, "country", geographic[0].Field)

		industry, err := s.GetActiveRulesByTerritoryAndType(ctx, territory.ID, models.RuleTypeIndustry)
		require.NoError(t, err)
		assert.Len(t, industry, 1)
	})

	t.Run("Error - Create rejects unknown rule type", func(t *testing.T) {
		r := &models.Rule{ID: uuid.NewString(), TerritoryID: territory.ID, Type: "zodiac", Field: "sign", Operator: models.OperatorEquals, Value: "leo", IsActive: true}
		assert.True(t, domain.IsValidation(s.Create(ctx, r)))

		r.Type = models.RuleTypeCustom
		r.Operator = "sounds_like"
		assert.True(t, domain.IsValidation(s.Create(ctx, r)))

		active, err := s.GetActiveRulesByPriority(ctx, territory.ID)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})
}

func TestAssignmentStore(t *testing.T) {
	db := testutil.OpenDB(t)
	territories := NewTerritoryStore(db)
	s := NewAssignmentStore(db)
	ctx := context.Background()

	north := createTestTerritory(t, territories, "North", models.TerritoryStatusActive, "", 0)
	south := createTestTerritory(t, territories, "South", models.TerritoryStatusActive, "", time.Minute)

	t.Run("Success - Assign is idempotent for the same territory", func(t *testing.T) {
		first, err := s.Assign(ctx, newAssignment(north.ID, models.EntityTypeLead, "lead-1", baseTime))
		require.NoError(t, err)
		assert.True(t, first.Created)
		assert.Nil(t, first.Previous)

		second, err := s.Assign(ctx, newAssignment(north.ID, models.EntityTypeLead, "lead-1", baseTime.Add(time.Hour)))
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.Assignment.ID, second.Assignment.ID)

		history, err := s.GetAssignmentHistory(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("Success - Assign to another territory supersedes", func(t *testing.T) {
		res, err := s.Assign(ctx, newAssignment(south.ID, models.EntityTypeLead, "lead-1", baseTime.Add(2*time.Hour)))
		require.NoError(t, err)
		assert.True(t, res.Created)
		require.NotNil(t, res.Previous)
		assert.Equal(t, north.ID, res.Previous.TerritoryID)
		assert.False(t, res.Previous.IsCurrent)

		current, err := s.GetCurrentAssignment(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.Equal(t, south.ID, current.TerritoryID)

		history, err := s.GetAssignmentHistory(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].IsCurrent)
		assert.False(t, history[1].IsCurrent)
		require.NotNil(t, history[1].SupersededAt)
	})

	t.Run("Success - Reassign always creates a record", func(t *testing.T) {
		a := newAssignment(south.ID, models.EntityTypeLead, "lead-1", baseTime.Add(3*time.Hour))
		a.AssignmentType = models.AssignmentTypeManual
		res, err := s.Reassign(ctx, a)
		require.NoError(t, err)
		assert.True(t, res.Created)

		history, err := s.GetAssignmentHistory(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.Len(t, history, 3)

		current, err := s.GetAssignmentsByTerritory(ctx, south.ID)
		require.NoError(t, err)
		assert.Len(t, current, 1)
	})

	t.Run("Success - Territory and date range queries", func(t *testing.T) {
		_, err := s.Assign(ctx, newAssignment(north.ID, models.EntityTypePerson, "person-1", baseTime.Add(24*time.Hour)))
		require.NoError(t, err)

		inNorth, err := s.GetAssignmentsByTerritory(ctx, north.ID)
		require.NoError(t, err)
		require.Len(t, inNorth, 1)
		assert.Equal(t, "person-1", inNorth[0].AssignableID)

		window, err := s.GetAssignmentsByDateRange(ctx, north.ID, baseTime, baseTime.Add(12*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, window)

		window, err = s.GetAssignmentsByDateRange(ctx, north.ID, baseTime, baseTime.Add(48*time.Hour))
		require.NoError(t, err)
		assert.Len(t, window, 1)

		assigned, err := s.IsAssignedToTerritory(ctx, models.EntityTypePerson, "person-1", north.ID)
		require.NoError(t, err)
		assert.True(t, assigned)
	})

	t.Run("Success - Delete removes only the current record", func(t *testing.T) {
		deleted, err := s.DeleteByAssignable(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.True(t, deleted)

		current, err := s.GetCurrentAssignment(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.Nil(t, current)

		history, err := s.GetAssignmentHistory(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.Len(t, history, 2)

		deleted, err = s.DeleteByAssignable(ctx, models.EntityTypeLead, "lead-1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestAssignmentStore_ConcurrentAssign(t *testing.T) {
	db := testutil.OpenDB(t)
	territories := NewTerritoryStore(db)
	s := NewAssignmentStore(db)
	ctx := context.Background()

	north := createTestTerritory(t, territories, "North", models.TerritoryStatusActive, "", 0)
	south := createTestTerritory(t, territories, "South", models.TerritoryStatusActive, "", time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := north.ID
			if i%2 == 1 {
				target = south.ID
			}
			_, err := s.Assign(ctx, newAssignment(target, models.EntityTypeOrganization, "org-1", baseTime.Add(time.Duration(i)*time.Second)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := s.GetAssignmentHistory(ctx, models.EntityTypeOrganization, "org-1")
	require.NoError(t, err)

	current := 0
	for _, a := range history {
		if a.IsCurrent {
			current++
		}
	}
	assert.Equal(t, 1, current)
}

func TestEntityStores(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()

	leads := NewLeadStore(db)
	orgs := NewOrganizationStore(db)
	persons := NewPersonStore(db)

	lead := &models.Lead{ID: uuid.NewString(), Title: "Acme renewal", LeadValue: 1200.5, StageCode: models.StageWon, Country: "US", CreatedAt: baseTime, UpdatedAt: baseTime}
	require.NoError(t, leads.Create(ctx, lead))
	org := &models.Organization{ID: uuid.NewString(), Name: "Acme", EmployeeCount: 250, UserID: "u1", CreatedAt: baseTime, UpdatedAt: baseTime}
	require.NoError(t, orgs.Create(ctx, org))
	person := &models.Person{ID: uuid.NewString(), Name: "Sam Doe", OrganizationID: org.ID, CreatedAt: baseTime, UpdatedAt: baseTime}
	require.NoError(t, persons.Create(ctx, person))

	t.Run("Success - Lead round trip", func(t *testing.T) {
		found, err := leads.Find(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, 1200.5, found.LeadValue)
		assert.Empty(t, found.UserID)

		found.SetOwnerID("u7")
		require.NoError(t, leads.Save(ctx, found))

		byIDs, err := leads.FindByIDs(ctx, []string{lead.ID, uuid.NewString()})
		require.NoError(t, err)
		require.Len(t, byIDs, 1)
		assert.Equal(t, "u7", byIDs[0].UserID)

		none, err := leads.FindByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Success - Organization and person", func(t *testing.T) {
		foundOrg, err := orgs.Find(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, 250, foundOrg.EmployeeCount)
		assert.Equal(t, "u1", foundOrg.OwnerID())

		foundPerson, err := persons.Find(ctx, person.ID)
		require.NoError(t, err)
		assert.Equal(t, org.ID, foundPerson.OrganizationID)
	})

	t.Run("Error - Save unknown entity", func(t *testing.T) {
		err := persons.Save(ctx, &models.Person{ID: uuid.NewString(), Name: "Ghost"})
		assert.True(t, domain.IsNotFound(err))

		_, err = orgs.Find(ctx, uuid.NewString())
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestLeadStore_FindByIDsAcrossBatches(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	leads := NewLeadStore(db)

	n := 2*lookupBatchSize + 3
	ids := make([]string, n)
	for i := range ids {
		at := baseTime.Add(time.Duration(i) * time.Second)
		lead := &models.Lead{ID: uuid.NewString(), Title: "Batch", StageCode: models.StageNew, CreatedAt: at, UpdatedAt: at}
		require.NoError(t, leads.Create(ctx, lead))
		ids[i] = lead.ID
	}

	// Request newest first so batches come back out of creation order
	reversed := make([]string, n)
	for i, id := range ids {
		reversed[n-1-i] = id
	}

	found, err := leads.FindByIDs(ctx, reversed)
	require.NoError(t, err)
	require.Len(t, found, n)
	for i, l := range found {
		assert.Equal(t, ids[i], l.ID)
	}
}

func TestAssignmentStore_RacingWriter(t *testing.T) {
	db := testutil.OpenDB(t)
	territories := NewTerritoryStore(db)
	s := NewAssignmentStore(db)
	ctx := context.Background()

	north := createTestTerritory(t, territories, "North", models.TerritoryStatusActive, "", 0)
	south := createTestTerritory(t, territories, "South", models.TerritoryStatusActive, "", time.Minute)

	// rival makes another current row for the entity inside the writer's transaction
	rival := func(entityID string, times int) func(context.Context, dialect.ExecQuerier) error {
		calls := 0
		return func(ctx context.Context, tx dialect.ExecQuerier) error {
			calls++
			if calls > times {
				return nil
			}
			query, args := sql.Dialect(db.Dialect()).
				Insert(assignmentsTable).
				Columns(assignmentColumns[:8]...).
				Values(uuid.NewString(), south.ID, string(models.EntityTypeLead), entityID, nil,
					models.AssignmentTypeAutomatic, baseTime, true).
				Query()
			return tx.Exec(ctx, query, args, nil)
		}
	}

	t.Run("Success - Retry wins after one lost race", func(t *testing.T) {
		s.beforeInsert = rival("lead-race-1", 1)
		defer func() { s.beforeInsert = nil }()

		res, err := s.Assign(ctx, newAssignment(north.ID, models.EntityTypeLead, "lead-race-1", baseTime))
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, north.ID, res.Assignment.TerritoryID)
	})

	t.Run("Error - Conflict when the retry also loses", func(t *testing.T) {
		s.beforeInsert = rival("lead-race-2", 2)
		defer func() { s.beforeInsert = nil }()

		_, err := s.Assign(ctx, newAssignment(north.ID, models.EntityTypeLead, "lead-race-2", baseTime))
		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))

		current, err := s.GetCurrentAssignment(ctx, models.EntityTypeLead, "lead-race-2")
		require.NoError(t, err)
		assert.Nil(t, current)
	})
}
