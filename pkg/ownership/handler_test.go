package ownership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/entity"
	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"github.com/jordanlanch/territoryengine/pkg/store"
	"github.com/jordanlanch/territoryengine/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPersons struct {
	*store.PersonStore
	failID string
}

func (f flakyPersons) Save(ctx context.Context, p *models.Person) error {
	if p.ID == f.failID {
		return errors.New("deadlock detected")
	}
	return f.PersonStore.Save(ctx, p)
}

type testEnv struct {
	handler       *Handler
	territories   *store.TerritoryStore
	assignments   *store.AssignmentStore
	leads         *store.LeadStore
	organizations *store.OrganizationStore
	persons       *store.PersonStore
	created       time.Time
}

func setupTestEnv(t *testing.T, failPersonSave string) *testEnv {
	db := testutil.OpenDB(t)
	env := &testEnv{
		territories:   store.NewTerritoryStore(db),
		assignments:   store.NewAssignmentStore(db),
		leads:         store.NewLeadStore(db),
		organizations: store.NewOrganizationStore(db),
		persons:       store.NewPersonStore(db),
		created:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	var persons domain.PersonRepository = env.persons
	if failPersonSave != "" {
		persons = flakyPersons{PersonStore: env.persons, failID: failPersonSave}
	}
	registry := entity.NewRegistry(env.leads, env.organizations, persons)
	env.handler = NewHandler(env.territories, env.assignments, registry, logger.Nop())
	return env
}

func (env *testEnv) tick() time.Time {
	env.created = env.created.Add(time.Second)
	return env.created
}

func (env *testEnv) createTerritory(t *testing.T, name, owner string) *models.Territory {
	at := env.tick()
	territory := &models.Territory{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      models.TerritoryTypeAccountBased,
		Status:    models.TerritoryStatusActive,
		UserID:    owner,
		CreatedAt: at,
		UpdatedAt: at,
	}
	require.NoError(t, env.territories.Create(context.Background(), territory))
	return territory
}

func (env *testEnv) assign(t *testing.T, territoryID string, e models.Assignable) {
	_, err := env.assignments.Assign(context.Background(), &models.Assignment{
		ID:             uuid.NewString(),
		TerritoryID:    territoryID,
		AssignableType: e.EntityType(),
		AssignableID:   e.EntityID(),
		AssignmentType: models.AssignmentTypeManual,
		AssignedAt:     env.tick(),
	})
	require.NoError(t, err)
}

func (env *testEnv) leadIn(t *testing.T, territoryID, id, owner string) *models.Lead {
	at := env.tick()
	lead := &models.Lead{ID: id, Title: id, StageCode: models.StageNew, UserID: owner, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, env.leads.Create(context.Background(), lead))
	env.assign(t, territoryID, lead)
	return lead
}

func (env *testEnv) orgIn(t *testing.T, territoryID, id, owner string) *models.Organization {
	at := env.tick()
	org := &models.Organization{ID: id, Name: id, UserID: owner, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, env.organizations.Create(context.Background(), org))
	env.assign(t, territoryID, org)
	return org
}

func (env *testEnv) personIn(t *testing.T, territoryID, id, owner string) *models.Person {
	at := env.tick()
	person := &models.Person{ID: id, Name: id, UserID: owner, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, env.persons.Create(context.Background(), person))
	env.assign(t, territoryID, person)
	return person
}

func (env *testEnv) leadOwner(t *testing.T, id string) string {
	lead, err := env.leads.Find(context.Background(), id)
	require.NoError(t, err)
	return lead.UserID
}

func TestHandler_HandleTerritoryOwnerChange(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Updates only entities not owned by the new owner", func(t *testing.T) {
		env := setupTestEnv(t, "")
		territory := env.createTerritory(t, "Enterprise", "old")
		env.leadIn(t, territory.ID, "l1", "old")
		env.leadIn(t, territory.ID, "l2", "old")
		env.leadIn(t, territory.ID, "l3", "new")

		result, err := env.handler.HandleTerritoryOwnerChange(ctx, territory.ID, "old", "new")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 2, result.UpdatedCount)
		assert.Empty(t, result.Failures)

		for _, id := range []string{"l1", "l2", "l3"} {
			assert.Equal(t, "new", env.leadOwner(t, id))
		}
	})

	t.Run("Success - Same owner is a no-op", func(t *testing.T) {
		env := setupTestEnv(t, "")
		territory := env.createTerritory(t, "Enterprise", "old")
		env.leadIn(t, territory.ID, "l1", "someone")

		result, err := env.handler.HandleTerritoryOwnerChange(ctx, territory.ID, "old", "old")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Zero(t, result.UpdatedCount)
		assert.Equal(t, "someone", env.leadOwner(t, "l1"))
	})

	t.Run("Success - Missing new owner is a no-op", func(t *testing.T) {
		env := setupTestEnv(t, "")
		result, err := env.handler.HandleTerritoryOwnerChange(ctx, uuid.NewString(), "old", "")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Zero(t, result.UpdatedCount)
	})
}

func TestHandler_TransferTerritoryEntitiesOwnership(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Failure on one entity does not stop the batch", func(t *testing.T) {
		env := setupTestEnv(t, "p1")
		territory := env.createTerritory(t, "Mid Market", "")
		env.leadIn(t, territory.ID, "l1", "a")
		env.personIn(t, territory.ID, "p1", "b")
		env.orgIn(t, territory.ID, "o1", "c")

		result, err := env.handler.TransferTerritoryEntitiesOwnership(ctx, territory.ID, "z")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 2, result.UpdatedCount)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "p1", result.Failures[0].EntityID)

		person, err := env.persons.Find(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "b", person.UserID)

		org, err := env.organizations.Find(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, "z", org.UserID)
	})

	t.Run("Error - Unknown territory", func(t *testing.T) {
		env := setupTestEnv(t, "")
		_, err := env.handler.TransferTerritoryEntitiesOwnership(ctx, uuid.NewString(), "z")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Error - Missing owner", func(t *testing.T) {
		env := setupTestEnv(t, "")
		_, err := env.handler.TransferTerritoryEntitiesOwnership(ctx, uuid.NewString(), "")
		assert.True(t, domain.IsValidation(err))
	})
}

func TestHandler_SyncTerritoryOwnership(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Aligns entities with territory owner", func(t *testing.T) {
		env := setupTestEnv(t, "")
		territory := env.createTerritory(t, "SMB", "u")
		env.leadIn(t, territory.ID, "l1", "v")
		env.leadIn(t, territory.ID, "l2", "")

		result, err := env.handler.SyncTerritoryOwnership(ctx, territory.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, result.UpdatedCount)
		assert.Equal(t, "u", env.leadOwner(t, "l1"))
		assert.Equal(t, "u", env.leadOwner(t, "l2"))
	})

	t.Run("Error - Territory without owner", func(t *testing.T) {
		env := setupTestEnv(t, "")
		territory := env.createTerritory(t, "Unowned", "")

		_, err := env.handler.SyncTerritoryOwnership(ctx, territory.ID)
		assert.ErrorIs(t, err, domain.ErrTerritoryHasNoOwner)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestHandler_BulkTransferOwnership(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, "")
	east := env.createTerritory(t, "East", "a")
	west := env.createTerritory(t, "West", "b")
	env.leadIn(t, east.ID, "l1", "a")
	env.leadIn(t, west.ID, "l2", "b")
	env.leadIn(t, west.ID, "l3", "b")

	missing := uuid.NewString()
	result, err := env.handler.BulkTransferOwnership(ctx, []string{east.ID, missing, west.ID}, "c")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.TotalUpdated)
	require.Len(t, result.Results, 3)
	assert.Equal(t, 1, result.Results[0].Result.UpdatedCount)
	assert.Equal(t, missing, result.Results[1].TerritoryID)
	assert.NotEmpty(t, result.Results[1].Error)
	assert.Equal(t, 2, result.Results[2].Result.UpdatedCount)
}

func TestHandler_Diagnostics(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, "")

	owned := env.createTerritory(t, "Owned", "u")
	env.leadIn(t, owned.ID, "l1", "u")
	env.orgIn(t, owned.ID, "o1", "v")
	env.personIn(t, owned.ID, "p1", "")

	clean := env.createTerritory(t, "Clean", "w")
	env.leadIn(t, clean.ID, "l2", "w")

	unowned := env.createTerritory(t, "Unowned", "")
	env.leadIn(t, unowned.ID, "l3", "x")

	t.Run("Success - Ownership statistics", func(t *testing.T) {
		stats, err := env.handler.GetOwnershipStatistics(ctx, owned.ID)
		require.NoError(t, err)
		assert.Equal(t, &OwnershipStatistics{
			TerritoryID:         owned.ID,
			TerritoryOwnerID:    "u",
			TotalAssignments:    3,
			CorrectOwnerCount:   1,
			IncorrectOwnerCount: 1,
			NoOwnerCount:        1,
		}, stats)
	})

	t.Run("Success - Entities needing sync", func(t *testing.T) {
		candidates, err := env.handler.GetEntitiesNeedingOwnershipSync(ctx, owned.ID)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "o1", candidates[0].Entity.EntityID())
		assert.Equal(t, "v", candidates[0].CurrentOwnerID)
		assert.Equal(t, "u", candidates[0].ExpectedOwnerID)
		assert.Equal(t, "p1", candidates[1].Entity.EntityID())

		none, err := env.handler.GetEntitiesNeedingOwnershipSync(ctx, unowned.ID)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Success - Territories with mismatches", func(t *testing.T) {
		mismatches, err := env.handler.GetTerritoriesWithOwnershipMismatches(ctx)
		require.NoError(t, err)
		require.Len(t, mismatches, 1)
		assert.Equal(t, owned.ID, mismatches[0].Territory.ID)
		assert.Equal(t, 2, mismatches[0].MismatchCount)
	})

	t.Run("Error - Statistics for unknown territory", func(t *testing.T) {
		_, err := env.handler.GetOwnershipStatistics(ctx, uuid.NewString())
		assert.True(t, domain.IsNotFound(err))
	})
}
