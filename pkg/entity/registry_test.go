package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/territoryengine/pkg/models"
	"github.com/jordanlanch/territoryengine/pkg/store"
	"github.com/jordanlanch/territoryengine/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quote is assignable but carries no owner.
type quote struct{ id string }

func (q *quote) EntityType() models.EntityType { return "quote" }
func (q *quote) EntityID() string              { return q.id }
func (q *quote) Attributes() map[string]any    { return map[string]any{"id": q.id} }

type failingLeads struct {
	*store.LeadStore
}

func (f failingLeads) Save(ctx context.Context, l *models.Lead) error {
	return errors.New("disk full")
}

func setupRegistry(t *testing.T) (*Registry, *store.LeadStore, *store.OrganizationStore, *store.PersonStore) {
	db := testutil.OpenDB(t)
	leads := store.NewLeadStore(db)
	orgs := store.NewOrganizationStore(db)
	persons := store.NewPersonStore(db)
	return NewRegistry(leads, orgs, persons), leads, orgs, persons
}

func TestRegistry_Resolve(t *testing.T) {
	registry, leads, orgs, _ := setupRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	lead := &models.Lead{ID: uuid.NewString(), Title: "Renewal", StageCode: models.StageNew, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, leads.Create(ctx, lead))
	org := &models.Organization{ID: uuid.NewString(), Name: "Acme", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, orgs.Create(ctx, org))

	t.Run("Success - Known types", func(t *testing.T) {
		e, err := registry.Resolve(ctx, models.EntityTypeLead, lead.ID)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, lead.ID, e.EntityID())

		e, err = registry.ResolveAssignment(ctx, &models.Assignment{AssignableType: models.EntityTypeOrganization, AssignableID: org.ID})
		require.NoError(t, err)
		assert.Equal(t, models.EntityTypeOrganization, e.EntityType())
	})

	t.Run("Success - Unknown type and missing row resolve to nil", func(t *testing.T) {
		e, err := registry.Resolve(ctx, "quote", "q1")
		require.NoError(t, err)
		assert.Nil(t, e)

		e, err = registry.Resolve(ctx, models.EntityTypePerson, uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, e)
	})
}

func TestRegistry_TransferOwnership(t *testing.T) {
	registry, leads, orgs, persons := setupRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	lead := &models.Lead{ID: uuid.NewString(), Title: "Renewal", StageCode: models.StageNew, UserID: "old", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, leads.Create(ctx, lead))

	t.Run("Success - Owner changes and persists", func(t *testing.T) {
		changed, err := registry.TransferOwnership(ctx, lead, "new")
		require.NoError(t, err)
		assert.True(t, changed)

		stored, err := leads.Find(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", stored.UserID)
	})

	t.Run("Success - Same owner is a no-op", func(t *testing.T) {
		changed, err := registry.TransferOwnership(ctx, lead, "new")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Success - Non-ownable entity is a silent no-op", func(t *testing.T) {
		changed, err := registry.TransferOwnership(ctx, &quote{id: "q1"}, "new")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Error - Failed save restores the owner", func(t *testing.T) {
		broken := NewRegistry(failingLeads{leads}, orgs, persons)
		changed, err := broken.TransferOwnership(ctx, lead, "other")
		assert.Error(t, err)
		assert.False(t, changed)
		assert.Equal(t, "new", lead.UserID)
	})
}
