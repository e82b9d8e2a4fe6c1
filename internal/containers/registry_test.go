package containers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	e, err := store.OpenBadger(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	s := store.New(e, nil)
	t.Cleanup(func() { s.Close() })
	r := NewRegistry(s)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestCreateDerivesIDAndRejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	c, err := r.Create(ctx, models.LogicContainer{Name: "Payments Prod", Criticality: models.CriticalityHigh})
	require.NoError(t, err)
	assert.Equal(t, "payments-prod", c.ID)
	assert.Equal(t, []string{}, c.Resources)
	assert.False(t, c.CreatedAt.IsZero())

	_, err = r.Create(ctx, models.LogicContainer{Name: "Payments  PROD!"})
	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "payments-prod", dup.ID)
	assert.ErrorIs(t, err, ErrDuplicateID)

	got, err := r.Get(ctx, "payments-prod")
	require.NoError(t, err)
	assert.Equal(t, models.CriticalityHigh, got.Criticality, "the original survives")

	_, err = r.Create(ctx, models.LogicContainer{Name: "x", Criticality: "apocalyptic"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = r.Create(ctx, models.LogicContainer{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateShallowMerges(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, models.LogicContainer{ID: "c1", Name: "One", Color: "#fff", Owner: "team-a"})
	require.NoError(t, err)

	c, err := r.Update(ctx, "c1", map[string]any{"color": "#000", "id": "hijack", "criticality": "medium"})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "#000", c.Color)
	assert.Equal(t, "team-a", c.Owner)
	assert.Equal(t, models.CriticalityMedium, c.Criticality)

	_, err = r.Update(ctx, "missing", map[string]any{"color": "#000"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Update(ctx, "c1", map[string]any{"criticality": "bogus"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestOnlyOneDefault(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.EnsureDefaults(ctx))
	_, err := r.Create(ctx, models.LogicContainer{ID: "new", Name: "New", IsDefault: true})
	require.NoError(t, err)

	list, err := r.List(ctx)
	require.NoError(t, err)
	var defaults []string
	for _, c := range list {
		if c.IsDefault {
			defaults = append(defaults, c.ID)
		}
	}
	assert.Equal(t, []string{"new"}, defaults)

	_, err = r.Update(ctx, "production", map[string]any{"is_default": true})
	require.NoError(t, err)
	def, err := r.Get(ctx, "new")
	require.NoError(t, err)
	assert.False(t, def.IsDefault)
}

func TestEnsureDefaultsSeedsOnce(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.EnsureDefaults(ctx))
	require.NoError(t, r.Delete(ctx, "default"))
	require.NoError(t, r.EnsureDefaults(ctx))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(Defaults)-1)
	assert.Equal(t, "production", list[0].ID, "most critical first")
}

func TestMembershipIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, models.LogicContainer{ID: "c1", Name: "One"})
	require.NoError(t, err)

	_, err = r.AddResource(ctx, "c1", models.ResourceEndpoint, "5")
	require.NoError(t, err)
	c, err := r.AddResource(ctx, "c1", models.ResourceEndpoint, "5")
	require.NoError(t, err)
	assert.Equal(t, []string{"endpoint:5"}, c.Resources)

	c, err = r.AddResource(ctx, "c1", models.ResourcePoolMerged, "5")
	require.NoError(t, err)
	assert.Equal(t, []string{"endpoint:5", "pools:5"}, c.Resources)

	c, err = r.RemoveResource(ctx, "c1", models.ResourceEndpoint, "5")
	require.NoError(t, err)
	c, err = r.RemoveResource(ctx, "c1", models.ResourceEndpoint, "5")
	require.NoError(t, err)
	assert.Equal(t, []string{"pools:5"}, c.Resources)

	_, err = r.AddResource(ctx, "missing", models.ResourceEndpoint, "5")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContainersForResourceUsesTypedMembership(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "legacy"} {
		_, err := r.Create(ctx, models.LogicContainer{ID: id, Name: id})
		require.NoError(t, err)
	}
	_, err := r.AddResource(ctx, "a", models.ResourceEndpoint, "5")
	require.NoError(t, err)
	_, err = r.AddResource(ctx, "b", models.ResourceVariableGroup, "5")
	require.NoError(t, err)
	_, err = r.Update(ctx, "legacy", map[string]any{"resources": []any{"5"}})
	require.NoError(t, err)

	got, err := r.ContainersForResource(ctx, models.ResourceEndpoint, "5")
	require.NoError(t, err)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a", "legacy"}, ids)

	idx, err := r.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Count(models.ResourceVariableGroup, "5"))
	assert.Equal(t, 0, idx.Count(models.ResourceEndpoint, "6"))
	assert.True(t, idx.Has("b", models.ResourceVariableGroup, "5"))
	assert.False(t, idx.Has("b", models.ResourceEndpoint, "5"))

	// Deleting a container refreshes the index.
	require.NoError(t, r.Delete(ctx, "legacy"))
	idx, err = r.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, idx.ContainersOf(models.ResourceEndpoint, "5"))

	members, err := r.ResourcesForContainer(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"endpoint:5"}, members)
}
