// Package containers manages logic containers: user-defined groupings of
// protected resources with a criticality and an owner.
package containers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

var (
	// ErrDuplicateID is wrapped by DuplicateIDError.
	ErrDuplicateID = errors.New("container id already exists")
	// ErrNotFound is returned when a container does not exist.
	ErrNotFound = errors.New("container not found")
	// ErrInvalid is returned for containers that fail validation.
	ErrInvalid = errors.New("invalid container")
)

// DuplicateIDError reports a create that would overwrite another container.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("container %q already exists", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// Defaults are seeded when the registry is empty.
var Defaults = []models.LogicContainer{
	{ID: "default", Name: "Default", Color: "#9e9e9e", Criticality: models.CriticalityNone, IsDefault: true,
		Description: "Resources not yet assigned to a lifecycle"},
	{ID: "production", Name: "Production", Color: "#d32f2f", Criticality: models.CriticalityCritical,
		Description: "Resources that can reach production"},
	{ID: "non-production", Name: "Non-Production", Color: "#388e3c", Criticality: models.CriticalityLow,
		Description: "Development and test resources"},
}

// Registry is safe for concurrent use.
type Registry struct {
	store *store.Store
	now   func() time.Time

	mu    sync.Mutex
	index *Index
}

// NewRegistry returns a Registry over s.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{store: s, now: time.Now}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a container id from its name.
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// List returns every container, most critical first, then by name.
func (r *Registry) List(ctx context.Context) ([]models.LogicContainer, error) {
	list, err := store.AllAs[models.LogicContainer](ctx, r.store, store.LogicContainers, "", nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		wi, wj := list[i].Criticality.Weight(), list[j].Criticality.Weight()
		if wi != wj {
			return wi > wj
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

// Get returns ErrNotFound when id does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*models.LogicContainer, error) {
	c, err := store.GetAs[models.LogicContainer](ctx, r.store, store.LogicContainers, store.K(id))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

func validate(c *models.LogicContainer) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if c.Criticality == "" {
		c.Criticality = models.CriticalityNone
	}
	if !c.Criticality.Valid() {
		return fmt.Errorf("%w: unknown criticality %q", ErrInvalid, c.Criticality)
	}
	if c.Projects == nil {
		c.Projects = []string{}
	}
	if c.Resources == nil {
		c.Resources = []string{}
	}
	return nil
}

// Create stores a new container. The id is derived from the name when
// empty. An existing id fails with *DuplicateIDError.
func (r *Registry) Create(ctx context.Context, c models.LogicContainer) (*models.LogicContainer, error) {
	if c.ID == "" {
		c.ID = Slug(c.Name)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: id or name is required", ErrInvalid)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.Get(ctx, store.LogicContainers, store.K(c.ID))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateIDError{ID: c.ID}
	}
	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.IsDefault {
		if err := r.clearDefault(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	if err := r.store.PutValue(ctx, store.LogicContainers, c); err != nil {
		return nil, err
	}
	r.index = nil
	slog.Info("Container created", "id", c.ID, "criticality", c.Criticality)
	return &c, nil
}

// immutable fields cannot be changed through Update.
var immutable = map[string]bool{"id": true, "created_at": true}

// Update shallow-merges fields over the stored container.
func (r *Registry) Update(ctx context.Context, id string, fields map[string]any) (*models.LogicContainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var merged models.LogicContainer
	_, err := r.store.Update(ctx, store.LogicContainers, store.K(id), func(rec store.Record) (store.Record, error) {
		for k, v := range fields {
			if immutable[k] {
				continue
			}
			rec[k] = v
		}
		if err := store.ToStruct(rec, &merged); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := validate(&merged); err != nil {
			return nil, err
		}
		merged.UpdatedAt = r.now().UTC()
		return store.FromStruct(merged)
	})
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if merged.IsDefault {
		if err := r.clearDefault(ctx, id); err != nil {
			return nil, err
		}
	}
	r.index = nil
	return &merged, nil
}

// clearDefault unsets is_default on every container except keep.
func (r *Registry) clearDefault(ctx context.Context, keep string) error {
	list, err := store.AllAs[models.LogicContainer](ctx, r.store, store.LogicContainers, "", nil)
	if err != nil {
		return err
	}
	for _, c := range list {
		if c.ID == keep || !c.IsDefault {
			continue
		}
		c.IsDefault = false
		c.UpdatedAt = r.now().UTC()
		if err := r.store.PutValue(ctx, store.LogicContainers, c); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a container. Membership lives on the container, so no
// other record needs updating.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Delete(ctx, store.LogicContainers, store.K(id)); err != nil {
		return err
	}
	r.index = nil
	return nil
}

// AddResource adds (t, id) to a container. Adding a member twice is a no-op.
func (r *Registry) AddResource(ctx context.Context, containerID string, t models.ResourceType, id models.ID) (*models.LogicContainer, error) {
	return r.mutateMembers(ctx, containerID, func(c *models.LogicContainer) bool {
		if c.Contains(t, id) {
			return false
		}
		c.Resources = append(c.Resources, models.QualifiedID(t, id))
		return true
	})
}

// RemoveResource removes (t, id), including a legacy unqualified entry for
// the same id. Removing a non-member is a no-op.
func (r *Registry) RemoveResource(ctx context.Context, containerID string, t models.ResourceType, id models.ID) (*models.LogicContainer, error) {
	q := models.QualifiedID(t, id)
	return r.mutateMembers(ctx, containerID, func(c *models.LogicContainer) bool {
		kept := c.Resources[:0:0]
		for _, entry := range c.Resources {
			if entry == q || entry == string(id) {
				continue
			}
			kept = append(kept, entry)
		}
		changed := len(kept) != len(c.Resources)
		c.Resources = kept
		return changed
	})
}

func (r *Registry) mutateMembers(ctx context.Context, containerID string, fn func(*models.LogicContainer) bool) (*models.LogicContainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out models.LogicContainer
	_, err := r.store.Update(ctx, store.LogicContainers, store.K(containerID), func(rec store.Record) (store.Record, error) {
		if err := store.ToStruct(rec, &out); err != nil {
			return nil, err
		}
		if fn(&out) {
			out.UpdatedAt = r.now().UTC()
		}
		return store.FromStruct(out)
	})
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, containerID)
	}
	if err != nil {
		return nil, err
	}
	r.index = nil
	return &out, nil
}

// Index returns the inverse membership index, rebuilding it after changes.
func (r *Registry) Index(ctx context.Context) (*Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		return r.index, nil
	}
	list, err := store.AllAs[models.LogicContainer](ctx, r.store, store.LogicContainers, "", nil)
	if err != nil {
		return nil, err
	}
	r.index = NewIndex(list)
	return r.index, nil
}

// ContainersForResource returns the containers holding (t, id).
func (r *Registry) ContainersForResource(ctx context.Context, t models.ResourceType, id models.ID) ([]models.LogicContainer, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.LogicContainer
	for _, cid := range idx.ContainersOf(t, id) {
		c, err := r.Get(ctx, cid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// ResourcesForContainer returns a container's membership entries.
func (r *Registry) ResourcesForContainer(ctx context.Context, id string) ([]string, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Resources, nil
}

// EnsureDefaults seeds Defaults when no container exists yet.
func (r *Registry) EnsureDefaults(ctx context.Context) error {
	n, err := r.store.Count(ctx, store.LogicContainers, "", nil)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, c := range Defaults {
		if _, err := r.Create(ctx, c); err != nil && !errors.Is(err, ErrDuplicateID) {
			return err
		}
	}
	slog.Debug("Seeded default containers", "count", len(Defaults))
	return nil
}
