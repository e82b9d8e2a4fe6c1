package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResourceType identifies a protected resource variant. It is part of the
// resource primary key because IDs are only unique within a type.
type ResourceType string

const (
	ResourceEndpoint      ResourceType = "endpoint"
	ResourceVariableGroup ResourceType = "variablegroup"
	ResourceSecureFile    ResourceType = "securefile"
	ResourceRepository    ResourceType = "repository"
	ResourcePool          ResourceType = "pools"       // storage bucket for agent pools
	ResourcePoolMerged    ResourceType = "pool_merged" // selection/permission alias for pools
	ResourceQueue         ResourceType = "queue"
	ResourceEnvironment   ResourceType = "environment"
)

// StoredResourceTypes lists every bucket a resource can be stored under.
var StoredResourceTypes = []ResourceType{
	ResourceEndpoint,
	ResourceVariableGroup,
	ResourceSecureFile,
	ResourceRepository,
	ResourcePool,
	ResourceQueue,
	ResourceEnvironment,
}

// Storage returns the bucket the type is stored under (pool_merged → pools).
func (t ResourceType) Storage() ResourceType {
	if t == ResourcePoolMerged {
		return ResourcePool
	}
	return t
}

// Known reports whether t (after aliasing) names a stored resource bucket.
func (t ResourceType) Known() bool {
	s := t.Storage()
	for _, k := range StoredResourceTypes {
		if s == k {
			return true
		}
	}
	return false
}

// IsPool reports whether t refers to agent pools under either name.
func (t ResourceType) IsPool() bool { return t.Storage() == ResourcePool }

func (t ResourceType) String() string { return string(t) }

// Protection states precomputed at ingest.
const (
	ProtectedStateProtected   = "protected"
	ProtectedStateUnprotected = "unprotected"
)

// Check is an approval or gate configured on a protected resource.
type Check struct {
	ID       ID             `json:"id"`
	Type     string         `json:"type"`
	Enabled  *bool          `json:"enabled,omitempty"`
	Timeout  int            `json:"timeout,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// ResourceBase carries the fields shared by every protected resource variant.
type ResourceBase struct {
	Organisation        string       `json:"organisation"`
	ResourceType        ResourceType `json:"resourceType"`
	ID                  ID           `json:"id"`
	Name                string       `json:"name"`
	URL                 string       `json:"url,omitempty"`
	WebURL              string       `json:"webUrl,omitempty"`
	Project             *ProjectRef  `json:"k_project,omitempty"`
	ProjectRefs         []ProjectRef `json:"k_projects_refs,omitempty"`
	PipelinePermissions []ID         `json:"pipelinepermissions"`
	Checks              []Check      `json:"checks,omitempty"`
	ProtectedState      string       `json:"protectedState,omitempty"`
	IsCrossProject      bool         `json:"isCrossProject"`
	IsOpenAllPipelines  bool         `json:"isOpenAllPipelines"`
}

// Base returns the shared portion of the resource.
func (b *ResourceBase) Base() *ResourceBase { return b }

// ProjectIDs returns the projects the resource belongs to. Multi-project
// resources use k_projects_refs; single-project ones use k_project.
func (b *ResourceBase) ProjectIDs() []string {
	if len(b.ProjectRefs) > 0 {
		ids := make([]string, 0, len(b.ProjectRefs))
		for _, p := range b.ProjectRefs {
			if p.ID != "" {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}
	if b.Project != nil && b.Project.ID != "" {
		return []string{b.Project.ID}
	}
	return nil
}

// Resource is the tagged union over protected resource variants.
type Resource interface {
	Kind() ResourceType
	Base() *ResourceBase
	ProjectIDs() []string
}

// Endpoint is a service connection.
type Endpoint struct {
	ResourceBase
	Type                string    `json:"type,omitempty"` // azurerm | github | kubernetes | ...
	Owner               string    `json:"owner,omitempty"`
	AuthorizationScheme string    `json:"authorizationScheme,omitempty"`
	IsShared            bool      `json:"isShared,omitempty"`
	IsReady             bool      `json:"isReady,omitempty"`
	CreatedBy           *Identity `json:"createdBy,omitempty"`
}

func (*Endpoint) Kind() ResourceType { return ResourceEndpoint }

// Variable is one entry of a variable group.
type Variable struct {
	Value    string `json:"value,omitempty"`
	IsSecret bool   `json:"isSecret,omitempty"`
}

// VariableGroup is a library variable group.
type VariableGroup struct {
	ResourceBase
	Type        string              `json:"type,omitempty"` // Vsts | AzureKeyVault
	Description string              `json:"description,omitempty"`
	Variables   map[string]Variable `json:"variables,omitempty"`
}

func (*VariableGroup) Kind() ResourceType { return ResourceVariableGroup }

// SecureFile is a library secure file.
type SecureFile struct {
	ResourceBase
	CreatedBy  *Identity `json:"createdBy,omitempty"`
	ModifiedOn string    `json:"modifiedOn,omitempty"`
}

func (*SecureFile) Kind() ResourceType { return ResourceSecureFile }

// Repository is a git repository. Branches are only populated on reads that
// ask for them; they are stored in their own collection.
type Repository struct {
	ResourceBase
	DefaultBranch string   `json:"defaultBranch,omitempty"`
	RemoteURL     string   `json:"remoteUrl,omitempty"`
	Size          int64    `json:"size,omitempty"`
	IsDisabled    bool     `json:"isDisabled,omitempty"`
	Branches      []Branch `json:"branches,omitempty"`
}

func (*Repository) Kind() ResourceType { return ResourceRepository }

// PoolQueue is a project-scoped queue belonging to an agent pool.
type PoolQueue struct {
	ID        ID     `json:"id"`
	Name      string `json:"name,omitempty"`
	ProjectID string `json:"projectId"`
}

// Pool is an organisation-level agent pool. It is associated with projects
// through its queues rather than a direct project reference.
type Pool struct {
	ResourceBase
	IsHosted bool        `json:"isHosted"`
	PoolType string      `json:"poolType,omitempty"` // automation | deployment
	Size     int         `json:"size,omitempty"`
	Queues   []PoolQueue `json:"queues,omitempty"`
}

func (*Pool) Kind() ResourceType { return ResourcePool }

// ProjectIDs returns the distinct projects of the pool's queues.
func (p *Pool) ProjectIDs() []string {
	seen := make(map[string]bool, len(p.Queues))
	var ids []string
	for _, q := range p.Queues {
		if q.ProjectID == "" || seen[q.ProjectID] {
			continue
		}
		seen[q.ProjectID] = true
		ids = append(ids, q.ProjectID)
	}
	return ids
}

// PoolRef points from a queue to its pool.
type PoolRef struct {
	ID       ID     `json:"id"`
	Name     string `json:"name,omitempty"`
	IsHosted bool   `json:"isHosted,omitempty"`
}

// Queue is a project agent queue.
type Queue struct {
	ResourceBase
	Pool *PoolRef `json:"pool,omitempty"`
}

func (*Queue) Kind() ResourceType { return ResourceQueue }

// Environment is a deployment environment.
type Environment struct {
	ResourceBase
	Description string `json:"description,omitempty"`
}

func (*Environment) Kind() ResourceType { return ResourceEnvironment }

// NewResource returns an empty variant for t, or an error for unknown types.
func NewResource(t ResourceType) (Resource, error) {
	switch t.Storage() {
	case ResourceEndpoint:
		return &Endpoint{}, nil
	case ResourceVariableGroup:
		return &VariableGroup{}, nil
	case ResourceSecureFile:
		return &SecureFile{}, nil
	case ResourceRepository:
		return &Repository{}, nil
	case ResourcePool:
		return &Pool{}, nil
	case ResourceQueue:
		return &Queue{}, nil
	case ResourceEnvironment:
		return &Environment{}, nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", t)
	}
}

// DecodeResource decodes raw JSON into the variant named by t. When t is
// empty the record's own resourceType field is used. The stored bucket always
// wins over whatever the payload claims, so a record can never end up tagged
// with a different type than the one it is stored under.
func DecodeResource(t ResourceType, raw []byte) (Resource, error) {
	if t == "" {
		var probe struct {
			ResourceType ResourceType `json:"resourceType"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("reading resource type: %w", err)
		}
		t = probe.ResourceType
	}
	r, err := NewResource(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("decoding %s resource: %w", t.Storage(), err)
	}
	r.Base().ResourceType = t.Storage()
	return r, nil
}

// QualifiedID returns "{type}:{id}", the membership key used by logic
// containers. Pool aliases collapse to the storage type.
func QualifiedID(t ResourceType, id ID) string {
	return string(t.Storage()) + ":" + string(id)
}

// SplitQualifiedID reverses QualifiedID. Unqualified legacy entries return an
// empty type.
func SplitQualifiedID(key string) (ResourceType, ID) {
	if i := strings.Index(key, ":"); i > 0 {
		return ResourceType(key[:i]), ID(key[i+1:])
	}
	return "", ID(key)
}

// ResourceSummary is the display projection used when resolving permission IDs.
type ResourceSummary struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl,omitempty"`
}
