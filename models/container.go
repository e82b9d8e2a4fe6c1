package models

import "time"

// Criticality ranks a logic container.
type Criticality string

const (
	CriticalityNone     Criticality = "none"
	CriticalityInfo     Criticality = "info"
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

// Weight returns a numeric weight for sorting (higher = more critical).
func (c Criticality) Weight() int {
	switch c {
	case CriticalityCritical:
		return 5
	case CriticalityHigh:
		return 4
	case CriticalityMedium:
		return 3
	case CriticalityLow:
		return 2
	case CriticalityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether c is one of the known levels.
func (c Criticality) Valid() bool {
	return c == CriticalityNone || c.Weight() > 0
}

// LogicContainer is a user-defined grouping of protected resources. It is
// global to the app and shared across scans.
type LogicContainer struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Color       string      `json:"color,omitempty"`
	Description string      `json:"description,omitempty"`
	Criticality Criticality `json:"criticality"`
	IsDefault   bool        `json:"is_default"`
	Owner       string      `json:"owner,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Projects    []string    `json:"projects"`
	// Resources holds membership keys. New entries are "{type}:{id}";
	// unqualified legacy entries match a resource of any type.
	Resources []string `json:"resources"`
}

// Contains reports whether the resource (t, id) is a member.
func (c LogicContainer) Contains(t ResourceType, id ID) bool {
	q := QualifiedID(t, id)
	for _, r := range c.Resources {
		if r == q || r == string(id) {
			return true
		}
	}
	return false
}

// GlobalSettingsID is the key of the settings singleton.
const GlobalSettingsID = "global"

// GlobalSettings holds process-wide display preferences and scan defaults.
type GlobalSettings struct {
	ID                  string       `json:"id"`
	Theme               string       `json:"theme"`
	DefaultResourceType ResourceType `json:"defaultResourceType"`
	PageSize            int          `json:"pageSize"`
	ShowBuilds          bool         `json:"showBuilds"`
	ShowPreviews        bool         `json:"showPreviews"`
	HighlightDepth      int          `json:"highlightDepth"`
	ScanDefaults        ScanDefaults `json:"scanDefaults"`
}

// ScanDefaults are defaults handed to the (external) scan ingestion job.
type ScanDefaults struct {
	BuildsPerDefinition int  `json:"buildsPerDefinition"`
	PreviewBranches     bool `json:"previewBranches"`
	CollectCommits      bool `json:"collectCommits"`
}

// DefaultGlobalSettings is returned when no settings record has been saved.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		ID:                  GlobalSettingsID,
		Theme:               "dark",
		DefaultResourceType: ResourceEndpoint,
		PageSize:            25,
		ShowBuilds:          true,
		ShowPreviews:        true,
		HighlightDepth:      1,
		ScanDefaults: ScanDefaults{
			BuildsPerDefinition: 10,
			PreviewBranches:     true,
			CollectCommits:      true,
		},
	}
}
