package models

import "time"

// Organisation is one scanned DevOps organisation snapshot.
type Organisation struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	URL            string         `json:"url,omitempty"`
	Type           string         `json:"type,omitempty"` // azuredevops | azuredevops-server
	ResourceCounts map[string]int `json:"resourceCounts,omitempty"`
	ScannedAt      *time.Time     `json:"scannedAt,omitempty"`
}

// Project belongs to exactly one organisation.
type Project struct {
	Organisation   string         `json:"organisation"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	URL            string         `json:"url,omitempty"`
	State          string         `json:"state,omitempty"`
	Visibility     string         `json:"visibility,omitempty"`
	Revision       int64          `json:"revision,omitempty"`
	LastUpdateTime *time.Time     `json:"lastUpdateTime,omitempty"`
	BuildSettings  map[string]any `json:"buildSettings,omitempty"`
	// KProject mirrors the project's own reference so projects share the
	// byOrgAndKProject index shape with every other project-scoped record.
	KProject ProjectRef `json:"k_project"`
}

// ProjectStats holds per-project resource counters.
type ProjectStats struct {
	Organisation string         `json:"organisation"`
	ID           string         `json:"id"` // project id
	Counts       map[string]int `json:"counts"`
}

// BotAccount is an identity excluded from commit attribution analysis.
type BotAccount struct {
	Organisation string `json:"organisation"`
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	ExactMatch   bool   `json:"exactMatch"`
}

// Matches reports whether name is covered by the bot account.
func (b BotAccount) Matches(name string) bool {
	if b.ExactMatch {
		return name == b.DisplayName
	}
	return b.DisplayName != "" && containsFold(name, b.DisplayName)
}

// Branch is a repository branch as returned to callers.
type Branch struct {
	ObjectID    string    `json:"objectId"`
	Name        string    `json:"name"`
	Creator     *Identity `json:"creator,omitempty"`
	IsProtected bool      `json:"isProtected,omitempty"`
	AheadCount  int       `json:"aheadCount,omitempty"`
	BehindCount int       `json:"behindCount,omitempty"`
}

// ArtifactFeed is an artifacts feed.
type ArtifactFeed struct {
	Organisation    string      `json:"organisation"`
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	URL             string      `json:"url,omitempty"`
	Project         *ProjectRef `json:"k_project,omitempty"`
	UpstreamEnabled bool        `json:"upstreamEnabled,omitempty"`
}

// ArtifactPackage is a package published in a feed.
type ArtifactPackage struct {
	Organisation string   `json:"organisation"`
	ID           string   `json:"id"`
	FeedID       string   `json:"feedId"`
	Name         string   `json:"name"`
	ProtocolType string   `json:"protocolType,omitempty"` // npm | nuget | maven | pypi | upack
	Versions     []string `json:"versions,omitempty"`
}
