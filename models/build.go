package models

import "time"

// Build results.
const (
	BuildSucceeded          = "succeeded"
	BuildPartiallySucceeded = "partiallySucceeded"
	BuildFailed             = "failed"
	BuildCanceled           = "canceled"
)

// DefinitionRef points from a build to its pipeline definition.
type DefinitionRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name,omitempty"`
}

// Build is a historic pipeline execution.
type Build struct {
	Organisation  string         `json:"organisation"`
	ID            ID             `json:"id"`
	BuildNumber   string         `json:"buildNumber,omitempty"`
	Status        string         `json:"status,omitempty"` // completed | inProgress | notStarted
	Result        string         `json:"result,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	QueueTime     *time.Time     `json:"queueTime,omitempty"`
	StartTime     *time.Time     `json:"startTime,omitempty"`
	FinishTime    *time.Time     `json:"finishTime,omitempty"`
	SourceBranch  string         `json:"sourceBranch,omitempty"`
	SourceVersion string         `json:"sourceVersion,omitempty"`
	Definition    DefinitionRef  `json:"definition"`
	Project       *ProjectRef    `json:"k_project,omitempty"`
	Repository    *RepositoryRef `json:"repository,omitempty"`
	RequestedFor  *Identity      `json:"requestedFor,omitempty"`
	RequestedBy   *Identity      `json:"requestedBy,omitempty"`
	CICDSast      []SastResult   `json:"cicd_sast,omitempty"`
	URL           string         `json:"url,omitempty"`
}

// IndexBuilds returns builds keyed by ID. Builds without an ID are dropped.
func IndexBuilds(builds []Build) map[ID]Build {
	out := make(map[ID]Build, len(builds))
	for _, b := range builds {
		if b.ID == "" {
			continue
		}
		out[b.ID] = b
	}
	return out
}
