package models

import (
	"strings"
	"time"
)

// GitUser is an author or committer signature.
type GitUser struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Date  *time.Time `json:"date,omitempty"`
}

// Commit is a repository commit attributed to its pusher.
type Commit struct {
	Organisation string    `json:"organisation"`
	RepositoryID string    `json:"repositoryId"`
	CommitID     string    `json:"commitId"`
	Comment      string    `json:"comment,omitempty"`
	Author       GitUser   `json:"author"`
	Committer    GitUser   `json:"committer"`
	Pusher       *Identity `json:"pusher,omitempty"`
	// AuthorMatchesPusher is false when the signature author differs from the
	// identity that pushed the commit.
	AuthorMatchesPusher bool `json:"authorMatchesPusher"`
	// CommitterMatchesPusher is false when the committer differs from the pusher.
	CommitterMatchesPusher bool `json:"committerMatchesPusher"`
}

// CommitterStat aggregates commits per committer email.
type CommitterStat struct {
	Organisation       string     `json:"organisation"`
	CommitterEmail     string     `json:"committerEmail"`
	CommitCount        int        `json:"commitCount"`
	Authors            []string   `json:"authors,omitempty"`
	Repositories       []string   `json:"repositories,omitempty"`
	HasMultipleAuthors bool       `json:"hasMultipleAuthors"`
	IsBot              bool       `json:"isBot"`
	FirstCommit        *time.Time `json:"firstCommit,omitempty"`
	LastCommit         *time.Time `json:"lastCommit,omitempty"`
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
