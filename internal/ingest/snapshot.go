// Package ingest fans a nested organisation snapshot out into the
// normalized collections.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/CosmoTheDev/devops-atlas/models"
)

// Snapshot is one scan of an organisation as produced by the scan job.
type Snapshot struct {
	Organisation   models.Organisation          `json:"organisation"`
	Projects       []ProjectSnapshot            `json:"projects"`
	Resources      map[string][]json.RawMessage `json:"resources"`
	Pipelines      []models.PipelineDefinition  `json:"pipelines"`
	Builds         []models.Build               `json:"builds"`
	Commits        []models.Commit              `json:"commits"`
	CommitterStats []models.CommitterStat       `json:"committerStats"`
	BotAccounts    []models.BotAccount          `json:"botAccounts"`
	Artifacts      ArtifactsSnapshot            `json:"artifacts"`
}

// ProjectSnapshot is a project with its optional counters inline.
type ProjectSnapshot struct {
	models.Project
	Stats map[string]int `json:"stats,omitempty"`
}

// ArtifactsSnapshot holds the artifact feeds and their packages.
type ArtifactsSnapshot struct {
	Feeds    []models.ArtifactFeed    `json:"feeds"`
	Packages []models.ArtifactPackage `json:"packages"`
}

// Format is a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses the encoding from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode reads a snapshot in the given format.
func Decode(r io.Reader, format Format) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing yaml snapshot: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("converting yaml snapshot: %w", err)
		}
	}
	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &snap, nil
}

// LoadFile reads a snapshot file, picking the format from its extension.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, FormatFromPath(path))
}
