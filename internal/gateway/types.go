package gateway

import "github.com/CosmoTheDev/devops-atlas/internal/ingest"

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Status is a live snapshot of the gateway.
type Status struct {
	Store         string       `json:"store"`
	Organisations int          `json:"organisations"`
	Containers    int          `json:"containers"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Subscribers   int          `json:"subscribers"`
	Watching      string       `json:"watching,omitempty"`
	LastIngest    *IngestEvent `json:"last_ingest,omitempty"`
}

// IngestEvent describes a finished snapshot ingestion.
type IngestEvent struct {
	Source  string          `json:"source"`
	At      string          `json:"at"`
	Summary *ingest.Summary `json:"summary"`
}

// sessionHeader selects the caller's session. Requests without it share the
// default session.
const sessionHeader = "X-Atlas-Session"
