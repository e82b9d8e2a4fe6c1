package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CosmoTheDev/devops-atlas/internal/ingest"
)

// maxSnapshotBytes caps POST /api/ingest bodies.
const maxSnapshotBytes = 256 << 20

// handleIngest accepts a snapshot body. Query parameters: format=json|yaml
// (default from Content-Type), org to override the organisation id, and
// replace=false to merge into existing data.
func (gw *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := ingest.Format(strings.ToLower(q.Get("format")))
	if format == "" {
		format = ingest.FormatJSON
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			format = ingest.FormatYAML
		}
	}
	if format != ingest.FormatJSON && format != ingest.FormatYAML {
		writeError(w, http.StatusBadRequest, "format must be json or yaml")
		return
	}
	snap, err := ingest.Decode(http.MaxBytesReader(w, r.Body, maxSnapshotBytes), format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	replace := q.Get("replace") != "false"
	sum, err := gw.ingester.Ingest(r.Context(), snap, ingest.Options{OrgID: q.Get("org"), Replace: replace})
	if err != nil {
		writeErr(w, err)
		return
	}
	gw.recordIngest(IngestEvent{Source: "api", At: time.Now().UTC().Format(time.RFC3339), Summary: sum})
	writeJSON(w, http.StatusOK, sum)
}

// handleRescan runs the directory watcher immediately.
func (gw *Gateway) handleRescan(w http.ResponseWriter, r *http.Request) {
	if gw.watcher.Dir() == "" {
		writeError(w, http.StatusConflict, "gateway.ingest_dir is not configured")
		return
	}
	files, err := gw.watcher.Scan(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingested": files})
}

// ingestFile is the watcher callback. Snapshots from disk always replace the
// organisation they describe.
func (gw *Gateway) ingestFile(ctx context.Context, path string) error {
	snap, err := ingest.LoadFile(path)
	if err != nil {
		return err
	}
	sum, err := gw.ingester.Ingest(ctx, snap, ingest.Options{Replace: true})
	if err != nil {
		return err
	}
	slog.Info("Snapshot ingested", "file", path, "organisation", sum.Organisation, "pipelines", sum.Pipelines)
	gw.recordIngest(IngestEvent{Source: path, At: time.Now().UTC().Format(time.RFC3339), Summary: sum})
	return nil
}
