package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.yaml.in/yaml/v3"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7C3AED"))

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

// app bundles what most commands need. Close releases the store.
type app struct {
	cfg      *config.Config
	store    *store.Store
	repo     *repository.Repository
	registry *containers.Registry
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &app{
		cfg:      cfg,
		store:    s,
		repo:     repository.New(s),
		registry: containers.NewRegistry(s),
	}, nil
}

func (a *app) Close() { a.store.Close() }

// format resolves --output against the configured default.
func (a *app) format() string {
	if output != "" {
		return strings.ToLower(output)
	}
	if a.cfg.Display.Output != "" {
		return strings.ToLower(a.cfg.Display.Output)
	}
	return "table"
}

// tabular is the table rendering of a listing.
type tabular struct {
	headers []string
	rows    [][]string
}

// emit writes v as json or yaml, or t as a styled table.
func emit(w io.Writer, format string, v any, t tabular) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so yaml keys follow the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	case "table", "":
		if len(t.rows) == 0 {
			fmt.Fprintln(w, dimStyle.Render("(no results)"))
			return nil
		}
		tbl := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(dimStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers(t.headers...).
			Rows(t.rows...)
		fmt.Fprintln(w, tbl.String())
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func (a *app) emit(v any, t tabular) error {
	return emit(os.Stdout, a.format(), v, t)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
