package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
)

var doctorEnsure bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify configuration and store health",
	Long: `Checks that the configured store can be opened, reports which collections
and indexes exist, and validates the gateway watcher settings.

Use --ensure to create any missing collections and indexes now instead of
on first use.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorEnsure, "ensure", false,
		"create missing collections and indexes")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println(headerStyle.Render("=== atlas doctor ==="))
	fmt.Println()

	fmt.Print("Store .................... ")
	engine, err := store.OpenEngine(ctx, cfg)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		fmt.Println()
		fmt.Println(warnStyle.Render("Store unavailable; check 'atlas config show'."))
		return nil
	}
	s := store.New(engine, store.DefaultSchema())
	defer s.Close()
	fmt.Printf("OK (%s)\n", describeStore(cfg, s))

	if !checkCollections(ctx, s, engine) {
		allOK = false
	}

	fmt.Print("\nOrganisations ............ ")
	orgs, err := repository.New(s).ListOrganisations(ctx)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("%d ingested\n", len(orgs))
	}

	fmt.Print("Ingest directory ......... ")
	switch dir := cfg.Gateway.IngestDir; {
	case dir == "":
		fmt.Println("not configured (optional)")
	default:
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			fmt.Printf("WARN (%s is not a directory)\n", dir)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", dir)
		}
	}

	fmt.Print("Ingest schedule .......... ")
	if _, err := cron.ParseStandard(cfg.Gateway.IngestSchedule); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.Gateway.IngestSchedule)
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed."))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed."))
	}
	return nil
}

func describeStore(cfg *config.Config, s *store.Store) string {
	switch cfg.Database.Driver {
	case "badger":
		if cfg.Database.InMemory {
			return "badger: in-memory"
		}
		return "badger: " + cfg.Database.BadgerDir
	case "mysql":
		return "mysql: " + redactDSN(cfg.Database.DSN)
	default:
		return s.Engine() + ": " + cfg.Database.Path
	}
}

// checkCollections compares the engine catalog with the schema.
func checkCollections(ctx context.Context, s *store.Store, engine store.Engine) bool {
	cat, err := engine.Catalog(ctx)
	if err != nil {
		fmt.Printf("Catalog .................. FAIL (%s)\n", err)
		return false
	}
	fmt.Printf("Schema version ........... %d\n", cat.Version)

	names := make([]string, 0, len(s.Schema()))
	for name := range s.Schema() {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	fmt.Println("\nCollections:")
	for _, name := range names {
		fmt.Printf("  %-22s ... ", name)
		if doctorEnsure {
			if err := s.EnsureCollection(ctx, name); err != nil {
				fmt.Printf("FAIL (%s)\n", err)
				ok = false
				continue
			}
			fmt.Println("OK")
			continue
		}
		have, exists := cat.Collections[name]
		if !exists {
			fmt.Println(dimStyle.Render("not created yet"))
			continue
		}
		missing := 0
		for _, ix := range s.Schema()[name].Indexes {
			if !slices.Contains(have, ix.Name) {
				missing++
			}
		}
		if missing > 0 {
			fmt.Printf("WARN (%d missing indexes, created on next use)\n", missing)
			continue
		}
		fmt.Printf("OK (%d indexes)\n", len(have))
	}
	return ok
}
