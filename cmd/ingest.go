package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/internal/ingest"
)

var (
	ingestOrg   string
	ingestMerge bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <snapshot.json|snapshot.yaml>",
	Short: "Load a scan snapshot into the local store",
	Long: `Reads a snapshot written by the external scan job and fans it out into
the store's collections. By default existing data for the organisation is
deleted first so the store mirrors the snapshot; --merge keeps it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snap, err := ingest.LoadFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.registry.EnsureDefaults(ctx); err != nil {
			return fmt.Errorf("seeding containers: %w", err)
		}
		sum, err := ingest.New(a.repo).Ingest(ctx, snap, ingest.Options{OrgID: ingestOrg, Replace: !ingestMerge})
		if err != nil {
			return err
		}

		t := tabular{headers: []string{"COLLECTION", "RECORDS"}}
		add := func(name string, n int) {
			t.rows = append(t.rows, []string{name, strconv.Itoa(n)})
		}
		add("projects", sum.Projects)
		types := make([]string, 0, len(sum.Resources))
		for k := range sum.Resources {
			types = append(types, k)
		}
		sort.Strings(types)
		for _, k := range types {
			add("resources/"+k, sum.Resources[k])
		}
		add("pipelines", sum.Pipelines)
		add("previews", sum.Previews)
		add("recipes", sum.Recipes)
		add("builds", sum.Builds)
		add("branches", sum.Branches)
		add("commits", sum.Commits)
		add("committer stats", sum.CommitterStats)
		add("bot accounts", sum.BotAccounts)
		add("feeds", sum.Feeds)
		add("packages", sum.Packages)
		add("skipped", sum.Skipped)

		if err := a.emit(sum, t); err != nil {
			return err
		}
		if a.format() == "table" {
			fmt.Println(successStyle.Render("Ingested organisation " + sum.Organisation))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOrg, "org", "", "override the snapshot's organisation id")
	ingestCmd.Flags().BoolVar(&ingestMerge, "merge", false, "keep existing organisation data instead of replacing it")
}
