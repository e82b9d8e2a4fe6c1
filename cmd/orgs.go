package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "List or delete ingested organisations",
}

var orgsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested organisations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		orgs, err := a.repo.ListOrganisations(ctx)
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"ID", "NAME", "TYPE", "SCANNED", "RESOURCES"}}
		for _, o := range orgs {
			scanned := ""
			if o.ScannedAt != nil {
				scanned = o.ScannedAt.Format(time.RFC3339)
			}
			total := 0
			for _, n := range o.ResourceCounts {
				total += n
			}
			t.rows = append(t.rows, []string{o.ID, o.Name, o.Type, scanned, strconv.Itoa(total)})
		}
		return a.emit(orgs, t)
	},
}

var orgsDeleteYes bool

var orgsDeleteCmd = &cobra.Command{
	Use:   "delete <org>",
	Short: "Delete an organisation and every record scoped to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		org := args[0]
		if !orgsDeleteYes {
			confirmed := false
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Delete organisation %q and all of its scan data?", org)).
						Value(&confirmed),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println(dimStyle.Render("Aborted."))
				return nil
			}
		}

		removed, err := a.repo.DeleteOrganisation(ctx, org)
		if err != nil {
			return err
		}
		colls := make([]string, 0, len(removed))
		for c := range removed {
			colls = append(colls, c)
		}
		sort.Strings(colls)
		t := tabular{headers: []string{"COLLECTION", "DELETED"}}
		for _, c := range colls {
			t.rows = append(t.rows, []string{c, strconv.Itoa(removed[c])})
		}
		return a.emit(removed, t)
	},
}

var projectsOrg string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects of an organisation with resource counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.repo.FetchProjects(ctx, projectsOrg)
		if err != nil {
			return err
		}
		stats, err := a.repo.FetchProjectStats(ctx, projectsOrg)
		if err != nil {
			return err
		}
		counts := make(map[string]map[string]int, len(stats))
		for _, s := range stats {
			counts[s.ID] = s.Counts
		}
		t := tabular{headers: []string{"ID", "NAME", "VISIBILITY", "COUNTS"}}
		for _, p := range projects {
			c := counts[p.ID]
			keys := make([]string, 0, len(c))
			for k := range c {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, len(keys))
			for i, k := range keys {
				parts[i] = k + "=" + strconv.Itoa(c[k])
			}
			t.rows = append(t.rows, []string{p.ID, p.Name, p.Visibility, strings.Join(parts, " ")})
		}
		return a.emit(projects, t)
	},
}

func init() {
	orgsDeleteCmd.Flags().BoolVarP(&orgsDeleteYes, "yes", "y", false, "skip the confirmation prompt")
	orgsCmd.AddCommand(orgsListCmd, orgsDeleteCmd)

	projectsCmd.Flags().StringVar(&projectsOrg, "org", "", "organisation id (required)")
	_ = projectsCmd.MarkFlagRequired("org")
}
