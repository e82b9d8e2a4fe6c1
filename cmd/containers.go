package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/models"
)

var containersCmd = &cobra.Command{
	Use:     "containers",
	Aliases: []string{"container", "lc"},
	Short:   "Manage logic containers",
	Long: `Logic containers group protected resources by lifecycle or criticality.
They are global to the store and survive organisation re-ingestion.`,
}

func containerRows(list []models.LogicContainer) tabular {
	t := tabular{headers: []string{"ID", "NAME", "CRITICALITY", "DEFAULT", "RESOURCES", "OWNER"}}
	for _, c := range list {
		t.rows = append(t.rows, []string{
			c.ID,
			c.Name,
			string(c.Criticality),
			yesNo(c.IsDefault),
			strconv.Itoa(len(c.Resources)),
			c.Owner,
		})
	}
	return t
}

var containersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logic containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.registry.List(ctx)
		if err != nil {
			return err
		}
		return a.emit(list, containerRows(list))
	},
}

var containersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one container and its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.registry.Get(ctx, args[0])
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"TYPE", "RESOURCE"}}
		for _, key := range c.Resources {
			rt, id := models.SplitQualifiedID(key)
			t.rows = append(t.rows, []string{string(rt), id.String()})
		}
		if a.format() == "table" {
			fmt.Println(headerStyle.Render(c.Name) + dimStyle.Render(fmt.Sprintf("  (%s, %s)", c.ID, c.Criticality)))
			if c.Description != "" {
				fmt.Println(c.Description)
			}
		}
		return a.emit(c, t)
	},
}

var (
	containerName        string
	containerColor       string
	containerDescription string
	containerCriticality string
	containerOwner       string
	containerDefault     bool
	containerProjects    []string
)

func criticalityOptions() []huh.Option[string] {
	levels := []models.Criticality{
		models.CriticalityNone,
		models.CriticalityInfo,
		models.CriticalityLow,
		models.CriticalityMedium,
		models.CriticalityHigh,
		models.CriticalityCritical,
	}
	opts := make([]huh.Option[string], len(levels))
	for i, l := range levels {
		opts[i] = huh.NewOption(string(l), string(l))
	}
	return opts
}

// promptContainer collects the container fields interactively.
func promptContainer() error {
	if containerCriticality == "" {
		containerCriticality = string(models.CriticalityNone)
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("The id is derived from the name.").
				Value(&containerName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description (optional)").
				Value(&containerDescription),
			huh.NewSelect[string]().
				Title("Criticality").
				Options(criticalityOptions()...).
				Value(&containerCriticality),
			huh.NewInput().
				Title("Colour (optional)").
				Placeholder("#7C3AED").
				Value(&containerColor),
			huh.NewInput().
				Title("Owner (optional)").
				Value(&containerOwner),
			huh.NewConfirm().
				Title("Make this the default container?").
				Value(&containerDefault),
		),
	)
	return form.Run()
}

var containersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a logic container (interactive without --name)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if containerName == "" {
			if err := promptContainer(); err != nil {
				return err
			}
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.registry.Create(ctx, models.LogicContainer{
			Name:        containerName,
			Color:       containerColor,
			Description: containerDescription,
			Criticality: models.Criticality(containerCriticality),
			Owner:       containerOwner,
			IsDefault:   containerDefault,
			Projects:    containerProjects,
		})
		if err != nil {
			return err
		}
		if a.format() == "table" {
			fmt.Println(successStyle.Render("Created container " + c.ID))
			return nil
		}
		return a.emit(c, tabular{})
	},
}

var containersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update the fields given as flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fields := map[string]any{}
		fl := cmd.Flags()
		if fl.Changed("name") {
			fields["name"] = containerName
		}
		if fl.Changed("color") {
			fields["color"] = containerColor
		}
		if fl.Changed("description") {
			fields["description"] = containerDescription
		}
		if fl.Changed("criticality") {
			fields["criticality"] = containerCriticality
		}
		if fl.Changed("owner") {
			fields["owner"] = containerOwner
		}
		if fl.Changed("default") {
			fields["is_default"] = containerDefault
		}
		if fl.Changed("project") {
			fields["projects"] = containerProjects
		}
		if len(fields) == 0 {
			return fmt.Errorf("nothing to update")
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.registry.Update(ctx, args[0], fields)
		if err != nil {
			return err
		}
		return a.emit(c, containerRows([]models.LogicContainer{*c}))
	},
}

var containersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a logic container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.registry.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Deleted container " + args[0]))
		return nil
	},
}

// memberArgs parses "<container> <type> <id>".
func memberArgs(args []string) (string, models.ResourceType, models.ID, error) {
	t := models.ResourceType(args[1])
	if !t.Known() {
		return "", "", "", fmt.Errorf("unknown resource type %q", args[1])
	}
	return args[0], t, models.ID(args[2]), nil
}

var containersAddCmd = &cobra.Command{
	Use:   "add <container> <type> <resource-id>",
	Short: "Add a resource to a container",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cid, t, id, err := memberArgs(args)
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.registry.AddResource(ctx, cid, t, id)
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s now holds %d resources", c.ID, len(c.Resources))))
		return nil
	},
}

var containersRemoveCmd = &cobra.Command{
	Use:   "remove <container> <type> <resource-id>",
	Short: "Remove a resource from a container",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cid, t, id, err := memberArgs(args)
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.registry.RemoveResource(ctx, cid, t, id)
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s now holds %d resources", c.ID, len(c.Resources))))
		return nil
	},
}

var containersForResourceCmd = &cobra.Command{
	Use:   "for-resource <type> <resource-id>",
	Short: "List the containers a resource belongs to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t := models.ResourceType(args[0])
		if !t.Known() {
			return fmt.Errorf("unknown resource type %q", args[0])
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.registry.ContainersForResource(ctx, t, models.ID(args[1]))
		if err != nil {
			return err
		}
		return a.emit(list, containerRows(list))
	},
}

func init() {
	for _, c := range []*cobra.Command{containersCreateCmd, containersUpdateCmd} {
		c.Flags().StringVar(&containerName, "name", "", "display name")
		c.Flags().StringVar(&containerColor, "color", "", "display colour")
		c.Flags().StringVar(&containerDescription, "description", "", "free-form description")
		c.Flags().StringVar(&containerCriticality, "criticality", "", "none|info|low|medium|high|critical")
		c.Flags().StringVar(&containerOwner, "owner", "", "owning team or person")
		c.Flags().BoolVar(&containerDefault, "default", false, "mark as the default container")
		c.Flags().StringSliceVar(&containerProjects, "project", nil, "project ids the container applies to")
	}
	containersCmd.AddCommand(
		containersListCmd,
		containersShowCmd,
		containersCreateCmd,
		containersUpdateCmd,
		containersDeleteCmd,
		containersAddCmd,
		containersRemoveCmd,
		containersForResourceCmd,
	)
}
