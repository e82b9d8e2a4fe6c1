package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change the stored dashboard settings",
	Long: `Settings live in the store, so the gateway and every CLI user share them.
Use 'atlas config' for local process configuration instead.`,
}

// flatten renders nested settings as dotted key/value rows.
func flatten(prefix string, v any, out map[string]string) {
	if m, ok := v.(map[string]any); ok {
		for k, sub := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, sub, out)
		}
		return
	}
	out[prefix] = fmt.Sprint(v)
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.repo.GetGlobalSettings(ctx)
		if err != nil {
			return err
		}
		rec, err := store.FromStruct(s)
		if err != nil {
			return err
		}
		flat := map[string]string{}
		flatten("", map[string]any(rec), flat)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := tabular{headers: []string{"KEY", "VALUE"}}
		for _, k := range keys {
			t.rows = append(t.rows, []string{k, flat[k]})
		}
		return a.emit(s, t)
	},
}

// setPath assigns value at a dotted path inside rec. The value is parsed as
// JSON when possible so numbers and booleans keep their types.
func setPath(rec map[string]any, path, value string) error {
	segs := strings.Split(path, ".")
	cur := rec
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown setting %q", path)
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if _, ok := cur[last]; !ok {
		return fmt.Errorf("unknown setting %q", path)
	}
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	cur[last] = parsed
	return nil
}

var settingsSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Change one setting",
	Example: "  atlas settings set highlightDepth 2\n  atlas settings set scanDefaults.collectCommits false",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if args[0] == "id" {
			return fmt.Errorf("id cannot be changed")
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.repo.GetGlobalSettings(ctx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		if err := setPath(generic, args[0], args[1]); err != nil {
			return err
		}
		var updated models.GlobalSettings
		data, err = json.Marshal(generic)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &updated); err != nil {
			return fmt.Errorf("setting %s: %w", args[0], err)
		}
		if err := a.repo.SaveGlobalSettings(ctx, updated); err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s = %s", args[0], args[1])))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}
