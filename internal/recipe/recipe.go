// Package recipe parses Azure Pipelines YAML into the normalized recipe
// shape the advanced filters query: triggers, stages, jobs and steps.
package recipe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/CosmoTheDev/devops-atlas/models"
)

// ImplicitName names the stage or job synthesized for stage-less or
// job-less documents.
const ImplicitName = "__default"

// ErrEmpty is returned for documents with no content.
var ErrEmpty = errors.New("empty pipeline document")

// stepKinds lists the keys that identify a step, in match priority order.
var stepKinds = []string{"task", "script", "bash", "pwsh", "powershell", "checkout", "template", "download", "downloadBuild", "publish", "getPackage", "reviewApp", "restoreCache", "saveCache"}

// Parse converts a pipeline document into a Recipe. Unknown keys and
// template expressions are ignored; only structural errors fail.
func Parse(doc string) (*models.Recipe, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, ErrEmpty
	}
	var root map[string]any
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return nil, fmt.Errorf("parsing pipeline yaml: %w", err)
	}
	if root == nil {
		return nil, ErrEmpty
	}

	r := &models.Recipe{Trigger: triggers(root["trigger"])}
	rootPool := poolName(root["pool"])

	switch {
	case root["stages"] != nil:
		for _, item := range list(root["stages"]) {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			r.Stages = append(r.Stages, stage(m, rootPool))
		}
	case root["jobs"] != nil:
		r.Stages = []models.RecipeStage{{
			Name: ImplicitName,
			Pool: rootPool,
			Jobs: jobs(list(root["jobs"]), rootPool),
		}}
	case root["steps"] != nil:
		r.Stages = []models.RecipeStage{{
			Name: ImplicitName,
			Pool: rootPool,
			Jobs: []models.RecipeJob{{Name: ImplicitName, Pool: rootPool, Steps: steps(list(root["steps"]))}},
		}}
	case root["extends"] != nil:
		// Extended templates are resolved server-side; record the reference.
		ext, _ := root["extends"].(map[string]any)
		r.Stages = []models.RecipeStage{{
			Name: ImplicitName,
			Jobs: []models.RecipeJob{{Name: ImplicitName, Steps: []models.RecipeStep{{
				Type: "template",
				Name: str(ext["template"]),
			}}}},
		}}
	}
	if r.Stages == nil {
		r.Stages = []models.RecipeStage{}
	}
	return r, nil
}

func stage(m map[string]any, rootPool string) models.RecipeStage {
	s := models.RecipeStage{Name: str(m["stage"]), Pool: poolName(m["pool"])}
	if s.Name == "" {
		if t := str(m["template"]); t != "" {
			s.Name = "template:" + t
		}
	}
	if s.Pool == "" {
		s.Pool = rootPool
	}
	s.Jobs = jobs(list(m["jobs"]), s.Pool)
	return s
}

func jobs(items []any, inherited string) []models.RecipeJob {
	out := make([]models.RecipeJob, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		j := models.RecipeJob{Pool: poolName(m["pool"])}
		switch {
		case m["job"] != nil:
			j.Name = str(m["job"])
			j.Steps = steps(list(m["steps"]))
		case m["deployment"] != nil:
			j.Name = str(m["deployment"])
			j.Steps = deploymentSteps(m["strategy"])
		case m["template"] != nil:
			j.Name = "template:" + str(m["template"])
		default:
			continue
		}
		if j.Pool == "" {
			j.Pool = inherited
		}
		if j.Steps == nil {
			j.Steps = []models.RecipeStep{}
		}
		out = append(out, j)
	}
	return out
}

// deploymentSteps flattens every lifecycle hook of every strategy in order.
func deploymentSteps(strategy any) []models.RecipeStep {
	sm, ok := strategy.(map[string]any)
	if !ok {
		return nil
	}
	var out []models.RecipeStep
	for _, name := range sortedKeys(sm) {
		hooks, ok := sm[name].(map[string]any)
		if !ok {
			continue
		}
		for _, hook := range []string{"preDeploy", "deploy", "routeTraffic", "postRouteTraffic"} {
			if h, ok := hooks[hook].(map[string]any); ok {
				out = append(out, steps(list(h["steps"]))...)
			}
		}
		if on, ok := hooks["on"].(map[string]any); ok {
			for _, outcome := range []string{"failure", "success"} {
				if h, ok := on[outcome].(map[string]any); ok {
					out = append(out, steps(list(h["steps"]))...)
				}
			}
		}
	}
	return out
}

func steps(items []any) []models.RecipeStep {
	out := make([]models.RecipeStep, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var st models.RecipeStep
		for _, kind := range stepKinds {
			if v, ok := m[kind]; ok {
				st.Type = kind
				st.Name = str(v)
				break
			}
		}
		if st.Type == "" {
			continue
		}
		st.DisplayName = str(m["displayName"])
		st.Inputs = inputs(m["inputs"])
		if st.Type != "task" && st.Type != "template" {
			if st.Inputs == nil {
				st.Inputs = map[string]string{}
			}
			st.Inputs[st.Type] = st.Name
			if n := str(m["name"]); n != "" {
				st.Name = n
			}
		}
		if b, ok := m["enabled"].(bool); ok {
			st.Enabled = &b
		}
		out = append(out, st)
	}
	return out
}

// triggers normalizes the trigger key. "none" yields an explicit "none"
// entry, branch excludes are prefixed with "!".
func triggers(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []any:
		return strs(t)
	case map[string]any:
		var out []string
		if b, ok := t["branches"].(map[string]any); ok {
			out = append(out, strs(list(b["include"]))...)
			for _, ex := range strs(list(b["exclude"])) {
				out = append(out, "!"+ex)
			}
		}
		if p, ok := t["paths"].(map[string]any); ok {
			for _, in := range strs(list(p["include"])) {
				out = append(out, "path:"+in)
			}
		}
		if tg, ok := t["tags"].(map[string]any); ok {
			for _, in := range strs(list(tg["include"])) {
				out = append(out, "tag:"+in)
			}
		}
		return out
	default:
		return []string{str(v)}
	}
}

// poolName reduces the pool forms (string, name, vmImage) to one label.
func poolName(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case map[string]any:
		if n := str(p["name"]); n != "" {
			return n
		}
		return str(p["vmImage"])
	default:
		return ""
	}
}

func inputs(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = str(val)
	}
	return out
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func strs(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := str(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
