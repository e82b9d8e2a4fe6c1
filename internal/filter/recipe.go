package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/CosmoTheDev/devops-atlas/models"
)

// RecipeField names the recipe attribute a RecipeFilter inspects.
type RecipeField string

const (
	FieldTrigger         RecipeField = "trigger"
	FieldStageName       RecipeField = "stageName"
	FieldStagePool       RecipeField = "stagePool"
	FieldJobName         RecipeField = "jobName"
	FieldJobPool         RecipeField = "jobPool"
	FieldStepType        RecipeField = "stepType"
	FieldStepName        RecipeField = "stepName"
	FieldStepDisplayName RecipeField = "stepDisplayName"
	FieldStepInputs      RecipeField = "stepInputs"
	FieldStepEnabled     RecipeField = "stepEnabled"
	// FieldUnqueriable with value "true" lets pipelines without a parsed
	// recipe through.
	FieldUnqueriable RecipeField = "unqueriable"
)

type scope int

const (
	scopeNone scope = iota
	scopeTrigger
	scopeStage
	scopeJob
	scopeStep
)

var fieldScopes = map[RecipeField]scope{
	FieldTrigger:         scopeTrigger,
	FieldStageName:       scopeStage,
	FieldStagePool:       scopeStage,
	FieldJobName:         scopeJob,
	FieldJobPool:         scopeJob,
	FieldStepType:        scopeStep,
	FieldStepName:        scopeStep,
	FieldStepDisplayName: scopeStep,
	FieldStepInputs:      scopeStep,
	FieldStepEnabled:     scopeStep,
	FieldUnqueriable:     scopeNone,
}

// RecipeFilter is a case-insensitive "contains" predicate over one recipe
// field, optionally negated.
type RecipeFilter struct {
	Field  RecipeField `json:"field"`
	Value  string      `json:"value"`
	Negate bool        `json:"negate,omitempty"`
}

// ParseRecipeFilter reads "field=value", with a leading "!" to negate.
func ParseRecipeFilter(s string) (RecipeFilter, error) {
	var f RecipeFilter
	if strings.HasPrefix(s, "!") {
		f.Negate = true
		s = s[1:]
	}
	field, value, ok := strings.Cut(s, "=")
	if !ok {
		return f, fmt.Errorf("recipe filter %q: want field=value", s)
	}
	f.Field, f.Value = RecipeField(strings.TrimSpace(field)), strings.TrimSpace(value)
	if _, known := fieldScopes[f.Field]; !known {
		return f, fmt.Errorf("recipe filter %q: unknown field %q", s, f.Field)
	}
	return f, nil
}

// holds treats a missing value as the empty string.
func (f RecipeFilter) holds(values ...string) bool {
	if len(values) == 0 {
		values = []string{""}
	}
	found := false
	for _, v := range values {
		if containsFold(v, f.Value) {
			found = true
			break
		}
	}
	return found != f.Negate
}

type recipeFilters struct {
	trigger, stage, job, step []RecipeFilter
	allowUnqueriable          bool
}

func group(filters []RecipeFilter) recipeFilters {
	var g recipeFilters
	for _, f := range filters {
		switch fieldScopes[f.Field] {
		case scopeTrigger:
			g.trigger = append(g.trigger, f)
		case scopeStage:
			g.stage = append(g.stage, f)
		case scopeJob:
			g.job = append(g.job, f)
		case scopeStep:
			g.step = append(g.step, f)
		default:
			if f.Field == FieldUnqueriable && strings.EqualFold(f.Value, "true") != f.Negate {
				g.allowUnqueriable = true
			}
		}
	}
	return g
}

// Recipes returns the parsed recipes of p's preview branches in branch
// order.
func Recipes(p models.PipelineDefinition) []*models.Recipe {
	branches := make([]string, 0, len(p.Builds.Preview))
	for b := range p.Builds.Preview {
		branches = append(branches, b)
	}
	sort.Strings(branches)
	var out []*models.Recipe
	for _, b := range branches {
		if r := p.Builds.Preview[b].Recipe; r != nil {
			out = append(out, r)
		}
	}
	return out
}

// MatchRecipes reports whether any branch recipe of p satisfies filters.
// A pipeline without a recipe only passes when an unqueriable=true filter is
// present.
func MatchRecipes(p models.PipelineDefinition, filters []RecipeFilter) bool {
	g := group(filters)
	recipes := Recipes(p)
	if len(recipes) == 0 {
		return g.allowUnqueriable
	}
	for _, r := range recipes {
		if g.match(r) {
			return true
		}
	}
	return false
}

// MatchRecipe evaluates filters against one recipe. Trigger filters must all
// hold. Stage filters must all hold on some stage; job filters on some job
// of some stage; step filters on some step of some job of some stage.
func MatchRecipe(r *models.Recipe, filters []RecipeFilter) bool {
	if r == nil {
		return false
	}
	return group(filters).match(r)
}

func (g recipeFilters) match(r *models.Recipe) bool {
	for _, f := range g.trigger {
		if !f.holds(r.Trigger...) {
			return false
		}
	}
	if len(g.stage) > 0 && !anyStage(r, func(s models.RecipeStage) bool { return all(g.stage, stageValue(s)) }) {
		return false
	}
	if len(g.job) > 0 && !anyStage(r, func(s models.RecipeStage) bool {
		return anyJob(s, func(j models.RecipeJob) bool { return all(g.job, jobValue(j)) })
	}) {
		return false
	}
	if len(g.step) > 0 && !anyStage(r, func(s models.RecipeStage) bool {
		return anyJob(s, func(j models.RecipeJob) bool {
			for _, st := range j.Steps {
				if all(g.step, stepValue(st)) {
					return true
				}
			}
			return false
		})
	}) {
		return false
	}
	return true
}

func all(filters []RecipeFilter, value func(RecipeField) []string) bool {
	for _, f := range filters {
		if !f.holds(value(f.Field)...) {
			return false
		}
	}
	return true
}

func anyStage(r *models.Recipe, fn func(models.RecipeStage) bool) bool {
	for _, s := range r.Stages {
		if fn(s) {
			return true
		}
	}
	return false
}

func anyJob(s models.RecipeStage, fn func(models.RecipeJob) bool) bool {
	for _, j := range s.Jobs {
		if fn(j) {
			return true
		}
	}
	return false
}

func stageValue(s models.RecipeStage) func(RecipeField) []string {
	return func(f RecipeField) []string {
		switch f {
		case FieldStageName:
			return []string{s.Name}
		case FieldStagePool:
			return []string{s.Pool}
		}
		return nil
	}
}

func jobValue(j models.RecipeJob) func(RecipeField) []string {
	return func(f RecipeField) []string {
		switch f {
		case FieldJobName:
			return []string{j.Name}
		case FieldJobPool:
			return []string{j.Pool}
		}
		return nil
	}
}

// stepValue exposes inputs as "key=value" pairs so a filter can match either
// side.
func stepValue(s models.RecipeStep) func(RecipeField) []string {
	return func(f RecipeField) []string {
		switch f {
		case FieldStepType:
			return []string{s.Type}
		case FieldStepName:
			return []string{s.Name}
		case FieldStepDisplayName:
			return []string{s.DisplayName}
		case FieldStepInputs:
			out := make([]string, 0, len(s.Inputs))
			for k, v := range s.Inputs {
				out = append(out, k+"="+v)
			}
			return out
		case FieldStepEnabled:
			return []string{strconv.FormatBool(s.IsEnabled())}
		}
		return nil
	}
}
