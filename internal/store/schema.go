package store

import "strings"

// Collection names. These, the key path order and the index key paths are the
// durable on-disk contract.
const (
	Organisations     = "organisations"
	Projects          = "projects"
	ProtectedResources = "protected_resources"
	BuildDefinitions  = "build_definitions"
	DefinitionPreviews = "build_definitions_previews"
	Builds            = "builds"
	Stats             = "stats"
	Commits           = "commits"
	CommitterStats    = "committer_stats"
	BotAccounts       = "bot_accounts"
	RepoBranches      = "repo_branches"
	LogicContainers   = "logiccontainers"
	GlobalSettings    = "globalSettings"
	ArtifactsFeeds    = "artifactsFeeds"
	ArtifactsPackages = "artifactsPackages"
)

// Index names shared by several collections.
const (
	ByOrganisation   = "byOrganisation"
	ByOrgAndKProject = "byOrgAndKProject"
)

// KeyPath lists dotted field paths ("k_project.id") whose values, in order,
// form a key. Order is significant: compound keys compare element-wise.
type KeyPath []string

func (p KeyPath) String() string { return strings.Join(p, ",") }

// ParseKeyPath reverses KeyPath.String.
func ParseKeyPath(s string) KeyPath {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// IndexSpec declares a secondary index.
type IndexSpec struct {
	Name    string
	KeyPath KeyPath
}

// CollectionSpec declares a collection, its primary key and its indexes.
type CollectionSpec struct {
	Name    string
	KeyPath KeyPath
	Indexes []IndexSpec
	// OrgScoped collections carry a byOrganisation index and take part in
	// organisation cascade deletes.
	OrgScoped bool
}

// Index returns the named index spec.
func (c CollectionSpec) Index(name string) (IndexSpec, bool) {
	for _, ix := range c.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexSpec{}, false
}

// Schema maps collection names to their specs.
type Schema map[string]CollectionSpec

// OrgScoped returns the org-scoped collection names in a stable order.
func (s Schema) OrgScoped() []string {
	var names []string
	for _, name := range collectionOrder {
		if spec, ok := s[name]; ok && spec.OrgScoped {
			names = append(names, name)
		}
	}
	return names
}

var collectionOrder = []string{
	Organisations, Projects, ProtectedResources, BuildDefinitions, DefinitionPreviews,
	Builds, Stats, Commits, CommitterStats, BotAccounts, RepoBranches,
	LogicContainers, GlobalSettings, ArtifactsFeeds, ArtifactsPackages,
}

func orgScoped(name string, key KeyPath, indexes ...IndexSpec) CollectionSpec {
	ix := append([]IndexSpec{{Name: ByOrganisation, KeyPath: KeyPath{"organisation"}}}, indexes...)
	return CollectionSpec{Name: name, KeyPath: key, Indexes: ix, OrgScoped: true}
}

// DefaultSchema returns the application's collections.
func DefaultSchema() Schema {
	specs := []CollectionSpec{
		{
			Name:    Organisations,
			KeyPath: KeyPath{"id"},
			Indexes: []IndexSpec{
				{Name: "byName", KeyPath: KeyPath{"name"}},
				{Name: "byType", KeyPath: KeyPath{"type"}},
			},
		},
		orgScoped(Projects, KeyPath{"organisation", "id"},
			IndexSpec{Name: ByOrgAndKProject, KeyPath: KeyPath{"organisation", "k_project.id"}},
			IndexSpec{Name: "byOrgAndKProjectName", KeyPath: KeyPath{"organisation", "k_project.name"}},
		),
		orgScoped(ProtectedResources, KeyPath{"organisation", "resourceType", "id"},
			IndexSpec{Name: "byOrgAndType", KeyPath: KeyPath{"organisation", "resourceType"}},
			IndexSpec{Name: ByOrgAndKProject, KeyPath: KeyPath{"organisation", "k_project.id"}},
			IndexSpec{Name: "byResourceTypeAndOrgAndProject", KeyPath: KeyPath{"resourceType", "organisation", "k_project.id"}},
		),
		orgScoped(BuildDefinitions, KeyPath{"organisation", "id"},
			IndexSpec{Name: ByOrgAndKProject, KeyPath: KeyPath{"organisation", "k_project.id"}},
		),
		orgScoped(DefinitionPreviews, KeyPath{"organisation", "definitionId", "branch"},
			IndexSpec{Name: "byOrgAndDefinitionId", KeyPath: KeyPath{"organisation", "definitionId"}},
		),
		orgScoped(Builds, KeyPath{"organisation", "id"},
			IndexSpec{Name: ByOrgAndKProject, KeyPath: KeyPath{"organisation", "k_project.id"}},
			IndexSpec{Name: "byOrgAndDefinitionId", KeyPath: KeyPath{"organisation", "definition.id"}},
		),
		orgScoped(Stats, KeyPath{"organisation", "id"}),
		orgScoped(Commits, KeyPath{"organisation", "repositoryId", "commitId"},
			IndexSpec{Name: "byOrgAndCommitterEmail", KeyPath: KeyPath{"organisation", "committer.email"}},
			IndexSpec{Name: "byOrgAndRepositoryId", KeyPath: KeyPath{"organisation", "repositoryId"}},
			IndexSpec{Name: "byOrgAndCommitterEmailAndAuthorMatch", KeyPath: KeyPath{"organisation", "committer.email", "authorMatchesPusher"}},
			IndexSpec{Name: "byOrgAndCommitterEmailAndCommitterMatch", KeyPath: KeyPath{"organisation", "committer.email", "committerMatchesPusher"}},
		),
		orgScoped(CommitterStats, KeyPath{"organisation", "committerEmail"},
			IndexSpec{Name: "byOrgAndHasMultipleAuthors", KeyPath: KeyPath{"organisation", "hasMultipleAuthors"}},
			IndexSpec{Name: "byOrgAndIsBot", KeyPath: KeyPath{"organisation", "isBot"}},
		),
		orgScoped(BotAccounts, KeyPath{"organisation", "id"}),
		orgScoped(RepoBranches, KeyPath{"organisation", "repoId", "objectId"},
			IndexSpec{Name: "byOrgAndRepoId", KeyPath: KeyPath{"organisation", "repoId"}},
		),
		{Name: LogicContainers, KeyPath: KeyPath{"id"}},
		{Name: GlobalSettings, KeyPath: KeyPath{"id"}},
		orgScoped(ArtifactsFeeds, KeyPath{"organisation", "id"}),
		orgScoped(ArtifactsPackages, KeyPath{"organisation", "feedId", "id"},
			IndexSpec{Name: "byOrgAndFeedId", KeyPath: KeyPath{"organisation", "feedId"}},
		),
	}
	s := make(Schema, len(specs))
	for _, spec := range specs {
		s[spec.Name] = spec
	}
	return s
}
