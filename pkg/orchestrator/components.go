// Package orchestrator drives a full migration run: it orders the components
// by their dependencies, runs them serially against the single target
// console, and aggregates progress, metrics, and the run summary.
package orchestrator

import (
	"fmt"

	"github.com/j2o/migrate/pkg/migration"
)

// Components constructs the full component set in declaration order. The
// orchestrator reorders them topologically before running.
func Components(env *migration.Env) []migration.Component {
	return []migration.Component{
		migration.NewUsers(env),
		migration.NewGroups(env),
		migration.NewProjects(env),
		migration.NewMetadata(env, migration.MetadataCustomFields),
		migration.NewMetadata(env, migration.MetadataIssueTypes),
		migration.NewMetadata(env, migration.MetadataStatuses),
		migration.NewMetadata(env, migration.MetadataPriorities),
		migration.NewMetadata(env, migration.MetadataWorkflows),
		migration.NewVersions(env),
		migration.NewProjectComponents(env),
		migration.NewWorkPackagesSkeleton(env),
		migration.NewWorkPackagesContent(env),
		migration.NewAttachments(env),
		migration.NewTimeEntries(env),
		migration.NewLabels(env),
		migration.NewRelations(env),
		migration.NewWatchers(env),
		migration.NewRemoteLinks(env),
	}
}

// Filter keeps only the named components. Unknown names are an error so a
// typo does not silently skip a migration step.
func Filter(components []migration.Component, names []string) ([]migration.Component, error) {
	if len(names) == 0 {
		return components, nil
	}
	byName := make(map[string]migration.Component, len(components))
	for _, c := range components {
		byName[c.Name()] = c
	}
	out := make([]migration.Component, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown component %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}
