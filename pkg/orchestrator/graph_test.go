package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/migration"
)

func names(components []migration.Component) []string {
	out := make([]string, len(components))
	for i, c := range components {
		out[i] = c.Name()
	}
	return out
}

func mockComp(name string, deps ...string) *migration.MockComponent {
	c := migration.NewMockComponent(name)
	c.Deps = deps
	return c
}

func indexOf(t *testing.T, ordered []string, name string) int {
	t.Helper()
	for i, n := range ordered {
		if n == name {
			return i
		}
	}
	t.Fatalf("component %s missing from order %v", name, ordered)
	return -1
}

func TestOrder_RespectsDependencies(t *testing.T) {
	env := &migration.Env{}
	ordered, err := Order(Components(env), nil)
	require.NoError(t, err)

	got := names(ordered)
	require.Len(t, got, 18)

	after := func(later, earlier string) {
		assert.Greater(t, indexOf(t, got, later), indexOf(t, got, earlier),
			"%s must run after %s", later, earlier)
	}
	after("groups", "users")
	after("projects", "groups")
	after("workflows", "issue_types")
	after("workflows", "statuses")
	after("work_packages_skeleton", "projects")
	after("work_packages_skeleton", "custom_fields")
	after("work_packages_content", "work_packages_skeleton")
	after("attachments", "work_packages_content")
	after("relations", "work_packages_content")
	after("time_entries", "work_packages_skeleton")
	after("watchers", "work_packages_skeleton")
	after("versions", "projects")
	after("components", "projects")
	after("labels", "work_packages_skeleton")
	after("remote_links", "work_packages_content")
}

func TestOrder_PreferredBreaksTies(t *testing.T) {
	a := mockComp("alpha")
	b := mockComp("beta")
	c := mockComp("gamma")

	ordered, err := Order([]migration.Component{a, b, c}, []string{"gamma", "beta"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "beta", "alpha"}, names(ordered))
}

func TestOrder_IgnoresDependenciesOutsideSelection(t *testing.T) {
	only := mockComp("watchers", "work_packages_skeleton", "users")
	ordered, err := Order([]migration.Component{only}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"watchers"}, names(ordered))
}

func TestOrder_DetectsCycles(t *testing.T) {
	a := mockComp("a", "b")
	b := mockComp("b", "a")
	_, err := Order([]migration.Component{a, b}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestFilter_SelectsByName(t *testing.T) {
	env := &migration.Env{}
	selected, err := Filter(Components(env), []string{"users", "groups"})
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "groups"}, names(selected))
}

func TestFilter_RejectsUnknownName(t *testing.T) {
	env := &migration.Env{}
	_, err := Filter(Components(env), []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
