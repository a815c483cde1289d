package orchestrator

import (
	"fmt"
	"sort"

	"github.com/j2o/migrate/pkg/migration"
)

// Order sorts components topologically by their declared dependencies.
// Dependencies outside the selected set are ignored, so a filtered run of a
// single component is always valid. Among components that are ready at the
// same time, the preferred order decides; remaining ties go alphabetically,
// keeping the order deterministic.
func Order(components []migration.Component, preferred []string) ([]migration.Component, error) {
	byName := make(map[string]migration.Component, len(components))
	for _, c := range components {
		if _, dup := byName[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate component %q", c.Name())
		}
		byName[c.Name()] = c
	}

	rank := make(map[string]int, len(preferred))
	for i, name := range preferred {
		rank[name] = i
	}

	indegree := make(map[string]int, len(components))
	dependents := make(map[string][]string)
	for _, c := range components {
		indegree[c.Name()] = 0
	}
	for _, c := range components {
		for _, dep := range c.Dependencies() {
			if _, present := byName[dep]; !present {
				continue
			}
			indegree[c.Name()]++
			dependents[dep] = append(dependents[dep], c.Name())
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	less := func(a, b string) bool {
		ra, okA := rank[a]
		rb, okB := rank[b]
		switch {
		case okA && okB:
			return ra < rb
		case okA:
			return true
		case okB:
			return false
		}
		return a < b
	}

	out := make([]migration.Component, 0, len(components))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		name := ready[0]
		ready = ready[1:]
		out = append(out, byName[name])

		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(out) != len(components) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving: %v", stuck)
	}
	return out, nil
}
