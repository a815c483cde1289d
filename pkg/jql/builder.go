// Package jql builds the small set of JQL queries the extraction side needs.
package jql

import (
	"fmt"
	"strings"
)

// ProjectIssues returns the query for all issues of one project in stable key
// order, which keeps batch indices deterministic between runs.
func ProjectIssues(projectKey string) string {
	return fmt.Sprintf("project = %s ORDER BY key ASC", quote(projectKey))
}

// IssueSet returns the query for an explicit set of issue keys (the operator's
// test-issue override).
func IssueSet(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quote(k)
	}
	return fmt.Sprintf("key in (%s) ORDER BY key ASC", strings.Join(quoted, ", "))
}

// ProjectsIssues returns the query for all issues across several projects.
func ProjectsIssues(projectKeys []string) string {
	if len(projectKeys) == 1 {
		return ProjectIssues(projectKeys[0])
	}
	quoted := make([]string, len(projectKeys))
	for i, k := range projectKeys {
		quoted[i] = quote(k)
	}
	return fmt.Sprintf("project in (%s) ORDER BY key ASC", strings.Join(quoted, ", "))
}

// quote wraps a value in double quotes when it contains characters JQL would
// otherwise misparse.
func quote(v string) string {
	if strings.ContainsAny(v, " -\"'") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
