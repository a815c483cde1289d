package jql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectIssues(t *testing.T) {
	assert.Equal(t, "project = NRS ORDER BY key ASC", ProjectIssues("NRS"))
}

func TestProjectsIssues(t *testing.T) {
	assert.Equal(t, "project in (NRS, OPS) ORDER BY key ASC", ProjectsIssues([]string{"NRS", "OPS"}))
	assert.Equal(t, "project = NRS ORDER BY key ASC", ProjectsIssues([]string{"NRS"}))
}

func TestIssueSet(t *testing.T) {
	assert.Equal(t, "key in (NRS-1, NRS-2) ORDER BY key ASC", IssueSet([]string{"NRS-1", "NRS-2"}))
}

func TestQuoteSpecialCharacters(t *testing.T) {
	assert.Equal(t, `project = "NR Systems" ORDER BY key ASC`, ProjectIssues("NR Systems"))
}
