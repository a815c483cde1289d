// Package journal rebuilds OpenProject journal histories from Jira
// changelogs and comments. Everything here is pure computation: the output
// rows are shipped to the remote evaluator, which only loads and inserts.
package journal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/j2o/migrate/pkg/jira"
)

// Kind distinguishes operation sources.
type Kind string

const (
	KindComment Kind = "comment"
	KindChange  Kind = "change"
)

// Operation is one historical event: a comment or a changelog entry, with
// the progressive state of the work package at that point in time.
type Operation struct {
	Kind         Kind
	UserName     string
	UserID       int
	Timestamp    time.Time
	Notes        string
	FieldChanges map[string]any
	// FieldBefores carries the mapped pre-change value per attribute, used
	// to rewind the current state back to the creation state.
	FieldBefores map[string]any
	Snapshot     Snapshot
	CFSnapshot   map[string]string
}

// Snapshot is the full work-package attribute state at one point in time.
type Snapshot map[string]any

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Row is one journal row ready for insertion. Versions are dense from 1; the
// last row's validity period is open-ended.
type Row struct {
	Version       int               `json:"version"`
	UserID        int               `json:"user_id"`
	Notes         string            `json:"notes"`
	CreatedAt     time.Time         `json:"created_at"`
	ValidityStart time.Time         `json:"validity_start"`
	ValidityEnd   *time.Time        `json:"validity_end"`
	Data          Snapshot          `json:"data"`
	CFValues      map[string]string `json:"cf_values,omitempty"`
}

// Resolvers translate Jira names into target IDs. Misses return false; the
// attribution fallback and required-field inheritance fill the gaps.
type Resolvers struct {
	User     func(name string) (int, bool)
	Status   func(name string) (int, bool)
	Type     func(name string) (int, bool)
	Priority func(name string) (int, bool)
}

// Builder turns an issue's history into journal rows.
type Builder struct {
	Resolvers Resolvers
	// DeletedUserID is the system account used only when even the work
	// package author is unknown.
	DeletedUserID int
	// TrackedCustomFields names the Jira fields whose history is preserved
	// as custom-field journal values.
	TrackedCustomFields map[string]bool
}

// Build produces the complete journal row sequence for one issue. defaults
// is the current work-package state (author_id, project_id, type_id,
// status_id, priority_id at minimum); every row inherits whatever its
// snapshot is missing.
func (b *Builder) Build(issue *jira.Issue, defaults Snapshot) ([]Row, error) {
	ops := b.buildOperations(issue)
	if len(ops) == 0 {
		// Even an untouched issue gets its creation journal.
		ops = []Operation{{
			Kind:      KindChange,
			UserName:  issue.ReporterName,
			Timestamp: issue.Created,
		}}
	}

	// Sort before snapshot assignment. The consumer sorts by timestamp too,
	// so snapshots computed against any other order would attach to the
	// wrong rows.
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Timestamp.Before(ops[j].Timestamp)
	})

	authorID := b.resolveAuthor(issue, defaults)
	b.attribute(ops, authorID)
	assignSnapshots(ops, defaults)

	rows := assignValidity(ops)
	rows = renumber(rows)

	snapshotAuthor := authorID
	if snapshotAuthor <= 0 {
		snapshotAuthor = b.DeletedUserID
	}
	inheritRequired(rows, defaults, snapshotAuthor)
	return rows, nil
}

// buildOperations turns comments and changelog entries into operations.
// Changelog events whose diffs map to nothing are preserved as readable
// notes; only operations that are empty even after that rescue are dropped.
func (b *Builder) buildOperations(issue *jira.Issue) []Operation {
	ops := make([]Operation, 0, len(issue.Comments)+len(issue.Changelog)+1)

	ops = append(ops, Operation{
		Kind:      KindChange,
		UserName:  issue.ReporterName,
		Timestamp: issue.Created,
	})

	for _, comment := range issue.Comments {
		ops = append(ops, Operation{
			Kind:      KindComment,
			UserName:  comment.AuthorName,
			Timestamp: comment.Created,
			Notes:     comment.Body,
		})
	}

	for _, entry := range issue.Changelog {
		op := Operation{
			Kind:      KindChange,
			UserName:  entry.AuthorName,
			Timestamp: entry.Created,
		}
		var unmapped []string
		changes := make(map[string]any)
		befores := make(map[string]any)
		cfChanges := make(map[string]string)
		for _, item := range entry.Items {
			if b.TrackedCustomFields[item.Field] {
				cfChanges[item.Field] = item.ToString
				continue
			}
			attr, value, ok := b.mapChange(item)
			if ok {
				changes[attr] = value
				// Map the from-side of the transition too so the earliest
				// change can reveal the value the issue was created with.
				reversed := item
				reversed.To, reversed.ToString = item.From, item.FromString
				if _, before, okBefore := b.mapChange(reversed); okBefore {
					befores[attr] = before
				}
				continue
			}
			unmapped = append(unmapped, fmt.Sprintf("Jira: %s changed from '%s' to '%s'",
				item.Field, item.FromString, item.ToString))
		}
		op.FieldChanges = changes
		op.FieldBefores = befores
		if len(cfChanges) > 0 {
			op.CFSnapshot = cfChanges
		}
		if len(changes) == 0 && len(cfChanges) == 0 {
			op.Notes = strings.Join(unmapped, "\n")
		}
		if op.Notes == "" && len(op.FieldChanges) == 0 && len(op.CFSnapshot) == 0 {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// mapChange translates one Jira field transition into a target attribute
// assignment. False means no mapping exists.
func (b *Builder) mapChange(item jira.ChangeItem) (string, any, bool) {
	switch strings.ToLower(item.Field) {
	case "status":
		if id, ok := b.Resolvers.Status(item.ToString); ok {
			return "status_id", id, true
		}
	case "issuetype", "type":
		if id, ok := b.Resolvers.Type(item.ToString); ok {
			return "type_id", id, true
		}
	case "priority":
		if id, ok := b.Resolvers.Priority(item.ToString); ok {
			return "priority_id", id, true
		}
	case "assignee":
		if item.ToString == "" && item.To == "" {
			return "assigned_to_id", nil, true
		}
		name := item.To
		if name == "" {
			name = item.ToString
		}
		if id, ok := b.Resolvers.User(name); ok {
			return "assigned_to_id", id, true
		}
	case "summary":
		return "subject", item.ToString, true
	case "description":
		return "description", item.ToString, true
	}
	return "", nil, false
}

func (b *Builder) resolveAuthor(issue *jira.Issue, defaults Snapshot) int {
	if id, ok := defaults["author_id"].(int); ok && id > 0 {
		return id
	}
	if issue.ReporterName != "" {
		if id, ok := b.Resolvers.User(issue.ReporterName); ok {
			return id
		}
	}
	return 0
}

// attribute resolves each operation's user, falling back to the work-package
// author and only then to the system deleted-user account. History is never
// credited to an uninvolved real user.
func (b *Builder) attribute(ops []Operation, authorID int) {
	for i := range ops {
		if ops[i].UserName != "" {
			if id, ok := b.Resolvers.User(ops[i].UserName); ok && id > 0 {
				ops[i].UserID = id
				continue
			}
		}
		if authorID > 0 {
			ops[i].UserID = authorID
			continue
		}
		ops[i].UserID = b.DeletedUserID
	}
}

// assignSnapshots walks the sorted operations forward from the creation
// state, applying each diff and recording the progressive state.
func assignSnapshots(ops []Operation, defaults Snapshot) {
	state := creationState(ops, defaults)
	cfState := make(map[string]string)
	for i := range ops {
		for attr, value := range ops[i].FieldChanges {
			state[attr] = value
		}
		for field, value := range ops[i].CFSnapshot {
			cfState[field] = value
		}
		ops[i].Snapshot = state.clone()
		if len(cfState) > 0 {
			snapshot := make(map[string]string, len(cfState))
			for k, v := range cfState {
				snapshot[k] = v
			}
			ops[i].CFSnapshot = snapshot
		}
	}
}

// creationState rewinds the current state through every recorded diff so the
// forward walk starts where the issue started. Each changed attribute takes
// the mapped from-value of its earliest transition; walking backwards makes
// the earliest assignment win.
func creationState(ops []Operation, defaults Snapshot) Snapshot {
	state := defaults.clone()
	for i := len(ops) - 1; i >= 0; i-- {
		for attr := range ops[i].FieldChanges {
			if before, ok := ops[i].FieldBefores[attr]; ok {
				state[attr] = before
				continue
			}
			// Unknown pre-change value: fall back to the defaults during
			// inheritance.
			delete(state, attr)
		}
	}
	return state
}

// assignValidity turns operations into rows with pairwise non-overlapping,
// time-ordered validity periods. Timestamp collisions are resolved with a
// one-microsecond bump instead of reordering.
func assignValidity(ops []Operation) []Row {
	rows := make([]Row, len(ops))
	var lastEnd time.Time
	for i, op := range ops {
		begin := op.Timestamp.UTC()
		if i > 0 && !begin.After(lastEnd) {
			begin = lastEnd.Add(time.Microsecond)
		}
		rows[i] = Row{
			UserID:        op.UserID,
			Notes:         op.Notes,
			CreatedAt:     begin,
			ValidityStart: begin,
			Data:          op.Snapshot,
			CFValues:      op.CFSnapshot,
		}
		lastEnd = begin
	}
	for i := range rows {
		if i+1 < len(rows) {
			end := rows[i+1].ValidityStart
			rows[i].ValidityEnd = &end
		}
	}
	return rows
}

// renumber drops rows with identical validity ranges (a safety net, the bump
// makes them impossible) and assigns dense versions from 1.
func renumber(rows []Row) []Row {
	out := rows[:0]
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		key := row.ValidityStart.Format(time.RFC3339Nano)
		if row.ValidityEnd != nil {
			key += "/" + row.ValidityEnd.Format(time.RFC3339Nano)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	for i := range out {
		out[i].Version = i + 1
	}
	return out
}

// inheritRequired fills the non-null columns every journal row must carry.
func inheritRequired(rows []Row, defaults Snapshot, authorID int) {
	required := []string{"project_id", "type_id", "status_id", "priority_id"}
	for i := range rows {
		if rows[i].Data == nil {
			rows[i].Data = Snapshot{}
		}
		for _, attr := range required {
			if v, ok := rows[i].Data[attr]; !ok || v == nil {
				rows[i].Data[attr] = defaults[attr]
			}
		}
		if v, ok := rows[i].Data["author_id"].(int); !ok || v <= 0 {
			rows[i].Data["author_id"] = authorID
		}
		if rows[i].UserID <= 0 {
			rows[i].UserID = authorID
		}
	}
}
