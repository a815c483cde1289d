// Package datadir manages the local data directory: cached extraction
// batches, mapping files, and bulk load results. Extraction caches let a
// re-run skip Jira entirely; mapping files are disposable and rebuildable
// from provenance tags on the target.
package datadir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Dir is a data directory rooted at a single path.
type Dir struct {
	root string
}

// New creates the data directory if needed and returns a handle.
func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

func (d *Dir) extractPath(component string, batch int) string {
	return filepath.Join(d.root, fmt.Sprintf("%s_extract_%04d.json", component, batch))
}

func (d *Dir) mappingPath(component string) string {
	return filepath.Join(d.root, component+"_mapping.json")
}

// WriteExtract caches one extraction batch. Existing caches are only
// replaced when force is set; extraction is expensive and the cache is the
// point.
func (d *Dir) WriteExtract(component string, batch int, v any, force bool) error {
	path := d.extractPath(component, batch)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	return d.writeJSON(path, v)
}

// ReadExtract loads one cached extraction batch into v.
func (d *Dir) ReadExtract(component string, batch int, v any) error {
	return d.readJSON(d.extractPath(component, batch), v)
}

// HasExtract reports whether a batch is cached.
func (d *Dir) HasExtract(component string, batch int) bool {
	_, err := os.Stat(d.extractPath(component, batch))
	return err == nil
}

// ExtractBatches lists the cached batch numbers for a component, ascending.
func (d *Dir) ExtractBatches(component string) ([]int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("listing data directory: %w", err)
	}
	prefix := component + "_extract_"
	var batches []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
		if err != nil {
			continue
		}
		batches = append(batches, n)
	}
	sort.Ints(batches)
	return batches, nil
}

// WriteMapping persists a component's origin-key to target-ID mapping.
func (d *Dir) WriteMapping(component string, m map[string]int) error {
	return d.writeJSON(d.mappingPath(component), m)
}

// ReadMapping loads a component's mapping file. A missing file yields an
// empty map, the cache is non-authoritative.
func (d *Dir) ReadMapping(component string) (map[string]int, error) {
	m := make(map[string]int)
	err := d.readJSON(d.mappingPath(component), &m)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

const workPackageMapping = "work_package_mapping"

// WriteWorkPackageMapping persists the complete issue-key to work-package-ID
// mapping produced by the skeleton phase.
func (d *Dir) WriteWorkPackageMapping(m map[string]int) error {
	return d.WriteMapping(workPackageMapping, m)
}

// ReadWorkPackageMapping loads the issue-key mapping.
func (d *Dir) ReadWorkPackageMapping() (map[string]int, error) {
	return d.ReadMapping(workPackageMapping)
}

// HasWorkPackageMapping reports whether the skeleton phase has produced the
// mapping file.
func (d *Dir) HasWorkPackageMapping() bool {
	_, err := os.Stat(d.mappingPath(workPackageMapping))
	return err == nil
}

// WriteBulkResult archives the raw result of one bulk load for auditing and
// returns the file path.
func (d *Dir) WriteBulkResult(component string, at time.Time, v any) (string, error) {
	name := fmt.Sprintf("bulk_result_%s_%s.json", component, at.UTC().Format("20060102T150405"))
	path := filepath.Join(d.root, name)
	if err := d.writeJSON(path, v); err != nil {
		return "", err
	}
	return path, nil
}

// writeJSON writes atomically: the payload lands in a temp file in the same
// directory and is renamed into place, so a crash never leaves a torn file.
func (d *Dir) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(d.root, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (d *Dir) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
