// Package manifest maintains screenshots.json, the tool to screenshot-location index.
package manifest

import (
	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// Manifest maps tool name to its screenshot records.
type Manifest map[string][]screenshot.Record

// Merge applies updates to existing and returns a new manifest. Inputs are not mutated.
//
// For each updated tool, a record whose URL is already listed replaces that entry's
// path in place; other records are appended in the order given. Tools absent from
// updates keep their list unchanged. Merging the same updates twice is a no-op.
func Merge(existing Manifest, updates map[string][]screenshot.Record) Manifest {
	merged := make(Manifest, len(existing)+len(updates))
	for tool, records := range existing {
		merged[tool] = append([]screenshot.Record(nil), records...)
	}

	for tool, batch := range updates {
		if len(batch) == 0 {
			continue
		}
		records := merged[tool]
		index := make(map[string]int, len(records))
		for i, rec := range records {
			if _, seen := index[rec.URL]; !seen {
				index[rec.URL] = i
			}
		}
		for _, rec := range batch {
			if i, ok := index[rec.URL]; ok {
				records[i].Path = rec.Path
				continue
			}
			index[rec.URL] = len(records)
			records = append(records, rec)
		}
		merged[tool] = records
	}
	return merged
}

// Lookup returns the record for rawURL under tool.
func (m Manifest) Lookup(tool, rawURL string) (screenshot.Record, bool) {
	for _, rec := range m[tool] {
		if rec.URL == rawURL {
			return rec, true
		}
	}
	return screenshot.Record{}, false
}

// Len counts records across every tool.
func (m Manifest) Len() int {
	n := 0
	for _, records := range m {
		n += len(records)
	}
	return n
}
