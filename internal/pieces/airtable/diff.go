package airtable

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// equalOpts treats nil and empty maps/slices alike; Airtable omits empty
// cell values and snapshots round-trip through JSON.
var equalOpts = []cmp.Option{cmpopts.EquateEmpty()}

// NewRecords returns the records of current that have no structurally equal
// counterpart in previous, in current's order. Any field edit makes a record
// "new" again; a deleted and re-added identical record does not.
func NewRecords(previous, current []Record) []Record {
	out := make([]Record, 0)
	for _, r := range current {
		seen := false
		for _, p := range previous {
			if cmp.Equal(r, p, equalOpts...) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, r)
		}
	}
	return out
}

// ChangeKind distinguishes created from updated records.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
)

// Change is one emitted item of the new_or_updated_record trigger.
type Change struct {
	Change ChangeKind `json:"change"`
	Record Record     `json:"record"`
}

// Changes keys both snapshots by record id and reports records that are new
// or whose fields differ, in current's order.
func Changes(previous, current []Record) []Change {
	byID := make(map[string]Record, len(previous))
	for _, p := range previous {
		byID[p.ID] = p
	}

	out := make([]Change, 0)
	for _, r := range current {
		p, ok := byID[r.ID]
		switch {
		case !ok:
			out = append(out, Change{Change: ChangeCreated, Record: r})
		case !cmp.Equal(p.Fields, r.Fields, equalOpts...):
			out = append(out, Change{Change: ChangeUpdated, Record: r})
		}
	}
	return out
}
