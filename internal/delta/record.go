package delta

// RecordType tags the schema of an auxiliary record attached to a cell.
type RecordType string

// Record is a snapshot of the auxiliary data attached to a cell, for
// example container contents or processing progress. Snapshots are
// defensively copied when captured so deltas never alias live state.
type Record struct {
	Type   RecordType        `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Clone returns a deep copy of the record. Cloning nil yields nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cloned := &Record{Type: r.Type}
	if len(r.Fields) > 0 {
		cloned.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			cloned.Fields[k] = v
		}
	}
	return cloned
}

// Equal reports whether two record snapshots carry the same data. Both
// nil counts as equal.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Type != other.Type || len(r.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range r.Fields {
		if ov, ok := other.Fields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// EstimateBytes approximates the retained size of the snapshot. The model
// is a flat base cost plus a per-field cost; it only needs to be stable,
// not exact, because the buffer governor compares totals against a budget.
func (r *Record) EstimateBytes() int {
	if r == nil {
		return 0
	}
	return recordBaseBytes + len(r.Fields)*recordFieldBytes
}

const (
	recordBaseBytes  = 50
	recordFieldBytes = 20
)
