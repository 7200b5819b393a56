package loader

// RowMapper projects raw delimited rows into insert parameter tuples.
type RowMapper struct {
	columns  []string // target order; "" marks a skipped source column
	sourceID *int64
	width    int
}

// NewRowMapper builds a mapper for the given target columns. When sourceID is
// non-nil every tuple gets source_id, file_id and record_id appended.
func NewRowMapper(columns []string, sourceID *int64) RowMapper {
	width := 0
	for _, c := range columns {
		if c != "" {
			width++
		}
	}
	if sourceID != nil {
		width += 3
	}
	return RowMapper{columns: columns, sourceID: sourceID, width: width}
}

// Width is the number of parameters in every mapped tuple.
func (m RowMapper) Width() int { return m.width }

// Map returns raw in target column order. Fields past the end of raw map to
// "" and fields beyond the configured columns are ignored. fileID and
// recordID are only used when a source id is configured.
func (m RowMapper) Map(raw []string, fileID, recordID int64) []any {
	out := make([]any, 0, m.width)
	for i, col := range m.columns {
		if col == "" {
			continue
		}
		if i < len(raw) {
			out = append(out, raw[i])
		} else {
			out = append(out, "")
		}
	}
	if m.sourceID != nil {
		out = append(out, *m.sourceID, fileID, recordID)
	}
	return out
}
