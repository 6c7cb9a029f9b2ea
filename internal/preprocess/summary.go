package preprocess

import "salesforecast/internal/dataset"

// Summary compares a dataset before and after preprocessing.
type Summary struct {
	RowsBefore    int   `json:"rows_before"`
	RowsAfter     int   `json:"rows_after"`
	ColumnsBefore int   `json:"columns_before"`
	ColumnsAfter  int   `json:"columns_after"`
	MissingBefore int   `json:"missing_before"`
	MissingAfter  int   `json:"missing_after"`
	MemoryBefore  int64 `json:"memory_before"`
	MemoryAfter   int64 `json:"memory_after"`
}

// Summarize builds a Summary from the original and processed datasets.
func Summarize(original, processed *dataset.Dataset) Summary {
	before, after := dataset.Describe(original), dataset.Describe(processed)
	return Summary{
		RowsBefore:    before.Rows,
		RowsAfter:     after.Rows,
		ColumnsBefore: before.Columns,
		ColumnsAfter:  after.Columns,
		MissingBefore: before.Missing,
		MissingAfter:  after.Missing,
		MemoryBefore:  before.MemoryBytes,
		MemoryAfter:   after.MemoryBytes,
	}
}
