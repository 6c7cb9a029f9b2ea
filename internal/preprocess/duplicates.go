package preprocess

import (
	"context"
	"log/slog"

	"salesforecast/internal/dataset"
)

// RemoveDuplicates drops rows identical to an earlier row, keeping the first.
// Applying it twice gives the same result as applying it once.
func (p *Preprocessor) RemoveDuplicates(ctx context.Context, ds *dataset.Dataset) *dataset.Dataset {
	seen := make(map[string]struct{}, ds.NumRows())
	out := ds.Filter(func(i int) bool {
		key := ds.RowKey(i)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})

	if removed := ds.NumRows() - out.NumRows(); removed > 0 {
		p.logger.InfoContext(ctx, "duplicate rows removed", slog.Int("count", removed))
	} else {
		p.logger.InfoContext(ctx, "no duplicate rows")
	}
	return out
}
