package itemstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
	"github.com/NadeemAtDure/dhis2-core/lib/logging"
)

// QueryRequest is one aggregated data item lookup: which item kinds to
// consult (nil or empty means all) and the shared parameter bag.
type QueryRequest struct {
	ItemTypes map[dimension.ItemType]struct{}
	Params    Params
}

func (r QueryRequest) wants(t dimension.ItemType) bool {
	if len(r.ItemTypes) == 0 {
		return true
	}
	_, ok := r.ItemTypes[t]
	return ok
}

// QueryResult carries the merged result blocks and the total cardinality
// across all consulted strategies (before the row window is applied).
type QueryResult struct {
	Items []dimension.DataItem
	Total int
}

// Query dispatches the request across the applicable strategies,
// concatenating their result blocks in fixed priority order and summing
// their counts. Distinct entity kinds never collide on identifier, so no
// deduplication happens here.
func (s *Store) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	logger := logging.FromContext(ctx)

	maxRows, err := req.Params.Int(ParamMaxRows)
	if err != nil {
		return nil, err
	}

	rv := &QueryResult{}

	for _, query := range s.queries {
		if !req.wants(query.ItemType()) {
			continue
		}

		count, err := query.Count(ctx, req.Params)
		if err != nil {
			return nil, err
		}
		rv.Total += count

		// Each strategy already applies the row limit in SQL; the merged
		// slice is clipped below, so strategies past the window are
		// skipped entirely.
		if maxRows > 0 && len(rv.Items) >= maxRows {
			continue
		}

		items, err := query.Find(ctx, req.Params)
		if err != nil {
			return nil, err
		}

		logger.Debug("data item strategy block",
			zap.String("item_type", string(query.ItemType())),
			zap.Int("rows", len(items)),
			zap.Int("count", count),
		)

		rv.Items = append(rv.Items, items...)
	}

	if maxRows > 0 && len(rv.Items) > maxRows {
		rv.Items = rv.Items[:maxRows]
	}

	return rv, nil
}
