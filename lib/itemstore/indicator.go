package itemstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
)

// IndicatorQuery provides query capabilities on top of indicators.
// Indicators have no intrinsic value type but always evaluate to numbers,
// so they carry a forced NUMBER type and drop out entirely when a value
// type filter excludes NUMBER.
type IndicatorQuery struct {
	db *sql.DB
}

func NewIndicatorQuery(db *sql.DB) *IndicatorQuery {
	return &IndicatorQuery{db: db}
}

func (q *IndicatorQuery) ItemType() dimension.ItemType {
	return dimension.Indicator
}

func (q *IndicatorQuery) builder(params Params) (*queryBuilder, error) {
	return buildEntityQuery("indicator", params, entityOptions{})
}

func (q *IndicatorQuery) Find(ctx context.Context, params Params) ([]dimension.DataItem, error) {
	hasNumber, err := params.HasNumberValueType()
	if err != nil {
		return nil, err
	}
	if !hasNumber {
		return nil, nil
	}

	qb, err := q.builder(params)
	if err != nil {
		return nil, err
	}

	query, args := qb.buildFindQuery()

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying indicators: %w", err)
	}
	defer rows.Close()

	var items []dimension.DataItem
	for rows.Next() {
		var uid, name string
		var code, i18nName sql.NullString

		if err := rows.Scan(&uid, &name, &code, &i18nName); err != nil {
			return nil, err
		}

		items = append(items, dimension.DataItem{
			ID:                  uid,
			Name:                name,
			DisplayName:         displayNameOrName(i18nName, name),
			Code:                orEmpty(code),
			ValueType:           string(dimension.Number),
			SimplifiedValueType: string(dimension.Number),
			DimensionItemType:   dimension.Indicator,
		})
	}

	return items, rows.Err()
}

func (q *IndicatorQuery) Count(ctx context.Context, params Params) (int, error) {
	hasNumber, err := params.HasNumberValueType()
	if err != nil {
		return 0, err
	}
	if !hasNumber {
		return 0, nil
	}

	qb, err := q.builder(params)
	if err != nil {
		return 0, err
	}

	return countQuery(ctx, q.db, qb)
}
