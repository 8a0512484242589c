package itemstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
)

// DataSetQuery provides query capabilities on top of data sets, exposed as
// reporting rates in the dimension picker. Data sets carry no value type.
type DataSetQuery struct {
	db *sql.DB
}

func NewDataSetQuery(db *sql.DB) *DataSetQuery {
	return &DataSetQuery{db: db}
}

func (q *DataSetQuery) ItemType() dimension.ItemType {
	return dimension.ReportingRate
}

func (q *DataSetQuery) builder(params Params) (*queryBuilder, error) {
	return buildEntityQuery("dataset", params, entityOptions{})
}

func (q *DataSetQuery) Find(ctx context.Context, params Params) ([]dimension.DataItem, error) {
	qb, err := q.builder(params)
	if err != nil {
		return nil, err
	}

	query, args := qb.buildFindQuery()

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying data sets: %w", err)
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
			ID:                uid,
			Name:              name,
			DisplayName:       displayNameOrName(i18nName, name),
			Code:              orEmpty(code),
			DimensionItemType: dimension.ReportingRate,
		})
	}

	return items, rows.Err()
}

func (q *DataSetQuery) Count(ctx context.Context, params Params) (int, error) {
	qb, err := q.builder(params)
	if err != nil {
		return 0, err
	}

	return countQuery(ctx, q.db, qb)
}
