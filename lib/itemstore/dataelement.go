package itemstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
)

// DataElementQuery provides query capabilities on top of data elements.
type DataElementQuery struct {
	db *sql.DB
}

func NewDataElementQuery(db *sql.DB) *DataElementQuery {
	return &DataElementQuery{db: db}
}

func (q *DataElementQuery) ItemType() dimension.ItemType {
	return dimension.DataElement
}

func (q *DataElementQuery) builder(params Params) (*queryBuilder, error) {
	return buildEntityQuery("dataelement", params, entityOptions{
		valueType: true,
		extraCols: []selectCol{{expr: "t.valuetype", alias: "valuetype"}},
	})
}

func (q *DataElementQuery) Find(ctx context.Context, params Params) ([]dimension.DataItem, error) {
	qb, err := q.builder(params)
	if err != nil {
		return nil, err
	}

	query, args := qb.buildFindQuery()

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying data elements: %w", err)
	}
	defer rows.Close()

	var items []dimension.DataItem
	for rows.Next() {
		var uid, name, rawValueType string
		var code, i18nName sql.NullString

		if err := rows.Scan(&uid, &name, &code, &rawValueType, &i18nName); err != nil {
			return nil, err
		}

		valueType := dimension.ParseValueType(rawValueType)

		items = append(items, dimension.DataItem{
			ID:                  uid,
			Name:                name,
			DisplayName:         displayNameOrName(i18nName, name),
			Code:                orEmpty(code),
			ValueType:           string(valueType),
			SimplifiedValueType: string(valueType.Simplified()),
			DimensionItemType:   dimension.DataElement,
		})
	}

	return items, rows.Err()
}

func (q *DataElementQuery) Count(ctx context.Context, params Params) (int, error) {
	qb, err := q.builder(params)
	if err != nil {
		return 0, err
	}

	return countQuery(ctx, q.db, qb)
}
