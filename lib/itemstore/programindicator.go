package itemstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
)

// ProgramIndicatorQuery provides query capabilities on top of program
// indicators. Like plain indicators they are forced to NUMBER and skip
// entirely when a value type filter excludes NUMBER.
type ProgramIndicatorQuery struct {
	db *sql.DB
}

func NewProgramIndicatorQuery(db *sql.DB) *ProgramIndicatorQuery {
	return &ProgramIndicatorQuery{db: db}
}

func (q *ProgramIndicatorQuery) ItemType() dimension.ItemType {
	return dimension.ProgramIndicator
}

func (q *ProgramIndicatorQuery) builder(params Params) (*queryBuilder, error) {
	qb, err := buildEntityQuery("programindicator", params, entityOptions{
		extraCols: []selectCol{{
			expr:  "(SELECT p.uid FROM program p WHERE p.programid = t.programid)",
			alias: "program_uid",
		}},
	})
	if err != nil {
		return nil, err
	}

	programID, err := params.String(ParamProgramID)
	if err != nil {
		return nil, err
	}
	if programID != "" {
		qb.addProgramFilter(programID)
	}

	return qb, nil
}

func (q *ProgramIndicatorQuery) Find(ctx context.Context, params Params) ([]dimension.DataItem, error) {
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
		return nil, fmt.Errorf("error querying program indicators: %w", err)
	}
	defer rows.Close()

	var items []dimension.DataItem
	for rows.Next() {
		var uid, name string
		var code, programUID, i18nName sql.NullString

		if err := rows.Scan(&uid, &name, &code, &programUID, &i18nName); err != nil {
			return nil, err
		}

		items = append(items, dimension.DataItem{
			ID:                  uid,
			Name:                name,
			DisplayName:         displayNameOrName(i18nName, name),
			Code:                orEmpty(code),
			ValueType:           string(dimension.Number),
			SimplifiedValueType: string(dimension.Number),
			DimensionItemType:   dimension.ProgramIndicator,
			ProgramID:           orEmpty(programUID),
		})
	}

	return items, rows.Err()
}

func (q *ProgramIndicatorQuery) Count(ctx context.Context, params Params) (int, error) {
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
