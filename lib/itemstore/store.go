// Package itemstore translates normalized data item query parameters into
// entity-scoped Postgres searches, one strategy per dimension item kind,
// and aggregates their results.
package itemstore

import (
	"context"
	"database/sql"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
)

// ItemQuery is the capability set shared by every entity strategy. The
// strategies are stateless beyond the injected connection pool and safe
// for concurrent use.
type ItemQuery interface {
	Find(ctx context.Context, params Params) ([]dimension.DataItem, error)
	Count(ctx context.Context, params Params) (int, error)
	ItemType() dimension.ItemType
}

// Store owns the full strategy set, in fixed aggregation priority order.
type Store struct {
	db      *sql.DB
	queries []ItemQuery
}

func NewStore(db *sql.DB) *Store {
	byType := map[dimension.ItemType]ItemQuery{
		dimension.DataElement:        NewDataElementQuery(db),
		dimension.ReportingRate:      NewDataSetQuery(db),
		dimension.Indicator:          NewIndicatorQuery(db),
		dimension.ProgramIndicator:   NewProgramIndicatorQuery(db),
		dimension.ProgramDataElement: NewProgramDataElementQuery(db),
	}
	queries := make([]ItemQuery, 0, len(byType))
	for _, t := range dimension.ItemTypePriority {
		queries = append(queries, byType[t])
	}
	return &Store{db: db, queries: queries}
}

type entityOptions struct {
	valueType bool
	extraCols []selectCol
}

// buildEntityQuery reads the parameter bag and assembles the shared
// predicate list for one entity table. Every bag entry is type-checked
// here, before any SQL executes.
func buildEntityQuery(table string, params Params, opts entityOptions) (*queryBuilder, error) {
	qb := newQueryBuilder(table, opts.extraCols...)

	userID, err := params.Int64(ParamUserID)
	if err != nil {
		return nil, err
	}
	qb.addSharingConditions(userID)

	name, err := params.String(ParamName)
	if err != nil {
		return nil, err
	}
	if name != "" {
		qb.addNameFilter(name)
	}

	shortName, err := params.String(ParamShortName)
	if err != nil {
		return nil, err
	}
	if shortName != "" {
		qb.addShortNameFilter(shortName)
	}

	uid, err := params.String(ParamUID)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		qb.addUIDFilter(uid)
	}

	if opts.valueType {
		valueTypes, err := params.StringSet(ParamValueTypes)
		if err != nil {
			return nil, err
		}
		if valueTypes != nil {
			qb.addValueTypeFilter(valueTypes)
		}
	}

	locale, err := params.String(ParamLocale)
	if err != nil {
		return nil, err
	}
	qb.setLocale(locale)

	displayName, err := params.String(ParamDisplayName)
	if err != nil {
		return nil, err
	}
	if displayName != "" {
		qb.setDisplayNameFilter(displayName)
	}

	displayNameOrder, err := params.String(ParamDisplayNameOrder)
	if err != nil {
		return nil, err
	}
	nameOrder, err := params.String(ParamNameOrder)
	if err != nil {
		return nil, err
	}

	switch {
	case displayNameOrder != "":
		qb.setOrderByDisplayName(displayNameOrder)
	case nameOrder != "":
		qb.setOrderByName(nameOrder)
	}

	maxRows, err := params.Int(ParamMaxRows)
	if err != nil {
		return nil, err
	}
	if maxRows > 0 {
		qb.setLimit(maxRows)
	}

	return qb, nil
}

func countQuery(ctx context.Context, db *sql.DB, qb *queryBuilder) (int, error) {
	query, args := qb.buildCountQuery()

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func orEmpty(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}

func displayNameOrName(i18nName sql.NullString, name string) string {
	if i18nName.Valid && i18nName.String != "" {
		return i18nName.String
	}
	return name
}
