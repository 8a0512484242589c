package itemstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
)

// ProgramDataElementQuery provides query capabilities on top of data
// elements reached through a program stage: program -> program stage ->
// data element. The displayed name composes the program and data element
// names; the combined identifier is "<program uid>.<data element uid>".
type ProgramDataElementQuery struct {
	db *sql.DB
}

func NewProgramDataElementQuery(db *sql.DB) *ProgramDataElementQuery {
	return &ProgramDataElementQuery{db: db}
}

func (q *ProgramDataElementQuery) ItemType() dimension.ItemType {
	return dimension.ProgramDataElement
}

// buildBody assembles the joined query. Sharing applies to both the
// program and the data element; the name filter matches either name.
func (q *ProgramDataElementQuery) buildBody(params Params) (string, []interface{}, error) {
	var args []interface{}
	addArg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	userID, err := params.Int64(ParamUserID)
	if err != nil {
		return "", nil, err
	}
	userArg := addArg(userID)

	sharing := func(table, alias string) string {
		idCol := table + "id"
		return fmt.Sprintf(
			"(%[2]s.publicaccess IS NULL OR %[2]s.publicaccess LIKE 'r%%' OR %[2]s.publicaccess LIKE '__r%%'"+
				" OR EXISTS (SELECT 1 FROM %[1]suseraccess ua"+
				" WHERE ua.%[3]s = %[2]s.%[3]s AND ua.access LIKE '__r%%' AND ua.userid = %[4]s)"+
				" OR EXISTS (SELECT 1 FROM %[1]susergroupaccess uga"+
				" JOIN usergroupmembers ugm ON ugm.usergroupid = uga.usergroupid"+
				" WHERE uga.%[3]s = %[2]s.%[3]s AND uga.access LIKE '__r%%' AND ugm.userid = %[4]s))",
			table, alias, idCol, userArg,
		)
	}

	whereClauses := []string{
		"p.programid = ps.programid",
		"psde.programstageid = ps.programstageid",
		"psde.dataelementid = de.dataelementid",
		"(" + sharing("program", "p") + " AND " + sharing("dataelement", "de") + ")",
	}

	name, err := params.String(ParamName)
	if err != nil {
		return "", nil, err
	}
	displayName, err := params.String(ParamDisplayName)
	if err != nil {
		return "", nil, err
	}
	// Program data element names have no translations; a display name
	// filter matches the composed raw names like a name filter does.
	if pattern := firstNonEmpty(name, displayName); pattern != "" {
		arg := addArg(pattern)
		whereClauses = append(whereClauses,
			fmt.Sprintf(`(p."name" ILIKE %[1]s OR de."name" ILIKE %[1]s)`, arg))
	}

	shortName, err := params.String(ParamShortName)
	if err != nil {
		return "", nil, err
	}
	if shortName != "" {
		arg := addArg(shortName)
		whereClauses = append(whereClauses,
			fmt.Sprintf("(p.shortname ILIKE %[1]s OR de.shortname ILIKE %[1]s)", arg))
	}

	programUID, err := params.String(ParamProgramID)
	if err != nil {
		return "", nil, err
	}
	if programUID != "" {
		arg := addArg(programUID)
		whereClauses = append(whereClauses, "p.uid = "+arg)
	}

	valueTypes, err := params.StringSet(ParamValueTypes)
	if err != nil {
		return "", nil, err
	}
	if valueTypes != nil {
		arg := addArg(pq.Array(valueTypes))
		whereClauses = append(whereClauses, "de.valuetype = ANY("+arg+")")
	}

	query := `SELECT p."name" AS program_name, p.uid AS program_uid,` +
		` de."name" AS name, de.uid AS uid, de.code AS code, de.valuetype AS valuetype` +
		"\nFROM programstagedataelement psde, dataelement de, programstage ps, program p" +
		"\nWHERE " + strings.Join(whereClauses, "\nAND   ")

	return query, args, nil
}

func (q *ProgramDataElementQuery) Find(ctx context.Context, params Params) ([]dimension.DataItem, error) {
	query, args, err := q.buildBody(params)
	if err != nil {
		return nil, err
	}

	nameOrder, err := params.String(ParamNameOrder)
	if err != nil {
		return nil, err
	}
	displayNameOrder, err := params.String(ParamDisplayNameOrder)
	if err != nil {
		return nil, err
	}
	if direction := firstNonEmpty(displayNameOrder, nameOrder); direction != "" {
		query += fmt.Sprintf("\nORDER BY program_name %[1]s, name %[1]s, uid ASC", direction)
	}

	maxRows, err := params.Int(ParamMaxRows)
	if err != nil {
		return nil, err
	}
	if maxRows > 0 {
		args = append(args, maxRows)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying program data elements: %w", err)
	}
	defer rows.Close()

	var items []dimension.DataItem
	for rows.Next() {
		var programName, programUID, name, uid, rawValueType string
		var code sql.NullString

		if err := rows.Scan(&programName, &programUID, &name, &uid, &code, &rawValueType); err != nil {
			return nil, err
		}

		valueType := dimension.ParseValueType(rawValueType)
		composedName := programName + " " + name

		items = append(items, dimension.DataItem{
			ID:                  programUID + "." + uid,
			Name:                composedName,
			DisplayName:         composedName,
			Code:                orEmpty(code),
			ValueType:           string(valueType),
			SimplifiedValueType: string(valueType.Simplified()),
			DimensionItemType:   dimension.ProgramDataElement,
			ProgramID:           programUID,
		})
	}

	return items, rows.Err()
}

func (q *ProgramDataElementQuery) Count(ctx context.Context, params Params) (int, error) {
	query, args, err := q.buildBody(params)
	if err != nil {
		return 0, err
	}

	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM (\n"+query+"\n) counted", args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
