package itemstore

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// selectCol is one projected column: an expression over the entity table
// alias "t" plus the alias it is exposed under.
type selectCol struct {
	expr  string
	alias string
}

// queryBuilder assembles the per-entity data item search as a predicate
// list over positional arguments. One builder produces either the find or
// the count form of a single logical query; it is not reused.
//
// Display-name resolution is locale-aware: when a locale is set, the query
// becomes a union of three disjoint row sets (rows translated for that
// exact locale, rows whose translations lack the locale, and rows with no
// translations at all, both falling back to the raw name). The union is
// built once here, parameterized by table name, rather than per entity.
type queryBuilder struct {
	table string
	cols  []selectCol

	whereClauses []string
	args         []interface{}

	localeArg          string
	displayNamePattern string

	orderClause      string
	orderClauseOuter string

	limit int
}

func newQueryBuilder(table string, extraCols ...selectCol) *queryBuilder {
	cols := []selectCol{
		{expr: `t.uid`, alias: "uid"},
		{expr: `t."name"`, alias: "name"},
		{expr: `t.code`, alias: "code"},
	}
	cols = append(cols, extraCols...)

	return &queryBuilder{
		table: table,
		cols:  cols,
	}
}

func (qb *queryBuilder) addArg(value interface{}) string {
	n := len(qb.args)
	name := fmt.Sprintf("$%d", (n + 1))
	qb.args = append(qb.args, value)
	return name
}

// addSharingConditions restricts rows to those the requesting user may
// read: publicly readable, explicitly granted, or granted through a group.
// Access tables follow the <table>useraccess / <table>usergroupaccess
// naming convention with id column <table>id.
func (qb *queryBuilder) addSharingConditions(userID int64) {
	arg := qb.addArg(userID)
	idCol := qb.table + "id"

	qb.whereClauses = append(qb.whereClauses, fmt.Sprintf(
		"(t.publicaccess IS NULL OR t.publicaccess LIKE 'r%%' OR t.publicaccess LIKE '__r%%'"+
			" OR EXISTS (SELECT 1 FROM %[1]suseraccess ua"+
			" WHERE ua.%[2]s = t.%[2]s AND ua.access LIKE '__r%%' AND ua.userid = %[3]s)"+
			" OR EXISTS (SELECT 1 FROM %[1]susergroupaccess uga"+
			" JOIN usergroupmembers ugm ON ugm.usergroupid = uga.usergroupid"+
			" WHERE uga.%[2]s = t.%[2]s AND uga.access LIKE '__r%%' AND ugm.userid = %[3]s))",
		qb.table, idCol, arg,
	))
}

func (qb *queryBuilder) addNameFilter(pattern string) {
	arg := qb.addArg(pattern)
	qb.whereClauses = append(qb.whereClauses, fmt.Sprintf(`t."name" ILIKE %s`, arg))
}

func (qb *queryBuilder) addShortNameFilter(pattern string) {
	arg := qb.addArg(pattern)
	qb.whereClauses = append(qb.whereClauses, fmt.Sprintf("t.shortname ILIKE %s", arg))
}

func (qb *queryBuilder) addUIDFilter(uid string) {
	arg := qb.addArg(uid)
	qb.whereClauses = append(qb.whereClauses, fmt.Sprintf("t.uid = %s", arg))
}

// addProgramFilter restricts rows to those belonging to the program with
// the given uid. Only meaningful for tables carrying a programid column.
func (qb *queryBuilder) addProgramFilter(programUID string) {
	arg := qb.addArg(programUID)
	qb.whereClauses = append(qb.whereClauses, fmt.Sprintf(
		"t.programid = (SELECT p.programid FROM program p WHERE p.uid = %s)", arg))
}

func (qb *queryBuilder) addValueTypeFilter(valueTypes []string) {
	arg := qb.addArg(pq.Array(valueTypes))
	qb.whereClauses = append(qb.whereClauses, fmt.Sprintf("t.valuetype = ANY(%s)", arg))
}

func (qb *queryBuilder) setLocale(locale string) {
	if locale == "" {
		return
	}
	qb.localeArg = qb.addArg(locale)
}

// setDisplayNameFilter matches the resolved display name: against the
// translated value in the exact-locale branch, against the raw name in the
// fallback branches (and in the plain form when no locale is requested).
func (qb *queryBuilder) setDisplayNameFilter(pattern string) {
	qb.displayNamePattern = pattern
}

func (qb *queryBuilder) setOrderByName(direction string) {
	qb.orderClause = fmt.Sprintf(`t."name" %s, t.uid ASC`, direction)
	qb.orderClauseOuter = fmt.Sprintf(`"name" %s, uid ASC`, direction)
}

func (qb *queryBuilder) setOrderByDisplayName(direction string) {
	qb.orderClause = fmt.Sprintf("i18n_name %s, t.uid ASC", direction)
	qb.orderClauseOuter = fmt.Sprintf("i18n_name %s, uid ASC", direction)
}

func (qb *queryBuilder) setLimit(limit int) {
	qb.limit = limit
}

func (qb *queryBuilder) innerSelect(displayNameExpr string) string {
	parts := make([]string, 0, len(qb.cols)+1)
	for _, c := range qb.cols {
		parts = append(parts, c.expr+" AS "+c.alias)
	}
	parts = append(parts, displayNameExpr+" AS i18n_name")
	return "SELECT " + strings.Join(parts, ", ")
}

func (qb *queryBuilder) commonWhere() string {
	if len(qb.whereClauses) == 0 {
		return "TRUE"
	}
	return strings.Join(qb.whereClauses, " AND ")
}

// translationRecordset expands the jsonb translations column into rows.
var translationRecordset = "jsonb_to_recordset(t.translations) AS tr(value TEXT, locale TEXT, property TEXT)"

func (qb *queryBuilder) buildBody() string {
	if qb.localeArg == "" {
		// No locale: display name is the raw name.
		body := qb.innerSelect(`t."name"`) + "\nFROM " + qb.table + " t" +
			"\nWHERE " + qb.commonWhere()
		if qb.displayNamePattern != "" {
			arg := qb.addArg(qb.displayNamePattern)
			body += fmt.Sprintf(`
AND   t."name" ILIKE %s`, arg)
		}
		return body
	}

	var displayNameCond, rawNameCond string
	if qb.displayNamePattern != "" {
		arg := qb.addArg(qb.displayNamePattern)
		displayNameCond = "\nAND   tr.value ILIKE " + arg
		rawNameCond = fmt.Sprintf(`
AND   t."name" ILIKE %s`, arg)
	}

	// Branch 1: rows translated for the requested locale.
	translated := qb.innerSelect("tr.value") +
		"\nFROM " + qb.table + " t, " + translationRecordset +
		"\nWHERE tr.property = 'NAME' AND tr.locale = " + qb.localeArg +
		"\nAND   " + qb.commonWhere() +
		displayNameCond

	// Branch 2: rows with translations, none of them for this locale.
	missingLocale := qb.innerSelect(`t."name"`) +
		"\nFROM " + qb.table + " t" +
		"\nWHERE t.translations IS NOT NULL AND t.translations::text <> '[]'" +
		"\nAND   NOT EXISTS (SELECT 1 FROM " + translationRecordset +
		" WHERE tr.property = 'NAME' AND tr.locale = " + qb.localeArg + ")" +
		"\nAND   " + qb.commonWhere() +
		rawNameCond

	// Branch 3: rows with no translations at all.
	untranslated := qb.innerSelect(`t."name"`) +
		"\nFROM " + qb.table + " t" +
		"\nWHERE (t.translations IS NULL OR t.translations::text = '[]')" +
		"\nAND   " + qb.commonWhere() +
		rawNameCond

	outerCols := make([]string, 0, len(qb.cols)+1)
	for _, c := range qb.cols {
		outerCols = append(outerCols, c.alias)
	}
	outerCols = append(outerCols, "i18n_name")

	return "SELECT " + strings.Join(outerCols, ", ") + " FROM (\n" +
		translated + "\nUNION\n" + missingLocale + "\nUNION\n" + untranslated +
		"\n) t"
}

// buildFindQuery renders the row-returning form, with ordering and limit.
func (qb *queryBuilder) buildFindQuery() (string, []interface{}) {
	query := qb.buildBody()

	order := qb.orderClause
	if qb.localeArg != "" {
		order = qb.orderClauseOuter
	}
	if order != "" {
		query += "\nORDER BY " + order
	}

	if qb.limit > 0 {
		query += "\nLIMIT " + qb.addArg(qb.limit)
	}

	return query, qb.args
}

// buildCountQuery renders the cardinality form: identical filtering, no
// ordering or limit.
func (qb *queryBuilder) buildCountQuery() (string, []interface{}) {
	return "SELECT COUNT(*) FROM (\n" + qb.buildBody() + "\n) counted", qb.args
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ILikePattern wraps a raw search value for substring ILIKE matching,
// escaping the pattern metacharacters in the user-supplied part. Bag
// entries for name, shortName and displayName carry pre-wrapped
// patterns produced here.
func ILikePattern(value string) string {
	return "%" + patternEscaper.Replace(value) + "%"
}

// ExactPattern escapes a raw value for exact (though case-insensitive)
// ILIKE matching.
func ExactPattern(value string) string {
	return patternEscaper.Replace(value)
}
