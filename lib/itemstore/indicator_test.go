package itemstore

import (
	"context"
	"strings"
	"testing"
)

// A programId filter must restrict program indicators to the named
// program, in the find and count forms alike.
func TestProgramIndicatorQueryFiltersByProgram(t *testing.T) {
	params := Params{
		ParamUserID:    int64(7),
		ParamProgramID: "progone1234",
	}

	programCond := "t.programid = (SELECT p.programid FROM program p WHERE p.uid = $2)"

	q := NewProgramIndicatorQuery(nil)

	qb, err := q.builder(params)
	if err != nil {
		t.Fatalf("builder error: %v", err)
	}
	query, args := qb.buildFindQuery()
	if !strings.Contains(query, programCond) {
		t.Errorf("find query missing program predicate:\n%s", query)
	}
	if len(args) != 2 || args[1] != "progone1234" {
		t.Errorf("find args = %v", args)
	}

	// Builders are single-use; the count form needs a fresh one.
	qb, err = q.builder(params)
	if err != nil {
		t.Fatalf("builder error: %v", err)
	}
	query, args = qb.buildCountQuery()
	if !strings.Contains(query, programCond) {
		t.Errorf("count query missing program predicate:\n%s", query)
	}
	if len(args) != 2 || args[1] != "progone1234" {
		t.Errorf("count args = %v", args)
	}
}

// Indicators and program indicators carry a forced NUMBER value type; a
// value type filter that excludes NUMBER must short-circuit both Find
// and Count before any query executes. The nil handle would panic if
// either reached the database.
func TestIndicatorQueriesShortCircuitOnValueTypeFilter(t *testing.T) {
	params := Params{
		ParamUserID:     int64(1),
		ParamValueTypes: []string{"TEXT", "BOOLEAN"},
	}

	queries := []ItemQuery{
		NewIndicatorQuery(nil),
		NewProgramIndicatorQuery(nil),
	}
	for _, q := range queries {
		items, err := q.Find(context.Background(), params)
		if err != nil {
			t.Fatalf("%s Find error: %v", q.ItemType(), err)
		}
		if len(items) != 0 {
			t.Errorf("%s Find = %+v, expected empty", q.ItemType(), items)
		}

		count, err := q.Count(context.Background(), params)
		if err != nil {
			t.Fatalf("%s Count error: %v", q.ItemType(), err)
		}
		if count != 0 {
			t.Errorf("%s Count = %d, expected 0", q.ItemType(), count)
		}
	}
}
