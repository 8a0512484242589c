package server

import (
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
	"github.com/NadeemAtDure/dhis2-core/lib/config"
	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
	"github.com/NadeemAtDure/dhis2-core/lib/itemfilter"
	"github.com/NadeemAtDure/dhis2-core/lib/itemstore"
)

func testServer() *Server {
	cfg, err := config.Load(`{"postgres": {"dbname": "dhis2"}}`)
	if err != nil {
		panic(err)
	}
	return &Server{cfg: cfg}
}

func TestParsePagingDefaults(t *testing.T) {
	s := testServer()

	page, pageSize, err := s.parsePaging("", "")
	if err != nil {
		t.Fatalf("parsePaging error: %v", err)
	}
	if page != 1 || pageSize != 50 {
		t.Errorf("defaults = page %d, size %d", page, pageSize)
	}
}

func TestParsePagingCapsPageSize(t *testing.T) {
	s := testServer()

	_, pageSize, err := s.parsePaging("2", "100000")
	if err != nil {
		t.Fatalf("parsePaging error: %v", err)
	}
	if pageSize != s.cfg.Limits.MaxPageSize {
		t.Errorf("pageSize = %d, expected the configured cap", pageSize)
	}
}

func TestParsePagingBoundsFetchWindow(t *testing.T) {
	s := testServer()

	// page*pageSize drives the row fetch, so the page number is bounded
	// by the query row limit.
	maxPage := s.cfg.Limits.MaxQueryRows / s.cfg.Limits.DefaultPageSize
	if _, _, err := s.parsePaging(strconv.Itoa(maxPage), ""); err != nil {
		t.Errorf("page %d should be accepted: %v", maxPage, err)
	}
	if _, _, err := s.parsePaging(strconv.Itoa(maxPage+1), ""); !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Errorf("page %d: got %v, expected invalid parameter", maxPage+1, err)
	}

	// A page number near the int limit must not overflow into a missing
	// SQL LIMIT.
	huge := strconv.Itoa(int(^uint(0) >> 1))
	if _, _, err := s.parsePaging(huge, "1000"); !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Errorf("huge page: got %v, expected invalid parameter", err)
	}
}

func TestParsePagingRejectsGarbage(t *testing.T) {
	s := testServer()

	if _, _, err := s.parsePaging("zero", ""); !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Errorf("bad page: got %v", err)
	}
	if _, _, err := s.parsePaging("", "-5"); !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Errorf("bad page size: got %v", err)
	}
}

func mustFilters(t *testing.T, raw ...string) []itemfilter.Filter {
	t.Helper()
	filters, err := itemfilter.ParseFilters(raw)
	if err != nil {
		t.Fatalf("ParseFilters error: %v", err)
	}
	return filters
}

func TestApplyFiltersTranslatesPatterns(t *testing.T) {
	req := &itemstore.QueryRequest{Params: itemstore.Params{}}
	filters := mustFilters(t,
		"name:ilike:anc 1",
		"valueType:eq:NUMBER",
		"valueType:eq:TEXT",
		"programId:eq:progone1234",
		"dimensionItemType:eq:DATA_ELEMENT",
	)

	if err := applyFilters(req, filters); err != nil {
		t.Fatalf("applyFilters error: %v", err)
	}

	if got := req.Params[itemstore.ParamName]; got != "%anc 1%" {
		t.Errorf("name pattern = %v", got)
	}
	if got := req.Params[itemstore.ParamProgramID]; got != "progone1234" {
		t.Errorf("programId = %v", got)
	}
	valueTypes, _ := req.Params.StringSet(itemstore.ParamValueTypes)
	if len(valueTypes) != 2 {
		t.Errorf("valueTypes = %v", valueTypes)
	}
	if _, ok := req.ItemTypes[dimension.DataElement]; !ok {
		t.Errorf("item types = %v", req.ItemTypes)
	}
}

func TestApplyFiltersExactMatchEscapes(t *testing.T) {
	req := &itemstore.QueryRequest{Params: itemstore.Params{}}

	if err := applyFilters(req, mustFilters(t, "name:eq:50%_done")); err != nil {
		t.Fatalf("applyFilters error: %v", err)
	}
	if got := req.Params[itemstore.ParamName]; got != `50\%\_done` {
		t.Errorf("exact pattern = %v", got)
	}
}

func TestApplyFiltersRejectsNamePlusDisplayName(t *testing.T) {
	req := &itemstore.QueryRequest{Params: itemstore.Params{}}
	filters := mustFilters(t, "name:ilike:anc", "displayName:ilike:anc")

	err := applyFilters(req, filters)
	if !apierror.HasErrorID(err, apierror.ErrUnsupportedCombination) {
		t.Fatalf("expected unsupported_combination, got %v", err)
	}
}

func TestApplyFiltersRejectsBadValueType(t *testing.T) {
	req := &itemstore.QueryRequest{Params: itemstore.Params{}}

	err := applyFilters(req, mustFilters(t, "valueType:eq:SOMETHING"))
	if !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Fatalf("expected invalid_parameter, got %v", err)
	}
}

func TestApplyFiltersRejectsBadItemType(t *testing.T) {
	req := &itemstore.QueryRequest{Params: itemstore.Params{}}

	err := applyFilters(req, mustFilters(t, "dimensionItemType:eq:SOMETHING"))
	if !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Fatalf("expected invalid_parameter, got %v", err)
	}
}

func TestApplyOrders(t *testing.T) {
	params := itemstore.Params{}
	orders, err := itemfilter.ParseOrder([]string{"displayName:desc"})
	if err != nil {
		t.Fatalf("ParseOrder error: %v", err)
	}

	applyOrders(params, orders)
	if got := params[itemstore.ParamDisplayNameOrder]; got != "DESC" {
		t.Errorf("displayNameOrder = %v", got)
	}
	if params.Has(itemstore.ParamNameOrder) {
		t.Error("nameOrder should be unset")
	}
}

func TestImportOptionsFromQuery(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/tracker/events?dryRun=true&importStrategy=CREATE", nil)
	opts, err := importOptionsFromQuery(r)
	if err != nil {
		t.Fatalf("importOptionsFromQuery error: %v", err)
	}
	if !opts.DryRun {
		t.Error("dryRun not set")
	}
	if opts.ImportStrategy != "CREATE" {
		t.Errorf("strategy = %q", opts.ImportStrategy)
	}

	r = httptest.NewRequest("POST", "/api/tracker/events?importStrategy=UPSERT", nil)
	if _, err := importOptionsFromQuery(r); !apierror.HasErrorID(err, apierror.ErrInvalidParameter) {
		t.Errorf("bad strategy: got %v", err)
	}

	r = httptest.NewRequest("POST", "/api/tracker/events", nil)
	opts, err = importOptionsFromQuery(r)
	if err != nil {
		t.Fatalf("importOptionsFromQuery error: %v", err)
	}
	if opts.ImportStrategy != "CREATE_AND_UPDATE" {
		t.Errorf("default strategy = %q", opts.ImportStrategy)
	}
}
