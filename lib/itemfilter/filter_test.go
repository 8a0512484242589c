package itemfilter

import (
	"testing"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
)

func TestParseFiltersValid(t *testing.T) {
	filters, err := ParseFilters([]string{
		"name:ilike:malaria",
		"valueType:eq:NUMBER",
		"dimensionItemType:eq:INDICATOR",
	})
	if err != nil {
		t.Fatalf("ParseFilters error: %v", err)
	}
	if len(filters) != 3 {
		t.Fatalf("expected 3 filters, got %d", len(filters))
	}
	if filters[0].Attribute != AttrName || filters[0].Operator != OpILike || filters[0].Value != "malaria" {
		t.Errorf("unexpected first filter: %+v", filters[0])
	}
}

func TestParseFiltersTrimsParts(t *testing.T) {
	filters, err := ParseFilters([]string{" name : ilike : malaria "})
	if err != nil {
		t.Fatalf("ParseFilters error: %v", err)
	}
	if filters[0].Value != "malaria" {
		t.Errorf("expected trimmed value, got %q", filters[0].Value)
	}
}

func TestParseFiltersNoFilters(t *testing.T) {
	filters, err := ParseFilters(nil)
	if err != nil {
		t.Fatalf("ParseFilters error: %v", err)
	}
	if len(filters) != 0 {
		t.Fatalf("expected no filters, got %d", len(filters))
	}
}

func TestParseFiltersErrors(t *testing.T) {
	testcases := []struct {
		name        string
		rawFilter   string
		wantErrorID string
	}{
		{"missing parts", "name:ilike", apierror.ErrInvalidFilterSyntax},
		{"too many parts", "name:ilike:a:b", apierror.ErrInvalidFilterSyntax},
		{"empty", "", apierror.ErrInvalidFilterSyntax},
		{"short value", "name:ilike:x", apierror.ErrValueTooShort},
		{"short value beats unknown attribute", "bogus:ilike:x", apierror.ErrValueTooShort},
		{"unknown attribute", "bogus:ilike:malaria", apierror.ErrUnknownAttribute},
		{"unknown operator", "name:like:malaria", apierror.ErrUnknownOperator},
		{"combination not supported", "valueType:ilike:NUMBER", apierror.ErrUnsupportedCombination},
		{"id only supports eq", "id:ilike:abcdefone11", apierror.ErrUnsupportedCombination},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFilters([]string{tc.rawFilter})
			if err == nil {
				t.Fatalf("expected error for %q", tc.rawFilter)
			}
			if !apierror.HasErrorID(err, tc.wantErrorID) {
				t.Errorf("filter %q: expected error ID %q, got %v", tc.rawFilter, tc.wantErrorID, err)
			}
		})
	}
}

func TestParseFiltersFailsFast(t *testing.T) {
	_, err := ParseFilters([]string{"name:ilike:malaria", "broken", "also:broken:here:x"})
	if !apierror.HasErrorID(err, apierror.ErrInvalidFilterSyntax) {
		t.Fatalf("expected invalid syntax error, got %v", err)
	}
}
