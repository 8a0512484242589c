package itemfilter

import (
	"testing"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
)

func TestParseOrderValid(t *testing.T) {
	orders, err := ParseOrder([]string{"name:asc", "displayName:DESC"})
	if err != nil {
		t.Fatalf("ParseOrder error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].Attribute != AttrName || orders[0].Direction != Asc {
		t.Errorf("unexpected first order: %+v", orders[0])
	}
	if orders[1].Attribute != AttrDisplayName || orders[1].Direction != Desc {
		t.Errorf("unexpected second order: %+v", orders[1])
	}
}

func TestParseOrderErrors(t *testing.T) {
	testcases := []struct {
		name        string
		rawOrder    string
		wantErrorID string
	}{
		{"one part", "name", apierror.ErrInvalidOrderSyntax},
		{"three parts", "name:asc:asc", apierror.ErrInvalidOrderSyntax},
		{"unorderable attribute", "valueType:asc", apierror.ErrUnknownOrderAttribute},
		{"unknown attribute", "bogus:asc", apierror.ErrUnknownOrderAttribute},
		{"unknown direction", "name:upwards", apierror.ErrUnknownDirection},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseOrder([]string{tc.rawOrder})
			if err == nil {
				t.Fatalf("expected error for %q", tc.rawOrder)
			}
			if !apierror.HasErrorID(err, tc.wantErrorID) {
				t.Errorf("order %q: expected error ID %q, got %v", tc.rawOrder, tc.wantErrorID, err)
			}
		})
	}
}

func TestCheckCompatibility(t *testing.T) {
	nameOrder := []Order{{Attribute: AttrName, Direction: Asc}}
	displayNameOrder := []Order{{Attribute: AttrDisplayName, Direction: Asc}}
	nameFilter := []Filter{{Attribute: AttrName, Operator: OpILike, Value: "malaria"}}
	displayNameFilter := []Filter{{Attribute: AttrDisplayName, Operator: OpILike, Value: "malaria"}}

	if err := CheckCompatibility(nameOrder, nameFilter); err != nil {
		t.Errorf("name order + name filter should be compatible: %v", err)
	}
	if err := CheckCompatibility(displayNameOrder, displayNameFilter); err != nil {
		t.Errorf("displayName order + displayName filter should be compatible: %v", err)
	}

	if err := CheckCompatibility(nameOrder, displayNameFilter); !apierror.HasErrorID(err, apierror.ErrIncompatibleOrderFilter) {
		t.Errorf("name order + displayName filter: expected incompatibility, got %v", err)
	}
	if err := CheckCompatibility(displayNameOrder, nameFilter); !apierror.HasErrorID(err, apierror.ErrIncompatibleOrderFilter) {
		t.Errorf("displayName order + name filter: expected incompatibility, got %v", err)
	}

	// Non-name filters never conflict with ordering.
	valueTypeFilter := []Filter{{Attribute: AttrValueType, Operator: OpEq, Value: "NUMBER"}}
	if err := CheckCompatibility(displayNameOrder, valueTypeFilter); err != nil {
		t.Errorf("displayName order + valueType filter should be compatible: %v", err)
	}
}
