package itemfilter

import (
	"fmt"
	"strings"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  = Direction("ASC")
	Desc = Direction("DESC")
)

// Order is one parsed order expression.
type Order struct {
	Attribute Attribute
	Direction Direction
}

// Only a few data item attributes are orderable.
var orderAttributes = map[Attribute]struct{}{
	AttrName:        {},
	AttrDisplayName: {},
}

// ParseOrder validates and parses a set of raw order tokens in the format
// "attribute:direction". The first invalid token aborts the whole call.
func ParseOrder(rawOrder []string) ([]Order, error) {
	var parsed []Order

	for _, raw := range rawOrder {
		parts := strings.Split(raw, ":")
		if len(parts) != 2 {
			return nil, apierror.NewIllegalQuery(apierror.ErrInvalidOrderSyntax,
				fmt.Sprintf("Unable to parse order param %q: expected the format attribute:direction", raw))
		}

		attribute := strings.TrimSpace(parts[0])
		direction := strings.TrimSpace(parts[1])

		if _, ok := orderAttributes[Attribute(attribute)]; !ok {
			return nil, apierror.NewIllegalQuery(apierror.ErrUnknownOrderAttribute,
				fmt.Sprintf("Order not supported: %q", attribute))
		}

		switch strings.ToLower(direction) {
		case "asc":
			parsed = append(parsed, Order{Attribute: Attribute(attribute), Direction: Asc})
		case "desc":
			parsed = append(parsed, Order{Attribute: Attribute(attribute), Direction: Desc})
		default:
			return nil, apierror.NewIllegalQuery(apierror.ErrUnknownDirection,
				fmt.Sprintf("Order direction not supported: %q", direction))
		}
	}

	return parsed, nil
}

// CheckCompatibility rejects order/filter pairs that mix raw name and
// resolved display name: filtering by "name" while ordering by
// "displayName" (or vice versa) is not allowed, because the two resolve
// against different columns and would produce confusing windows.
func CheckCompatibility(orders []Order, filters []Filter) error {
	for _, order := range orders {
		for _, filter := range filters {
			orderAttr := strings.ToLower(string(order.Attribute))
			filterAttr := strings.ToLower(string(filter.Attribute))

			mixed := (orderAttr == "displayname" && filterAttr == "name") ||
				(orderAttr == "name" && filterAttr == "displayname")
			if mixed {
				return apierror.NewIllegalQuery(apierror.ErrIncompatibleOrderFilter,
					fmt.Sprintf("Order not allowed with the given filter: %s:%s + %s:%s:%s",
						order.Attribute, strings.ToLower(string(order.Direction)),
						filter.Attribute, filter.Operator, filter.Value))
			}
		}
	}

	return nil
}
