// Package itemfilter parses and validates the two query-parameter
// mini-languages used by the data item endpoint: filter expressions
// ("attribute:operator:value") and order expressions
// ("attribute:direction").
package itemfilter

import (
	"fmt"
	"strings"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
)

// MinTextSearchLength is the minimum length of a filter's value segment.
const MinTextSearchLength = 2

// Attribute is a filterable data item attribute.
type Attribute string

const (
	AttrName              = Attribute("name")
	AttrDisplayName       = Attribute("displayName")
	AttrShortName         = Attribute("shortName")
	AttrValueType         = Attribute("valueType")
	AttrDimensionItemType = Attribute("dimensionItemType")
	AttrID                = Attribute("id")
	AttrProgramID         = Attribute("programId")
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq    = Operator("eq")
	OpILike = Operator("ilike")
)

var attributes = map[Attribute]struct{}{
	AttrName: {}, AttrDisplayName: {}, AttrShortName: {},
	AttrValueType: {}, AttrDimensionItemType: {}, AttrID: {}, AttrProgramID: {},
}

var operators = map[Operator]struct{}{
	OpEq: {}, OpILike: {},
}

// combinations is the whitelist of attribute:operator pairs accepted by
// the query layer. Anything outside it is rejected up front, so the
// query strategies only ever see combinations they can translate.
var combinations = map[string]struct{}{
	"name:ilike":           {},
	"name:eq":              {},
	"displayName:ilike":    {},
	"displayName:eq":       {},
	"shortName:ilike":      {},
	"valueType:eq":         {},
	"dimensionItemType:eq": {},
	"id:eq":                {},
	"programId:eq":         {},
}

// Filter is one parsed filter expression.
type Filter struct {
	Attribute Attribute
	Operator  Operator
	Value     string
}

// ParseFilters validates and parses a set of raw filter tokens. The first
// invalid token aborts the whole call; no partial result is returned.
func ParseFilters(rawFilters []string) ([]Filter, error) {
	var parsed []Filter

	for _, raw := range rawFilters {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, apierror.NewIllegalQuery(apierror.ErrInvalidFilterSyntax,
				fmt.Sprintf("Unable to parse filter %q: expected the format attribute:operator:value", raw))
		}

		attribute := strings.TrimSpace(parts[0])
		operator := strings.TrimSpace(parts[1])
		value := strings.TrimSpace(parts[2])

		if len(value) < MinTextSearchLength {
			return nil, apierror.NewIllegalQuery(apierror.ErrValueTooShort,
				fmt.Sprintf("At least %d characters must be present in filter %q", MinTextSearchLength, raw))
		}

		if _, ok := attributes[Attribute(attribute)]; !ok {
			return nil, apierror.NewIllegalQuery(apierror.ErrUnknownAttribute,
				fmt.Sprintf("Filter not supported: %q", attribute))
		}

		if _, ok := operators[Operator(operator)]; !ok {
			return nil, apierror.NewIllegalQuery(apierror.ErrUnknownOperator,
				fmt.Sprintf("Operator not supported: %q", operator))
		}

		if _, ok := combinations[attribute+":"+operator]; !ok {
			return nil, apierror.NewIllegalQuery(apierror.ErrUnsupportedCombination,
				fmt.Sprintf("Combination not supported: %q", attribute+":"+operator))
		}

		parsed = append(parsed, Filter{
			Attribute: Attribute(attribute),
			Operator:  Operator(operator),
			Value:     value,
		})
	}

	return parsed, nil
}
