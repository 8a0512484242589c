// Package dimension holds the domain model for analytics dimension items:
// the entities (data elements, reporting rates, indicators, program
// indicators, program data elements) a user can pick as a chart or report
// dimension.
package dimension

// ItemType identifies the kind of entity behind a data item.
type ItemType string

const (
	DataElement        = ItemType("DATA_ELEMENT")
	ReportingRate      = ItemType("REPORTING_RATE")
	Indicator          = ItemType("INDICATOR")
	ProgramIndicator   = ItemType("PROGRAM_INDICATOR")
	ProgramDataElement = ItemType("PROGRAM_DATA_ELEMENT")
)

// ItemTypePriority is the fixed order in which per-type result blocks are
// concatenated when aggregating across item types.
var ItemTypePriority = []ItemType{
	DataElement,
	ReportingRate,
	Indicator,
	ProgramIndicator,
	ProgramDataElement,
}

// ParseItemType maps a raw string onto a known ItemType.
func ParseItemType(s string) (ItemType, bool) {
	switch ItemType(s) {
	case DataElement, ReportingRate, Indicator, ProgramIndicator, ProgramDataElement:
		return ItemType(s), true
	}
	return "", false
}

// DataItem is a read-only projection of one dimension item. It is
// constructed per query row and never persisted by this subsystem.
type DataItem struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	DisplayName         string   `json:"displayName"`
	Code                string   `json:"code,omitempty"`
	ValueType           string   `json:"valueType,omitempty"`
	SimplifiedValueType string   `json:"simplifiedValueType,omitempty"`
	DimensionItemType   ItemType `json:"dimensionItemType"`
	ProgramID           string   `json:"programId,omitempty"`
}
