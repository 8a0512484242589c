package dimension

// ValueType is the declared storage type of a data element's values.
type ValueType string

const (
	Number                ValueType = "NUMBER"
	Integer               ValueType = "INTEGER"
	IntegerPositive       ValueType = "INTEGER_POSITIVE"
	IntegerNegative       ValueType = "INTEGER_NEGATIVE"
	IntegerZeroOrPositive ValueType = "INTEGER_ZERO_OR_POSITIVE"
	UnitInterval          ValueType = "UNIT_INTERVAL"
	Percentage            ValueType = "PERCENTAGE"
	Text                  ValueType = "TEXT"
	LongText              ValueType = "LONG_TEXT"
	Letter                ValueType = "LETTER"
	PhoneNumber           ValueType = "PHONE_NUMBER"
	Email                 ValueType = "EMAIL"
	Boolean               ValueType = "BOOLEAN"
	TrueOnly              ValueType = "TRUE_ONLY"
	Date                  ValueType = "DATE"
	DateTime              ValueType = "DATETIME"
	Time                  ValueType = "TIME"
	Username              ValueType = "USERNAME"
	Coordinate            ValueType = "COORDINATE"
	OrganisationUnit      ValueType = "ORGANISATION_UNIT"
	FileResource          ValueType = "FILE_RESOURCE"
	Image                 ValueType = "IMAGE"
	URL                   ValueType = "URL"
)

var allValueTypes = map[ValueType]struct{}{
	Number: {}, Integer: {}, IntegerPositive: {}, IntegerNegative: {},
	IntegerZeroOrPositive: {}, UnitInterval: {}, Percentage: {},
	Text: {}, LongText: {}, Letter: {}, PhoneNumber: {}, Email: {},
	Boolean: {}, TrueOnly: {}, Date: {}, DateTime: {}, Time: {},
	Username: {}, Coordinate: {}, OrganisationUnit: {},
	FileResource: {}, Image: {}, URL: {},
}

// ParseValueType maps a raw database or request string onto a ValueType.
// Unknown strings fall back to TEXT; stored metadata predates some of the
// newer types and must not break row mapping.
func ParseValueType(s string) ValueType {
	vt := ValueType(s)
	if _, ok := allValueTypes[vt]; ok {
		return vt
	}
	return Text
}

// IsValueType reports whether s names a known value type.
func IsValueType(s string) bool {
	_, ok := allValueTypes[ValueType(s)]
	return ok
}

// Simplified collapses a ValueType into the coarse group shown by the
// dimension picker: NUMBER, TEXT, BOOLEAN, DATE, or the type itself.
func (v ValueType) Simplified() ValueType {
	switch v {
	case Number, Integer, IntegerPositive, IntegerNegative,
		IntegerZeroOrPositive, UnitInterval, Percentage:
		return Number
	case Text, LongText, Letter, PhoneNumber, Email, Username, URL:
		return Text
	case Boolean, TrueOnly:
		return Boolean
	case Date, DateTime, Time:
		return Date
	default:
		return v
	}
}
