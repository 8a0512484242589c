package itemstore

import (
	"fmt"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
)

// Parameter bag keys shared by every query strategy.
const (
	ParamName             = "name"
	ParamShortName        = "shortName"
	ParamDisplayName      = "displayName"
	ParamLocale           = "locale"
	ParamValueTypes       = "valueTypes"
	ParamNameOrder        = "nameOrder"
	ParamDisplayNameOrder = "displayNameOrder"
	ParamMaxRows          = "maxRows"
	ParamUserID           = "userId"
	ParamProgramID        = "programId"
	ParamUID              = "uid"
)

// Params is the untyped key/value bag shared read-only across all query
// strategies for one logical request. Typed accessors validate the runtime
// type of each entry before any SQL is issued; a mismatch rejects the
// whole request.
type Params map[string]interface{}

func invalidParameter(key, expected string, got interface{}) error {
	return apierror.New(
		apierror.WithHTTPCode(409),
		apierror.WithErrorID(apierror.ErrInvalidParameter),
		apierror.WithPublicMessage(fmt.Sprintf("Parameter %q must be a %s", key, expected)),
		apierror.WithInternalMessage(fmt.Sprintf("parameter %q: expected %s, got %T", key, expected, got)),
	)
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string entry for key, or "" when absent.
func (p Params) String(key string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidParameter(key, "string", raw)
	}
	return s, nil
}

// StringSet returns the string-set entry for key, or nil when absent.
// A present but empty set is as invalid as a wrongly-typed one.
func (p Params) StringSet(key string) ([]string, error) {
	raw, ok := p[key]
	if !ok {
		return nil, nil
	}
	set, ok := raw.([]string)
	if !ok {
		return nil, invalidParameter(key, "string set", raw)
	}
	if len(set) == 0 {
		return nil, invalidParameter(key, "non-empty string set", raw)
	}
	return set, nil
}

// Int returns the int entry for key, or 0 when absent.
func (p Params) Int(key string) (int, error) {
	raw, ok := p[key]
	if !ok {
		return 0, nil
	}
	n, ok := raw.(int)
	if !ok {
		return 0, invalidParameter(key, "int", raw)
	}
	return n, nil
}

// Int64 returns the int64 entry for key, or 0 when absent.
func (p Params) Int64(key string) (int64, error) {
	raw, ok := p[key]
	if !ok {
		return 0, nil
	}
	n, ok := raw.(int64)
	if !ok {
		return 0, invalidParameter(key, "int64", raw)
	}
	return n, nil
}

// HasNumberValueType reports whether the valueTypes entry, when present,
// includes NUMBER. Indicator-like strategies have no intrinsic value type
// but always evaluate to numbers, so a valueTypes filter without NUMBER
// excludes them entirely.
func (p Params) HasNumberValueType() (bool, error) {
	set, err := p.StringSet(ParamValueTypes)
	if err != nil {
		return false, err
	}
	if set == nil {
		return true, nil
	}
	for _, vt := range set {
		if vt == "NUMBER" {
			return true, nil
		}
	}
	return false, nil
}
