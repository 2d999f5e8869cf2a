package constants

import "strings"

// Unit is the measurement unit of an invoice line item.
type Unit string

const (
	UnitMetre       Unit = "M"
	UnitSquareMetre Unit = "M2"
	UnitCubicMetre  Unit = "M3"
	UnitGram        Unit = "g"
	UnitKilogram    Unit = "kg"
	UnitTons        Unit = "tons"
	UnitFeet        Unit = "feet"
	UnitNumber      Unit = "NR"
	UnitOne         Unit = "1"
)

// DefaultUnit is used when a line item carries no recognizable unit.
const DefaultUnit = UnitNumber

var allUnits = []Unit{
	UnitMetre,
	UnitSquareMetre,
	UnitCubicMetre,
	UnitGram,
	UnitKilogram,
	UnitTons,
	UnitFeet,
	UnitNumber,
	UnitOne,
}

// UnitsAsStringSlice returns the unit vocabulary in declaration order.
func UnitsAsStringSlice() []string {
	result := make([]string, len(allUnits))
	for i, u := range allUnits {
		result[i] = string(u)
	}
	return result
}

// unit spellings seen on supplier invoices
var unitSynonyms = map[string]Unit{
	"m":      UnitMetre,
	"mtr":    UnitMetre,
	"mtrs":   UnitMetre,
	"lm":     UnitMetre,
	"m2":     UnitSquareMetre,
	"m²":     UnitSquareMetre,
	"sqm":    UnitSquareMetre,
	"m3":     UnitCubicMetre,
	"m³":     UnitCubicMetre,
	"cum":    UnitCubicMetre,
	"g":      UnitGram,
	"gr":     UnitGram,
	"kg":     UnitKilogram,
	"kgs":    UnitKilogram,
	"t":      UnitTons,
	"ton":    UnitTons,
	"tons":   UnitTons,
	"tonne":  UnitTons,
	"tonnes": UnitTons,
	"ft":     UnitFeet,
	"feet":   UnitFeet,
	"foot":   UnitFeet,
	"nr":     UnitNumber,
	"no":     UnitNumber,
	"ea":     UnitNumber,
	"each":   UnitNumber,
	"pcs":    UnitNumber,
	"item":   UnitNumber,
}

// ParseUnit maps a raw token to the unit vocabulary. The bare "1" unit is only
// accepted from structured input, never from free text, so it is not a synonym.
func ParseUnit(token string) (Unit, bool) {
	t := strings.ToLower(strings.Trim(strings.TrimSpace(token), ".,"))
	if t == "" {
		return "", false
	}
	u, ok := unitSynonyms[t]
	return u, ok
}

// CanonicalUnit normalizes a unit coming from structured output. Anything
// outside the vocabulary falls back to DefaultUnit.
func CanonicalUnit(s string) Unit {
	s = strings.TrimSpace(s)
	for _, u := range allUnits {
		if s == string(u) {
			return u
		}
	}
	if u, ok := ParseUnit(s); ok {
		return u
	}
	return DefaultUnit
}
