package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// DefaultIDField is the identifier field used when none is configured.
const DefaultIDField = "id"

const (
	// maxExactFloat64 is the largest magnitude below which every integer is
	// representable as a float64.
	maxExactFloat64 = 1 << 53
	maxExactFloat32 = 1 << 24

	// maxExactExponent bounds the exponent of a JSON number expanded exactly.
	maxExactExponent = 400
)

// Item is one dataset entry: an opaque set of fields decoded from a JSON
// object. It must carry a unique identifier under the configured field name.
type Item map[string]any

// Dataset is an ordered, fully materialised sequence of items.
type Dataset []Item

// Record is the durable result persisted for one successfully processed item.
// It carries the identifier field so later resume scans recognise it.
type Record map[string]any

// ID returns the canonical string form of the item's identifier.
func (i Item) ID(field string) (string, error) {
	return identifier(i, field)
}

// ID returns the canonical string form of the record's identifier.
func (r Record) ID(field string) (string, error) {
	return identifier(r, field)
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// CanonicalID renders an identifier value so that the same identifier read
// back from JSON compares equal: 1, 1.0, json.Number("1") and "1" all map to "1".
// Integral JSON numbers keep every digit. Floats holding an integer too large
// to be exact are rejected, since distinct identifiers would collide.
func CanonicalID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", ErrMissingIdentifier
	case string:
		return id, nil
	case json.Number:
		return canonicalNumber(id.String()), nil
	case float64:
		return canonicalFloat(id, 64, maxExactFloat64)
	case float32:
		return canonicalFloat(float64(id), 32, maxExactFloat32)
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case int32:
		return strconv.FormatInt(int64(id), 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case bool:
		return strconv.FormatBool(id), nil
	default:
		return "", fmt.Errorf("%w: unsupported identifier type %T", ErrInvalidIdentifier, v)
	}
}

func identifier(fields map[string]any, field string) (string, error) {
	if field == "" {
		field = DefaultIDField
	}
	v, ok := fields[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: field %q", ErrMissingIdentifier, field)
	}
	id, err := CanonicalID(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", field, err)
	}
	return id, nil
}

// canonicalNumber strips a redundant fractional part so "3.0" and "3" agree.
// Integers are rendered exactly at any size; other values use the shortest
// float64 form.
func canonicalNumber(s string) string {
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return n.String()
	}
	if exactExponent(s) {
		if r, ok := new(big.Rat).SetString(s); ok && r.IsInt() {
			return r.Num().String()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// exactExponent reports whether s has no exponent or a small enough one to
// expand without building a huge integer.
func exactExponent(s string) bool {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return true
	}
	exp, err := strconv.Atoi(s[i+1:])
	return err == nil && exp >= -maxExactExponent && exp <= maxExactExponent
}

func canonicalFloat(f float64, bitSize int, maxExact float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite identifier", ErrInvalidIdentifier)
	}
	if f == math.Trunc(f) && math.Abs(f) > maxExact {
		return "", fmt.Errorf("%w: integer identifier %v is not exactly representable", ErrInvalidIdentifier, f)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize), nil
}
