package result

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mask is a bit set describing how many rows a caller expects.
type Mask int

const (
	// One expects exactly one row.
	One Mask = 1

	// Many expects one or more rows.
	Many Mask = 2

	// None expects no rows.
	None Mask = 4

	// OneOrNone expects zero or one row.
	OneOrNone = One | None

	// ManyOrNone expects any number of rows.
	ManyOrNone = Many | None

	// Any is the implicit default used when no mask is supplied.
	Any = ManyOrNone

	// All has every flag set. It is never accepted as an explicit mask.
	All = One | Many | None
)

// badMask is the contradictory combination: exactly one and many at once.
const badMask = One | Many

// ErrInvalidMask is returned for masks outside the legal explicit set.
var ErrInvalidMask = errors.New("invalid query result mask")

// ValidateMask returns the mask to shape with.
//
// No argument yields Any. Exactly one argument must be a legal explicit
// mask: within [One, ManyOrNone] and without One|Many set together.
func ValidateMask(masks ...Mask) (Mask, error) {
	switch len(masks) {
	case 0:
		return Any, nil
	case 1:
	default:
		return 0, fmt.Errorf("%w: %d masks supplied", ErrInvalidMask, len(masks))
	}
	m := masks[0]
	if m < One || m > ManyOrNone || m&badMask == badMask {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMask, int(m))
	}
	return m, nil
}

// Has reports whether every flag in f is set on m.
func (m Mask) Has(f Mask) bool {
	return m&f == f
}

var maskNames = map[Mask]string{
	One:        "one",
	Many:       "many",
	None:       "none",
	OneOrNone:  "one-or-none",
	ManyOrNone: "many-or-none",
}

// String returns the canonical name of a legal mask, or its number.
func (m Mask) String() string {
	if name, ok := maskNames[m]; ok {
		return name
	}
	return strconv.Itoa(int(m))
}

// ParseMask parses a mask name ("one", "many-or-none", "any", ...) or a
// decimal number. The result is not validated.
func ParseMask(s string) (Mask, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "any" {
		return Any, nil
	}
	for m, n := range maskNames {
		if n == name {
			return m, nil
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMask, s)
	}
	return Mask(n), nil
}
