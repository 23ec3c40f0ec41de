// Package identity persists enrolled faces: a name, a face descriptor and a
// reference image per person. The whole store is one JSON document that is
// read and rewritten as a unit.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrDuplicateIdentity is returned by Add when the name is already enrolled
	// (compared case-insensitively) or would share a reference image with an
	// enrolled name.
	ErrDuplicateIdentity = errors.New("identity already enrolled")

	// ErrStoreCorrupt is returned by Load when the document exists but cannot be used.
	ErrStoreCorrupt = errors.New("identity store is corrupt")

	// ErrEmptyName is returned when a name is blank after trimming.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrInvalidDescriptor is returned for an empty descriptor or one of the wrong length.
	ErrInvalidDescriptor = errors.New("invalid face descriptor")
)

// Descriptor is the fixed-length vector the matcher computes for one face.
type Descriptor []float64

// Finite reports whether every component is a finite number.
func (d Descriptor) Finite() bool {
	for _, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Identity is one enrolled person.
type Identity struct {
	ID         string     `json:"-"`
	Name       string     `json:"name"`
	Descriptor Descriptor `json:"descriptor"`
}

// UnmarshalJSON accepts the legacy "encoding" field written by older
// enrollment tools in place of "descriptor".
func (i *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name       string     `json:"name"`
		Descriptor Descriptor `json:"descriptor"`
		Encoding   Descriptor `json:"encoding"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Name = raw.Name
	i.Descriptor = raw.Descriptor
	if len(i.Descriptor) == 0 {
		i.Descriptor = raw.Encoding
	}
	return nil
}

const idPrefix = "id_"

// idNumber extracts n from "id_<n>". ok is false for ids in any other format.
func idNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, idPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextID returns an id greater than every numbered id in the mapping, so ids
// stay unique even after deletions.
func NextID(identities map[string]Identity) string {
	highest := 0
	for id := range identities {
		if n, ok := idNumber(id); ok && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%d", idPrefix, highest+1)
}

// lessID orders numbered ids numerically and everything else lexically after them.
func lessID(a, b string) bool {
	na, aok := idNumber(a)
	nb, bok := idNumber(b)
	switch {
	case aok && bok:
		return na < nb
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}
