package warehouse

import (
	"fmt"

	"olxwarehouse/internal/normalize"
	"olxwarehouse/internal/staging"
)

// Opt is a value that may be unknown. The zero Opt is unknown. Two Opts are
// equal when both are unknown, or both are known with equal values, so an
// unknown floor never collides with a real one.
type Opt[T comparable] struct {
	V     T
	Valid bool
}

// Some returns a known v.
func Some[T comparable](v T) Opt[T] { return Opt[T]{V: v, Valid: true} }

// None returns the unknown value.
func None[T comparable]() Opt[T] { return Opt[T]{} }

// OptFromPtr maps nil to unknown.
func OptFromPtr[T comparable](p *T) Opt[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

func (o Opt[T]) String() string {
	if !o.Valid {
		return "unknown"
	}
	return fmt.Sprint(o.V)
}

// PropertyMatchKey is what a staging row and a dim_property row must agree
// on for the row to resolve to that property. It is comparable, so == is the
// match operator and it can key a map.
type PropertyMatchKey struct {
	Type     Opt[string]
	Floor    Opt[int]
	Rooms    int // room category ordinal, 4 for "4+"
	AreaCode Opt[int]
}

func (k PropertyMatchKey) String() string {
	return fmt.Sprintf("type=%s floor=%s rooms=%d area_code=%s", k.Type, k.Floor, k.Rooms, k.AreaCode)
}

// PropertyMatchKeyFromRecord derives the key from a staging row: area is
// cleaned and bucketed, rooms collapse to their category.
func PropertyMatchKeyFromRecord(r staging.Record) PropertyMatchKey {
	area := normalize.NormalizeArea(r.Area)
	code := None[int]()
	if b, ok := normalize.AreaToBucket(area); ok {
		code = Some(b.Code)
	}
	return PropertyMatchKey{
		Type:     OptFromPtr(r.OfferTypeOfBuilding),
		Floor:    OptFromPtr(r.Floor),
		Rooms:    normalize.RoomsOrdinal(r.Rooms),
		AreaCode: code,
	}
}

// PropertyMatchKeyFromRow derives the key from a stored dimension row.
func PropertyMatchKeyFromRow(p PropertyRow) (PropertyMatchKey, error) {
	rooms, err := normalize.RoomsCategoryOrdinal(p.RoomsCategory)
	if err != nil {
		return PropertyMatchKey{}, fmt.Errorf("property key=%d: %w", p.Key, err)
	}
	return PropertyMatchKey{
		Type:     OptFromPtr(p.PropertyType),
		Floor:    OptFromPtr(p.Floor),
		Rooms:    rooms,
		AreaCode: OptFromPtr(p.AreaCode),
	}, nil
}
