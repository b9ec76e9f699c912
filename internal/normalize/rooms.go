package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomsOpenCategory is the label shared by every listing with four rooms or more.
const RoomsOpenCategory = "4+"

const roomsOpenOrdinal = 4

// RoomsToCategory maps a room count to its label: "0".."3" or "4+".
func RoomsToCategory(rooms int) string {
	if rooms < roomsOpenOrdinal {
		return strconv.Itoa(rooms)
	}
	return RoomsOpenCategory
}

// RoomsOrdinal is the integer category of a room count (4 for "4+").
func RoomsOrdinal(rooms int) int {
	if rooms < roomsOpenOrdinal {
		return rooms
	}
	return roomsOpenOrdinal
}

// RoomsCategoryOrdinal re-derives the integer category from a dimension label.
func RoomsCategoryOrdinal(label string) (int, error) {
	label = strings.TrimSpace(label)
	if label == RoomsOpenCategory {
		return roomsOpenOrdinal, nil
	}
	n, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("rooms category %q: %w", label, err)
	}
	return n, nil
}
