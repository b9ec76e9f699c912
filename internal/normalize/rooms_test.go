package normalize

import "testing"

func TestRoomsToCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rooms int
		want  string
	}{
		{0, "0"}, {1, "1"}, {2, "2"}, {3, "3"}, {4, "4+"}, {5, "4+"}, {12, "4+"},
	}
	for _, tt := range tests {
		if got := RoomsToCategory(tt.rooms); got != tt.want {
			t.Fatalf("RoomsToCategory(%d)=%q want %q", tt.rooms, got, tt.want)
		}
	}
}

func TestRoomsCategoryOrdinal_RoundTrip(t *testing.T) {
	for rooms := 0; rooms < 9; rooms++ {
		got, err := RoomsCategoryOrdinal(RoomsToCategory(rooms))
		if err != nil {
			t.Fatalf("RoomsCategoryOrdinal: %v", err)
		}
		if got != RoomsOrdinal(rooms) {
			t.Fatalf("rooms=%d ordinal=%d want %d", rooms, got, RoomsOrdinal(rooms))
		}
	}
}

func TestRoomsCategoryOrdinal_Invalid(t *testing.T) {
	if _, err := RoomsCategoryOrdinal("many"); err == nil {
		t.Fatalf("expected error for non-numeric label")
	}
}
