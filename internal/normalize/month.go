package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseableMonth is returned by ParseMonth. It aborts a run.
var ErrUnparseableMonth = errors.New("unparseable month name")

// pseudo-date anchor used to resolve month names
const (
	monthAnchorDay  = 18
	monthAnchorYear = 2000
)

var monthLayouts = []string{"2 January 2006", "2 Jan 2006"}

// Polish month names (nominative and genitive), keyed by FoldName form.
var polishMonths = map[string]int{
	"styczen": 1, "stycznia": 1,
	"luty": 2, "lutego": 2,
	"marzec": 3, "marca": 3,
	"kwiecien": 4, "kwietnia": 4,
	"maj": 5, "maja": 5,
	"czerwiec": 6, "czerwca": 6,
	"lipiec": 7, "lipca": 7,
	"sierpien": 8, "sierpnia": 8,
	"wrzesien": 9, "wrzesnia": 9,
	"pazdziernik": 10, "pazdziernika": 10,
	"listopad": 11, "listopada": 11,
	"grudzien": 12, "grudnia": 12,
}

// ParseMonth resolves a month name to 1..12 by anchoring it to the 18th day of
// a fixed reference year and reading the month back. English full and short
// names are accepted in any letter case, as are Polish names.
func ParseMonth(name string) (int, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrUnparseableMonth)
	}

	pseudo := fmt.Sprintf("%d %s %d", monthAnchorDay, s, monthAnchorYear)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, pseudo); err == nil {
			return int(t.Month()), nil
		}
	}

	if m, ok := polishMonths[FoldName(s)]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnparseableMonth, name)
}

// Quarter returns the calendar quarter (1..4) of a month.
func Quarter(month int) int {
	return (month-1)/3 + 1
}

// YearMonth returns the sortable year*100+month value.
func YearMonth(year, month int) int {
	return year*100 + month
}
