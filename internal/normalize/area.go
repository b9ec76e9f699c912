// Package normalize holds the pure cleaning and bucketing functions applied to
// raw staging fields before they are turned into dimension rows.
//
// Nothing in this package returns an error for bad data: a value that cannot
// be repaired is reported as unknown (nil / ok=false) and the bucket helpers
// treat unknown as a category of its own. The one exception is ParseMonth,
// because an unknown month name is a calendar definition error, not a row
// defect.
package normalize

// AreaScaleThreshold is the raw area above which the value is assumed to have
// lost its decimal point (4223 means 42.23 m²).
const AreaScaleThreshold = 1500.0

// NormalizeArea repairs the decimal-point omission found in part of the export.
//
// Values above AreaScaleThreshold are divided by 100 exactly once. Values that
// stay implausible afterwards (e.g. 16000 -> 160) are passed through as
// outliers; no second correction is attempted.
func NormalizeArea(raw *float64) *float64 {
	if raw == nil {
		return nil
	}
	v := *raw
	if v > AreaScaleThreshold {
		v = v / 100
	}
	return &v
}

// AreaBucket is the categorical representation of a cleaned area.
type AreaBucket struct {
	Label string
	Code  int
}

// UnknownAreaCode is the code used when matching rows whose area is unknown.
// It never appears in a dimension row.
const UnknownAreaCode = -1

var areaBuckets = []struct {
	upper float64
	label string
}{
	{20, "00-19"},
	{30, "20-29"},
	{40, "30-39"},
	{50, "40-49"},
	{60, "50-59"},
	{70, "60-69"},
	{80, "70-79"},
	{90, "80-89"},
	{100, "90-99"},
}

// AreaToBucket maps a cleaned area to one of ten buckets. Upper bounds are
// exclusive, so 30 lands in "30-39". ok is false for an unknown area.
func AreaToBucket(area *float64) (b AreaBucket, ok bool) {
	if area == nil {
		return AreaBucket{}, false
	}
	for i, ab := range areaBuckets {
		if *area < ab.upper {
			return AreaBucket{Label: ab.label, Code: i + 1}, true
		}
	}
	return AreaBucket{Label: "100+", Code: len(areaBuckets) + 1}, true
}

// AreaCode returns the bucket code for a cleaned area, or UnknownAreaCode.
func AreaCode(area *float64) int {
	b, ok := AreaToBucket(area)
	if !ok {
		return UnknownAreaCode
	}
	return b.Code
}
