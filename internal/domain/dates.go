package domain

import (
	"math"
	"strings"
	"time"
)

// DateLayout is the wire format of check-in and check-out dates
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// ParseDate parses YYYY-MM-DD or RFC3339 into a UTC midnight
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, NewValidationError(field, "is required")
	}

	t, err := time.Parse(DateLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, NewValidationError(field, "must be a date in YYYY-MM-DD format")
		}
	}
	return NormalizeDate(t), nil
}

// NormalizeDate truncates t to midnight UTC of its calendar date
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateRange is the half-open stay interval [CheckIn, CheckOut)
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewDateRange parses and validates a stay
func NewDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := ParseDate("check_in", checkIn)
	if err != nil {
		return DateRange{}, err
	}
	out, err := ParseDate("check_out", checkOut)
	if err != nil {
		return DateRange{}, err
	}
	r := DateRange{CheckIn: in, CheckOut: out}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate requires both dates and check-out strictly after check-in
func (r DateRange) Validate() error {
	if r.CheckIn.IsZero() {
		return NewValidationError("check_in", "is required")
	}
	if r.CheckOut.IsZero() {
		return NewValidationError("check_out", "is required")
	}
	if !r.CheckOut.After(r.CheckIn) {
		return NewValidationError("check_out", "must be after check_in")
	}
	return nil
}

// Nights is the number of started days between the dates, 0 for an invalid range
func (r DateRange) Nights() int {
	if !r.CheckOut.After(r.CheckIn) {
		return 0
	}
	return int(math.Ceil(float64(r.CheckOut.Sub(r.CheckIn)) / float64(day)))
}

// Overlaps reports whether the half-open ranges intersect. Back-to-back stays
// (one checks out the day the other checks in) do not overlap.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && r.CheckOut.After(o.CheckIn)
}

func (r DateRange) String() string {
	return FormatDate(r.CheckIn) + ".." + FormatDate(r.CheckOut)
}

// RoundCents rounds v to two decimals
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stripe's zero- and three-decimal currencies; everything else has cents
var currencyExponents = map[string]int{
	"bif": 0, "clp": 0, "djf": 0, "gnf": 0, "jpy": 0, "kmf": 0, "krw": 0, "mga": 0,
	"pyg": 0, "rwf": 0, "ugx": 0, "vnd": 0, "vuv": 0, "xaf": 0, "xof": 0, "xpf": 0,
	"bhd": 3, "jod": 3, "kwd": 3, "omr": 3, "tnd": 3,
}

// CurrencyExponent returns the number of minor-unit digits of an ISO currency
func CurrencyExponent(currency string) int {
	if e, ok := currencyExponents[strings.ToLower(currency)]; ok {
		return e
	}
	return 2
}

// ToMinorUnits converts an amount to the currency's smallest unit
func ToMinorUnits(v float64, currency string) int64 {
	return int64(math.Round(v * math.Pow10(CurrencyExponent(currency))))
}

// FromMinorUnits converts a smallest-unit amount back to a decimal amount
func FromMinorUnits(n int64, currency string) float64 {
	return float64(n) / math.Pow10(CurrencyExponent(currency))
}

// CalculateTotal is nights × nightly price, rounded to cents
func CalculateTotal(nights int, nightlyPrice float64) float64 {
	return RoundCents(float64(nights) * nightlyPrice)
}
