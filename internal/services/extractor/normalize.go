package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// currencyPrefixes maps leading symbols and ISO codes onto ISO-4217
var currencyPrefixes = []struct {
	prefix   string
	currency string
}{
	{"AUD", "AUD"}, {"USD", "USD"}, {"EUR", "EUR"}, {"GBP", "GBP"},
	{"NZD", "NZD"}, {"CAD", "CAD"}, {"SGD", "SGD"},
	{"A$", "AUD"}, {"NZ$", "NZD"}, {"C$", "CAD"}, {"S$", "SGD"},
	{"US$", "USD"}, {"$", "USD"}, {"€", "EUR"}, {"£", "GBP"},
}

var moneyPattern = regexp.MustCompile(`^([0-9][0-9,]*\.?[0-9]*)\s*([kmbKMB])?$`)

// ParseMoney parses a human-written monetary string: currency symbols and
// ISO prefixes are stripped, thousands separators removed, and K/M/B
// suffixes expanded. Unparseable strings yield (nil, ""), never a wrong
// number.
func ParseMoney(raw string) (*float64, string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ""
	}

	currency := ""
	for _, cp := range currencyPrefixes {
		if strings.HasPrefix(strings.ToUpper(s), strings.ToUpper(cp.prefix)) {
			currency = cp.currency
			s = strings.TrimSpace(s[len(cp.prefix):])
			break
		}
	}

	match := moneyPattern.FindStringSubmatch(s)
	if match == nil {
		return nil, ""
	}

	number := strings.ReplaceAll(match[1], ",", "")
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return nil, ""
	}

	switch strings.ToUpper(match[2]) {
	case "K":
		value *= 1_000
	case "M":
		value *= 1_000_000
	case "B":
		value *= 1_000_000_000
	}
	return &value, currency
}

// deadlineLayouts are tried in order for lenient deadline parsing
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02 January 2006 15:04",
}

// ParseDeadline parses a deadline string leniently. On failure it returns
// nil rather than guessing.
func ParseDeadline(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ComputeConfidence starts at 1.0 and multiplies by 0.8 for each missing
// required field.
func ComputeConfidence(title string, deadline *time.Time, description string) float64 {
	confidence := 1.0
	if strings.TrimSpace(title) == "" {
		confidence *= 0.8
	}
	if deadline == nil {
		confidence *= 0.8
	}
	if strings.TrimSpace(description) == "" {
		confidence *= 0.8
	}
	return confidence
}
