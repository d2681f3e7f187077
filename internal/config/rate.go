package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRates parses a comma separated budget list such as "200/day,50/hour" or
// "30 per hour". An empty string or "0" yields no budgets.
func ParseRates(s string) ([]Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil, nil
	}
	var out []Rate
	for _, part := range strings.Split(s, ",") {
		r, err := parseRate(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRate(s string) (Rate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var count, unit string
	if i := strings.Index(s, "/"); i >= 0 {
		count, unit = s[:i], s[i+1:]
	} else if fields := strings.Fields(s); len(fields) == 3 && fields[1] == "per" {
		count, unit = fields[0], fields[2]
	} else {
		return Rate{}, fmt.Errorf("invalid rate %q", s)
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Rate{}, fmt.Errorf("invalid rate count %q", count)
	}
	unit = strings.TrimSuffix(strings.TrimSpace(unit), "s")
	window, ok := rateUnits[unit]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate unit %q", unit)
	}
	return Rate{Limit: n, Window: window}, nil
}

func (r Rate) String() string {
	for name, d := range rateUnits {
		if d == r.Window {
			return fmt.Sprintf("%d/%s", r.Limit, name)
		}
	}
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}
