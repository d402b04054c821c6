package service

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultLifetime is returned by ParseLifetime for anything it cannot read.
const DefaultLifetime = 24 * time.Hour

var lifetimePattern = regexp.MustCompile(`^\s*(\d+)\s*([smhd])\s*$`)

// ParseLifetime converts "45s", "30m", "24h" or "7d" to a duration. A
// malformed value, a zero amount or an unknown unit yields DefaultLifetime.
func ParseLifetime(s string) time.Duration {
	m := lifetimePattern.FindStringSubmatch(s)
	if m == nil {
		return DefaultLifetime
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return DefaultLifetime
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if n > int64((1<<63-1)/unit) {
		return DefaultLifetime
	}
	return time.Duration(n) * unit
}
