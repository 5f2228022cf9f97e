package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseSize reads sizes like "400KB", "2MB", "1.5mb" or plain byte counts.
// KB and MB are binary multiples.
func parseSize(s string) (int, error) {
	raw := s
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := 1
	switch {
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size %q must be positive", raw)
	}
	bytes := n * float64(multiplier)
	if bytes >= math.MaxInt {
		return 0, fmt.Errorf("size %q is too large", raw)
	}
	return int(bytes), nil
}

func humanBytes(b int64) string {
	switch {
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
