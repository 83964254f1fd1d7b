package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// SizeLabel renders a byte count with binary prefixes rounded to two
// decimals, e.g. 1500000 -> "1.43 MB". Zero is rendered as "0B".
func SizeLabel(bytes int64) string {
	if bytes <= 0 {
		return "0B"
	}

	// largest i with 1024^i <= bytes, computed on integers to dodge log()
	// rounding at exact powers
	i := 0
	for p := uint64(bytes); p >= 1024 && i < len(sizeUnits)-1; p /= 1024 {
		i++
	}

	value := float64(bytes) / math.Pow(1024, float64(i))
	value = math.Round(value*100) / 100

	return fmt.Sprintf("%s %s", formatDecimal(value), sizeUnits[i])
}

// formatDecimal prints the shortest representation but always keeps a
// fractional part: 1 -> "1.0", 1.5 -> "1.5", 1.43 -> "1.43".
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParseSizeLabel reverses SizeLabel into an approximate byte count
func ParseSizeLabel(label string) (float64, error) {
	if label == "0B" {
		return 0, nil
	}

	parts := strings.Fields(label)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid size label: %q", label)
	}

	value, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size label number: %w", err)
	}

	for i, unit := range sizeUnits {
		if unit == parts[1] {
			return value * math.Pow(1024, float64(i)), nil
		}
	}
	return 0, fmt.Errorf("unknown size unit: %q", parts[1])
}

// FormatCountdown renders remaining seconds as MM:SS
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
