package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count that also accepts "32MB" style values in YAML and env vars
type ByteSize int64

// UnmarshalYAML accepts plain integers and unit strings
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	size, err := ParseSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// String formats the size for humans
func (b ByteSize) String() string {
	return FormatSize(int64(b))
}

// ParseSize parses a size string (e.g., "100MB", "1GB") into bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("size string is empty")
	}

	i := strings.IndexFunc(sizeStr, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	number, unit := sizeStr, "B"
	if i >= 0 {
		number, unit = sizeStr[:i], strings.TrimSpace(sizeStr[i:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}

	var multiplier float64
	switch unit {
	case "B":
		multiplier = 1
	case "K", "KB", "KIB":
		multiplier = 1 << 10
	case "M", "MB", "MIB":
		multiplier = 1 << 20
	case "G", "GB", "GIB":
		multiplier = 1 << 30
	case "T", "TB", "TIB":
		multiplier = 1 << 40
	default:
		return 0, fmt.Errorf("unknown size unit: %s", unit)
	}

	return int64(value * multiplier), nil
}

// FormatSize formats bytes into a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
