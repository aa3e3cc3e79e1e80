package util

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinPort = 1
	MaxPort = 65535
)

// ValidatePort checks if port is in valid range (1-65535).
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range (must be %d-%d)", port, MinPort, MaxPort)
	}
	return nil
}

// ParsePort parses an optional port field. Blank input yields fallback.
func ParsePort(s string, fallback int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("port must be a number: %q", s)
	}
	if err := ValidatePort(p); err != nil {
		return 0, err
	}
	return p, nil
}
