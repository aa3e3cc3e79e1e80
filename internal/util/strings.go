package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
//
// Examples:
//
//	DefaultString("hello", "world")  → "hello"
//	DefaultString("",      "world")  → "world"
//	DefaultString("  ",    "world")  → "world"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" for blank values so optional columns (User,
// IdentityFile, key comments) stay readable in tables and detail panels.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}

// YesNo renders a flag for tabular output.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
