// Package config reads and rewrites the OpenSSH client config as an ordered
// list of Host blocks. Parsing is lossless for content sshkit does not model:
// unknown directives, repeated directives, comments and malformed lines are
// carried through to the serialized output.
package config

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/treykane/sshkit/internal/model"
)

// ParseResult is a parsed ssh config document.
type ParseResult struct {
	// Preamble holds the lines before the first Host block, verbatim.
	Preamble []string
	Hosts    []model.HostEntry
	Warnings []string
}

// Parse splits text into Host blocks. A "Host <alias>" line opens a block and
// every following line up to the next Host line belongs to it.
func Parse(text string) ParseResult {
	var (
		res     ParseResult
		current *model.HostEntry
		seen    map[string]bool
	)
	flush := func() {
		if current != nil {
			res.Hosts = append(res.Hosts, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	// A token may be as long as the whole document, so no line is ever cut
	// short and nothing after it is dropped on rewrite.
	scanner.Buffer(make([]byte, 0, 64*1024), max(len(text)+1, 64*1024))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		line := strings.TrimSpace(raw)

		key, value, ok := splitDirective(line)
		if ok && strings.EqualFold(key, "host") {
			flush()
			current = &model.HostEntry{Alias: value}
			seen = map[string]bool{}
			continue
		}
		if !ok && strings.EqualFold(line, "host") {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: Host missing alias", lineNo))
		}

		if current == nil {
			res.Preamble = append(res.Preamble, raw)
			continue
		}
		if line == "" {
			continue
		}
		if !ok {
			if !strings.HasPrefix(line, "#") {
				res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: invalid directive kept verbatim", lineNo))
			}
			current.Extra = append(current.Extra, model.Directive{Raw: line})
			continue
		}
		applyDirective(current, seen, key, value)
	}
	flush()
	res.Preamble = trimBlankTail(res.Preamble)
	return res
}

// applyDirective stores the first occurrence of a known directive in its typed
// field. Repeats and values the typed field cannot represent become extras.
func applyDirective(h *model.HostEntry, seen map[string]bool, key, value string) {
	lower := strings.ToLower(key)
	extra := func() {
		h.Extra = append(h.Extra, model.Directive{Name: key, Value: value})
	}
	if seen[lower] {
		extra()
		return
	}
	switch lower {
	case "hostname":
		h.HostName = value
	case "user":
		h.User = value
	case "port":
		p, err := strconv.Atoi(value)
		if err != nil || p <= 0 {
			extra()
			return
		}
		h.Port = p
	case "identityfile":
		h.IdentityFile = value
	case "identitiesonly":
		if !strings.EqualFold(value, "yes") {
			extra()
			return
		}
		h.IdentitiesOnly = true
	default:
		extra()
		return
	}
	seen[lower] = true
}

// splitDirective splits "Key Value" or "Key=Value". Comments are not
// directives.
func splitDirective(line string) (key, value string, ok bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	i := strings.IndexAny(line, " \t=")
	if i <= 0 {
		return "", "", false
	}
	key = line[:i]
	value = strings.TrimSpace(line[i:])
	value = strings.TrimSpace(strings.TrimPrefix(value, "="))
	return key, value, key != "" && value != ""
}

func trimBlankTail(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
