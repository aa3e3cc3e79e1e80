package config

import (
	"fmt"
	"strings"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
)

var (
	// ErrDuplicateAlias is returned by Add when the alias already has a block.
	ErrDuplicateAlias = apperr.New(apperr.KindConstraint, "alias already exists in ssh config")
	// ErrHostNotFound is returned by Remove when no block has the alias.
	ErrHostNotFound = apperr.New(apperr.KindConstraint, "alias not found in ssh config")
)

// Serialize renders the document in canonical form: preamble, then blocks in
// order separated by one blank line, ending with a single newline.
func Serialize(doc ParseResult) string {
	var b strings.Builder
	preamble := trimBlankTail(doc.Preamble)
	for _, line := range preamble {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for i, h := range doc.Hosts {
		if i > 0 || len(preamble) > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatHostBlock(h))
	}
	return b.String()
}

// FormatHostBlock produces one Host block with directives in canonical order:
// HostName, User, Port, IdentityFile, IdentitiesOnly, then extras as parsed.
func FormatHostBlock(entry model.HostEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Host %s\n", entry.Alias)
	if entry.HostName != "" {
		fmt.Fprintf(&b, "  HostName %s\n", entry.HostName)
	}
	if entry.User != "" {
		fmt.Fprintf(&b, "  User %s\n", entry.User)
	}
	if entry.Port != 0 {
		fmt.Fprintf(&b, "  Port %d\n", entry.Port)
	}
	if entry.IdentityFile != "" {
		fmt.Fprintf(&b, "  IdentityFile %s\n", entry.IdentityFile)
	}
	if entry.IdentitiesOnly {
		b.WriteString("  IdentitiesOnly yes\n")
	}
	for _, d := range entry.Extra {
		if d.Opaque() {
			fmt.Fprintf(&b, "  %s\n", d.Raw)
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", d.Name, d.Value)
	}
	return b.String()
}

// ValidateAlias checks that alias is usable as a single concrete Host pattern.
func ValidateAlias(alias string) error {
	if strings.TrimSpace(alias) == "" {
		return apperr.New(apperr.KindConstraint, "alias cannot be empty")
	}
	if strings.ContainsAny(alias, " \t*?!,") {
		return apperr.New(apperr.KindConstraint, "alias cannot contain spaces or wildcard characters")
	}
	return nil
}

// Find returns the block for alias.
func Find(hosts []model.HostEntry, alias string) (model.HostEntry, bool) {
	for _, h := range hosts {
		if h.Alias == alias {
			return h, true
		}
	}
	return model.HostEntry{}, false
}

// Add returns a new list with entry appended. hosts is never modified.
func Add(hosts []model.HostEntry, entry model.HostEntry) ([]model.HostEntry, error) {
	if err := ValidateAlias(entry.Alias); err != nil {
		return nil, err
	}
	if _, ok := Find(hosts, entry.Alias); ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateAlias, entry.Alias)
	}
	if entry.Port == 0 {
		entry.Port = model.DefaultPort
	}
	out := make([]model.HostEntry, 0, len(hosts)+1)
	out = append(out, hosts...)
	return append(out, entry), nil
}

// Remove returns a new list without the block for alias.
func Remove(hosts []model.HostEntry, alias string) ([]model.HostEntry, error) {
	idx := -1
	for i, h := range hosts {
		if h.Alias == alias {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrHostNotFound, alias)
	}
	out := make([]model.HostEntry, 0, len(hosts)-1)
	out = append(out, hosts[:idx]...)
	return append(out, hosts[idx+1:]...), nil
}
