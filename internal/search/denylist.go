package search

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type denyEntry struct {
	host string
	path string
}

// DenyList holds domains, optionally narrowed to a path prefix, that must never be
// surfaced as search results.
type DenyList struct {
	entries []denyEntry
}

type denyFile struct {
	Domains []string `yaml:"domains"`
}

// ParseDenyList accepts a comma, semicolon or whitespace separated list of domains,
// domain/path prefixes or full URLs.
func ParseDenyList(raw string) DenyList {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DenyList{}
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\t' || r == ' '
	})
	return newDenyList(parts)
}

func LoadDenyFile(path string) (DenyList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DenyList{}, fmt.Errorf("read deny file: %w", err)
	}
	var parsed denyFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return DenyList{}, fmt.Errorf("parse deny file %s: %w", path, err)
	}
	return newDenyList(parsed.Domains), nil
}

func newDenyList(parts []string) DenyList {
	seen := map[denyEntry]struct{}{}
	entries := make([]denyEntry, 0, len(parts))
	for _, part := range parts {
		entry, ok := parseDenyEntry(part)
		if !ok {
			continue
		}
		if _, exists := seen[entry]; exists {
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}
	return DenyList{entries: entries}
}

func parseDenyEntry(raw string) (denyEntry, bool) {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	if candidate == "" {
		return denyEntry{}, false
	}
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + strings.TrimPrefix(candidate, ".")
	}
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Hostname() == "" {
		return denyEntry{}, false
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	return denyEntry{host: host, path: strings.TrimRight(parsed.Path, "/")}, true
}

func (d DenyList) Len() int {
	return len(d.entries)
}

func (d DenyList) Merge(other DenyList) DenyList {
	combined := make([]string, 0, len(d.entries)+len(other.entries))
	for _, entry := range append(append([]denyEntry{}, d.entries...), other.entries...) {
		combined = append(combined, entry.host+entry.path)
	}
	return newDenyList(combined)
}

// Matches reports whether link points into a denied domain.
func (d DenyList) Matches(link string) bool {
	if len(d.entries) == 0 {
		return false
	}
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host == "" {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for _, entry := range d.entries {
		if host != entry.host && !strings.HasSuffix(host, "."+entry.host) {
			continue
		}
		if entry.path == "" || path == entry.path || strings.HasPrefix(path, entry.path+"/") {
			return true
		}
	}
	return false
}
