package storage

import (
	"regexp"
	"strings"
	"time"
)

var slugUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// ObjectKey expands the configured key template. Tokens: {tenant},
// {slug}, {date}, {name}. Deterministic for a given task and date, so
// re-running an execution overwrites its own artifact instead of
// accumulating copies.
func ObjectKey(template, tenant, slug, name string, date time.Time) string {
	replacer := strings.NewReplacer(
		"{tenant}", Slugify(tenant),
		"{slug}", Slugify(slug),
		"{date}", date.Format("2006-01-02"),
		"{name}", Slugify(name),
	)
	return replacer.Replace(template)
}

// Slugify lowercases and strips a string down to key-safe characters.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugUnsafe.ReplaceAllString(s, "")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
