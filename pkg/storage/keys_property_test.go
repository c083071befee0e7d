package storage

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var slugShape = regexp.MustCompile(`^[a-z0-9_-]+$`)

func TestSlugifyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("output is always a non-empty key-safe slug", prop.ForAll(
		func(s string) bool {
			return slugShape.MatchString(Slugify(s))
		},
		gen.AnyString(),
	))

	properties.Property("slugify is idempotent", prop.ForAll(
		func(s string) bool {
			once := Slugify(s)
			return Slugify(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestObjectKeyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	const template = "reports/{tenant}/{slug}/{date}/{name}.docx"

	genDate := gen.Int64Range(0, 40000).Map(func(days int64) time.Time {
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(days))
	})

	properties.Property("keys are deterministic and fully expanded", prop.ForAll(
		func(tenant, slug, name string, date time.Time) bool {
			key := ObjectKey(template, tenant, slug, name, date)
			again := ObjectKey(template, tenant, slug, name, date)
			return key == again &&
				!strings.ContainsAny(key, "{}") &&
				strings.Contains(key, date.Format("2006-01-02"))
		},
		gen.AnyString(), gen.AnyString(), gen.AnyString(), genDate,
	))

	properties.Property("hostile names never escape the key prefix", prop.ForAll(
		func(name string, date time.Time) bool {
			key := ObjectKey(template, "tenant", "../../etc", name, date)
			return !strings.Contains(key, "..") && strings.HasPrefix(key, "reports/")
		},
		gen.AnyString(), genDate,
	))

	properties.TestingRun(t)
}
