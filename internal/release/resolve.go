package release

import (
	"github.com/Masterminds/semver/v3"
)

// Resolve selects the release to install. Without a constraint it is the first entry of the catalog. With one it is
// the first release in catalog order whose version satisfies the constraint: catalogs are ordered newest first, but
// the first match wins even when a later entry has a higher matching version. Releases with an unparsable tag are
// never selected by a constraint.
func Resolve(constraint *semver.Constraints, catalog []Release) *Release {
	if len(catalog) == 0 {
		return nil
	}
	if constraint == nil {
		r := catalog[0]
		return &r
	}
	for i := range catalog {
		v, err := catalog[i].Version()
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			r := catalog[i]
			return &r
		}
	}
	return nil
}

// Stable returns the catalog without prereleases, preserving order.
func Stable(catalog []Release) []Release {
	stable := make([]Release, 0, len(catalog))
	for _, r := range catalog {
		if !r.Prerelease {
			stable = append(stable, r)
		}
	}
	return stable
}

// Selectable returns the catalog without releases whose tag is not a semantic version, preserving order.
func Selectable(catalog []Release) []Release {
	valid := make([]Release, 0, len(catalog))
	for _, r := range catalog {
		if _, err := r.Version(); err == nil {
			valid = append(valid, r)
		}
	}
	return valid
}
