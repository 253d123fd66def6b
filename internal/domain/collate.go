package domain

import (
	"sort"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// hebrewCollator and latinCollator collate within a single script;
// root (Und) collation alone doesn't reorder Hebrew ahead of Latin,
// so SortTeams buckets by script first and collates within each
// bucket. Collators are safe for concurrent use once built.
var (
	hebrewCollator = collate.New(language.Hebrew)
	latinCollator  = collate.New(language.Und)
)

// SortTeams orders teams the way a mixed Hebrew/Latin roster reads on
// the original calendar widget: Hebrew-named teams first, each group
// locale-aware-collated rather than compared by raw UTF-8 byte order,
// so diacritics and letter variants inside a script still sort the
// way a human reader expects. SQL ORDER BY in the store backends only
// gives a stable input order for this to refine.
func SortTeams(teams []Team) {
	sort.SliceStable(teams, func(i, j int) bool {
		hi, hj := isHebrewScript(teams[i].Name), isHebrewScript(teams[j].Name)
		if hi != hj {
			return hi
		}
		if hi {
			return hebrewCollator.CompareString(teams[i].Name, teams[j].Name) < 0
		}
		return latinCollator.CompareString(teams[i].Name, teams[j].Name) < 0
	})
}

// isHebrewScript reports whether a name's first letter is Hebrew,
// which is enough to bucket club names that are written entirely in
// one script or the other.
func isHebrewScript(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return unicode.Is(unicode.Hebrew, r)
		}
	}
	return false
}
