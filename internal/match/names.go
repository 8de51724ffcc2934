package match

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

var (
	suffixPattern     = regexp.MustCompile(`(?i)\b(jr\.?|sr\.?|ii|iii|iv|v|esq\.?|phd|md|dds|dvm)\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases, strips generational and honorific suffixes, and
// collapses whitespace.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = suffixPattern.ReplaceAllString(n, "")
	n = strings.NewReplacer(",", " ", ".", " ").Replace(n)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(n, " "))
}

func nameParts(name string) []string {
	parts := strings.Fields(name)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ratio is a normalized similarity in [0,1] based on edit distance.
func ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// tokenSortRatio compares with tokens sorted so word order does not matter:
// "john a smith" vs "smith john a" scores 1.0.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// NamesMatch compares two person names after normalization. The score tiers:
// 1.0 exact, >=0.92 token-sorted fuzzy, 0.75 first+last agree, 0.65 initial
// plus last name, discounted fuzzy above 0.70, else the raw fuzzy score with
// no match.
func NamesMatch(a, b string) (bool, float64) {
	na := NormalizeName(a)
	nb := NormalizeName(b)

	if na == nb && na != "" {
		return true, 1.0
	}

	tokenScore := tokenSortRatio(na, nb)
	if tokenScore >= 0.92 {
		return true, tokenScore
	}

	pa := nameParts(na)
	pb := nameParts(nb)
	if len(pa) >= 2 && len(pb) >= 2 {
		firstMatch := ratio(pa[0], pb[0]) >= 0.85
		lastMatch := ratio(pa[len(pa)-1], pb[len(pb)-1]) >= 0.85
		if firstMatch && lastMatch {
			return true, 0.75
		}
		initialA := len(pa[0]) == 1 && strings.HasPrefix(pb[0], pa[0])
		initialB := len(pb[0]) == 1 && strings.HasPrefix(pa[0], pb[0])
		if (initialA || initialB) && lastMatch {
			return true, 0.65
		}
	}

	if tokenScore >= 0.70 {
		return true, tokenScore * 0.8
	}
	return false, tokenScore
}
