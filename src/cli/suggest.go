package cli

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Suggest returns the candidates within maxDistance edits of needle, closest first.
func Suggest(needle string, candidates []string, maxDistance int) []string {
	type suggestion struct {
		s    string
		dist int
	}
	r := []rune(needle)
	options := make([]suggestion, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if dist := levenshtein.DistanceForStrings(r, []rune(c), levenshtein.DefaultOptions); dist <= maxDistance {
			options = append(options, suggestion{s: c, dist: dist})
		}
	}
	sort.SliceStable(options, func(i, j int) bool { return options[i].dist < options[j].dist })
	ret := make([]string, len(options))
	for i, o := range options {
		ret[i] = o.s
	}
	return ret
}

// DidYouMean returns a suffix for an error message suggesting what the user might have meant
// instead of needle, or the empty string if nothing is close enough.
func DidYouMean(needle string, candidates []string, maxDistance int) string {
	options := Suggest(needle, candidates, maxDistance)
	switch len(options) {
	case 0:
		return ""
	case 1:
		return " (did you mean " + options[0] + "?)"
	}
	return " (did you mean " + strings.Join(options[:len(options)-1], ", ") + " or " + options[len(options)-1] + "?)"
}
