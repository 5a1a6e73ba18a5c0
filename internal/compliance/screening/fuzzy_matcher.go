package screening

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// Scorer names a similarity measure over token-sorted keys
type Scorer string

const (
	// ScorerInDel is the normalized insert/delete similarity, 100*(1-indel/(len(a)+len(b))).
	ScorerInDel Scorer = "indel"
	// ScorerLevenshtein is 100*(1-levenshtein/maxLen). It is stricter on long names.
	ScorerLevenshtein Scorer = "levenshtein"
)

// FuzzyMatcher scores name similarity for sanctions screening
type FuzzyMatcher struct {
	logger *zap.Logger
	config FuzzyMatchConfig
}

// FuzzyMatchConfig defines configuration for fuzzy matching
type FuzzyMatchConfig struct {
	// StripAffixes drops honorifics and generational suffixes before scoring.
	StripAffixes bool     `json:"strip_affixes"`
	NamePrefixes []string `json:"name_prefixes"`
	NameSuffixes []string `json:"name_suffixes"`
	Scorer       Scorer   `json:"scorer"`
}

// DefaultFuzzyMatchConfig returns the matcher defaults
func DefaultFuzzyMatchConfig() FuzzyMatchConfig {
	return FuzzyMatchConfig{
		StripAffixes: true,
		NamePrefixes: []string{"mr", "mrs", "ms", "dr", "prof", "sir", "dame", "lord", "lady"},
		NameSuffixes: []string{"jr", "sr", "ii", "iii", "iv", "phd", "md", "esq"},
		Scorer:       ScorerInDel,
	}
}

// NewFuzzyMatcher creates a new fuzzy matcher
func NewFuzzyMatcher(logger *zap.Logger, config FuzzyMatchConfig) *FuzzyMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FuzzyMatcher{
		logger: logger,
		config: config,
	}
}

// TokenSortRatio returns a similarity score in [0,100] that ignores token order:
// both names are normalized, split into tokens, sorted and rejoined before the
// edit distance is taken, so "Doe John" and "John Doe" score 100.
func (fm *FuzzyMatcher) TokenSortRatio(a, b string) float64 {
	return fm.score(fm.SortedKey(a), fm.SortedKey(b))
}

// score compares two keys that are already normalized and token-sorted
func (fm *FuzzyMatcher) score(a, b string) float64 {
	if fm.config.Scorer == ScorerLevenshtein {
		return levenshteinRatio(a, b)
	}
	return indelRatio(a, b)
}

// SortedKey returns the normalized, token-sorted form of a name. Watchlists
// precompute it once per entry.
func (fm *FuzzyMatcher) SortedKey(name string) string {
	tokens := strings.Fields(fm.normalizeName(name))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// normalizeName folds case and diacritics and removes punctuation
func (fm *FuzzyMatcher) normalizeName(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		fm.logger.Debug("diacritic folding failed, using raw name", zap.Error(err))
		folded = name
	}

	folded = strings.ToLower(folded)
	folded = nonAlnum.ReplaceAllString(folded, " ")

	tokens := strings.Fields(folded)
	if !fm.config.StripAffixes {
		return strings.Join(tokens, " ")
	}

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !fm.isCommonAffix(token) {
			filtered = append(filtered, token)
		}
	}
	// A name made only of affixes keeps its tokens.
	if len(filtered) == 0 {
		filtered = tokens
	}
	return strings.Join(filtered, " ")
}

// isCommonAffix checks if a token is a common prefix or suffix
func (fm *FuzzyMatcher) isCommonAffix(token string) bool {
	for _, prefix := range fm.config.NamePrefixes {
		if token == prefix {
			return true
		}
	}
	for _, suffix := range fm.config.NameSuffixes {
		if token == suffix {
			return true
		}
	}
	return false
}

// indelRatio scores two keys by insert/delete distance over runes. The
// distance is len(a)+len(b)-2*LCS(a,b) and is normalized by the summed length.
func indelRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	distance := total - 2*lcsLength(ra, rb)
	return 100 * (1 - float64(distance)/float64(total))
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for _, x := range a {
		for j, y := range b {
			switch {
			case x == y:
				curr[j+1] = prev[j] + 1
			case prev[j+1] >= curr[j]:
				curr[j+1] = prev[j+1]
			default:
				curr[j+1] = curr[j]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// levenshteinRatio converts the Levenshtein distance of two keys into a [0,100] score
func levenshteinRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(distance)/float64(maxLen))
}
