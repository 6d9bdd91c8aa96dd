// Package matcher compiles mention-market terms into deterministic lexical patterns
// and scans transcripts for occurrences.
//
// A term matches case-insensitively at word boundaries, including its plural (s/es),
// possessive ('s or trailing '), hyphen- or space-joined compounds, and, when the term
// contains a digit, its ordinal forms (1st, 2nd, 3rd, 4th). A slash separates
// alternatives, any one of which is enough.
package matcher

import (
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

// DefaultContextWindow is the number of characters kept on each side of a match.
const DefaultContextWindow = 150

const ordinalSuffix = `(?:st|nd|rd|th)?`

// wordChar mirrors isWordRune. RE2's \w and \b are ASCII-only, so boundaries are checked by hand.
const wordChar = `[\p{L}\p{N}_]`

// MatchRule is the compiled, immutable form of a term. It is safe for concurrent use.
type MatchRule struct {
	term         string
	alternatives []string
	pattern      string
	re           *regexp.Regexp
	window       int
}

// Compile builds the MatchRule for term. It fails with models.ErrInvalidTerm when the term
// is empty or every slash-separated part is empty.
func Compile(term string) (*MatchRule, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: term must not be empty", models.ErrInvalidTerm)
	}

	var alternatives []string
	if strings.Contains(term, "/") {
		for _, part := range strings.Split(term, "/") {
			if part = strings.TrimSpace(part); part != "" {
				alternatives = append(alternatives, part)
			}
		}
		if len(alternatives) == 0 {
			return nil, fmt.Errorf("%w: %q has no alternatives", models.ErrInvalidTerm, term)
		}
	} else {
		alternatives = []string{strings.TrimSpace(term)}
	}

	groups := make([]string, len(alternatives))
	for i, alt := range alternatives {
		groups[i] = singleTermPattern(alt)
	}
	pattern := "(?i)" + strings.Join(groups, "|")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern for %q: %w", term, err)
	}

	return &MatchRule{
		term:         term,
		alternatives: alternatives,
		pattern:      pattern,
		re:           re,
		window:       DefaultContextWindow,
	}, nil
}

// MustCompile is like Compile but panics on an invalid term.
func MustCompile(term string) *MatchRule {
	r, err := Compile(term)
	if err != nil {
		panic(err)
	}
	return r
}

func singleTermPattern(term string) string {
	escaped := regexp.QuoteMeta(term)

	subPatterns := []string{
		escaped + `(?:s|es)?`,
		escaped + `(?:['’]s|['’])?`,
		`(?:` + wordChar + `+[-\s])?` + escaped + `(?:[-\s]` + wordChar + `+)?`,
	}
	if hasDigit(term) {
		subPatterns = append(subPatterns, escaped+ordinalSuffix)
	}

	return `(?:` + strings.Join(subPatterns, "|") + `)`
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// Term returns the raw term the rule was compiled from.
func (r *MatchRule) Term() string { return r.term }

// Alternatives returns the trimmed, non-empty slash-separated parts of the term.
func (r *MatchRule) Alternatives() []string { return slices.Clone(r.alternatives) }

// Pattern returns the regular expression source.
func (r *MatchRule) Pattern() string { return r.pattern }

func (r *MatchRule) String() string { return r.pattern }

// HasOrdinal reports whether the ordinal extension is part of the rule.
func (r *MatchRule) HasOrdinal() bool {
	return strings.Contains(r.pattern, ordinalSuffix)
}

// ContextWindow returns the per-side context size used by Scan.
func (r *MatchRule) ContextWindow() int { return r.window }

// WithContextWindow returns a copy of the rule using n characters of context on each side.
func (r *MatchRule) WithContextWindow(n int) *MatchRule {
	if n < 0 {
		n = 0
	}
	c := *r
	c.window = n
	return &c
}

// Match reports whether text contains at least one mention.
func (r *MatchRule) Match(text string) bool {
	found := false
	r.find(text, func(_, _ int) bool {
		found = true
		return false
	})
	return found
}

// find yields the byte span of every non-overlapping match whose ends lie on word boundaries.
// A candidate rejected at a boundary is retried one rune further on.
func (r *MatchRule) find(text string, yield func(start, end int) bool) {
	pos := 0
	for pos <= len(text) {
		loc := r.re.FindStringIndex(text[pos:])
		if loc == nil {
			return
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && atBoundary(text, start) && atBoundary(text, end) {
			if !yield(start, end) {
				return
			}
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			return
		}
		pos = start + size
	}
}

func isWordRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsNumber(c)
}

// atBoundary reports whether byte offset i of s separates a word rune from a non-word rune,
// treating both ends of s as non-word.
func atBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		c, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(c)
	}
	if i < len(s) {
		c, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(c)
	}
	return before != after
}

// Scan lazily yields every non-overlapping match in text, line by line. Line numbers are
// 1-based, Offset is the byte offset within the line, and context never crosses into a
// neighbouring line.
func (r *MatchRule) Scan(text string) iter.Seq[models.Occurrence] {
	return func(yield func(models.Occurrence) bool) {
		lineNum := 0
		for line := range strings.Lines(text) {
			lineNum++
			line = strings.TrimRight(line, "\r\n")
			stopped := false
			r.find(line, func(start, end int) bool {
				occ := models.Occurrence{
					Line:    lineNum,
					Offset:  start,
					Match:   line[start:end],
					Context: window(line, start, end, r.window),
				}
				stopped = !yield(occ)
				return !stopped
			})
			if stopped {
				return
			}
		}
	}
}

// ScanAll collects Scan into a slice.
func (r *MatchRule) ScanAll(text string) []models.Occurrence {
	return slices.Collect(r.Scan(text))
}

// Count returns the number of occurrences Scan would yield.
func (r *MatchRule) Count(text string) int {
	n := 0
	for line := range strings.Lines(text) {
		r.find(strings.TrimRight(line, "\r\n"), func(_, _ int) bool {
			n++
			return true
		})
	}
	return n
}

// Contexts extracts up to limit context windows across the whole document, spanning line
// breaks. size counts characters on each side; whitespace inside each window is collapsed.
// A limit <= 0 means no limit.
func (r *MatchRule) Contexts(text string, size, limit int) []string {
	var contexts []string
	r.find(text, func(start, end int) bool {
		contexts = append(contexts, strings.Join(strings.Fields(window(text, start, end, size)), " "))
		return limit <= 0 || len(contexts) < limit
	})
	return contexts
}

// window cuts size runes before start and size runes after end, clamped to s.
func window(s string, start, end, size int) string {
	from := start
	for i := 0; i < size && from > 0; i++ {
		_, n := utf8.DecodeLastRuneInString(s[:from])
		from -= n
	}
	to := end
	for i := 0; i < size && to < len(s); i++ {
		_, n := utf8.DecodeRuneInString(s[to:])
		to += n
	}
	return strings.TrimSpace(s[from:to])
}
