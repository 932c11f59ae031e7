// Package transcript cleans raw speech-to-text output before it is
// summarized: ellipses, stutters, filler utterances and doubled words are
// removed and the result is folded onto a single line.
package transcript

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFillerPasses = 20

var (
	reDots        = regexp.MustCompile(`\.{2,}`)
	reSpace       = regexp.MustCompile(`\s+`)
	reCommaRun    = regexp.MustCompile(`、{2,}`)
	rePeriodRun   = regexp.MustCompile(`。{2,}`)
	reLeadingPunc = regexp.MustCompile(`^[、。]+`)
	reSpacedPunc  = regexp.MustCompile(`\s+[、。]+`)
)

// Cleaner applies the cleanup pipeline. It is safe for concurrent use.
type Cleaner struct {
	fillers [][]rune
}

// New returns a Cleaner that strips the given filler words. Longer fillers
// win over their prefixes.
func New(fillers []string) *Cleaner {
	rs := make([][]rune, 0, len(fillers))
	for _, f := range fillers {
		if f = strings.TrimSpace(f); f != "" {
			rs = append(rs, []rune(f))
		}
	}
	slices.SortStableFunc(rs, func(a, b []rune) int { return len(b) - len(a) })
	return &Cleaner{fillers: rs}
}

// Clean runs every stage in order.
func (c *Cleaner) Clean(text string) string {
	text = normalize(text)
	text = removeRepetition(text)
	text = c.removeFillers(text)
	text = dedupeWords(text)
	return mergeLines(text)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "…", " ")
	return reDots.ReplaceAllString(s, " ")
}

// removeRepetition collapses a chunk of one to four characters repeated five
// or more times in a row into a single chunk. The shortest repeating chunk
// wins, so "ふんふんふんふんふん" becomes "ふん" and "あああああ" becomes "あ".
func removeRepetition(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(rs); {
		if n, size := repeatAt(rs, i); n >= 5 {
			b.WriteString(string(rs[i : i+size]))
			i += n * size
			continue
		}
		b.WriteRune(rs[i])
		i++
	}
	return b.String()
}

// repeatAt returns how many consecutive copies of the shortest qualifying
// chunk start at i, and the chunk length.
func repeatAt(rs []rune, i int) (int, int) {
	for size := 1; size <= 4 && i+size <= len(rs); size++ {
		chunk := rs[i : i+size]
		if slices.Contains(chunk, '\n') {
			return 0, 0
		}
		n := 1
		for j := i + size; j+size <= len(rs) && slices.Equal(rs[j:j+size], chunk); j += size {
			n++
		}
		if n >= 5 {
			return n, size
		}
	}
	return 0, 0
}

func isDelim(r rune) bool {
	return unicode.IsSpace(r) || r == '、' || r == '。' || r == '?' || r == '!'
}

func (c *Cleaner) removeFillers(s string) string {
	for range maxFillerPasses {
		next := c.stripFillersOnce(s)
		if next == s {
			break
		}
		s = next
	}

	s = strings.TrimSpace(reSpace.ReplaceAllString(s, " "))
	s = reCommaRun.ReplaceAllString(s, "、")
	s = rePeriodRun.ReplaceAllString(s, "。")
	s = strings.TrimSpace(reLeadingPunc.ReplaceAllString(s, ""))
	s = reSpacedPunc.ReplaceAllString(s, "")
	return strings.TrimSpace(reSpace.ReplaceAllString(s, " "))
}

// stripFillersOnce replaces every filler that stands between delimiters (or
// the text edges) with a space, keeping the leading delimiter. A filler
// embedded in a longer word is left alone.
func (c *Cleaner) stripFillersOnce(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(rs); {
		if i == 0 {
			if n := c.fillerAt(rs, 0); n > 0 {
				b.WriteByte(' ')
				i = n
				continue
			}
		}
		if isDelim(rs[i]) {
			if n := c.fillerAt(rs, i+1); n > 0 {
				b.WriteRune(rs[i])
				b.WriteByte(' ')
				i += 1 + n
				continue
			}
		}
		b.WriteRune(rs[i])
		i++
	}
	return b.String()
}

// fillerAt returns the length of the longest filler at position at that is
// followed by a delimiter or the end of the text, or 0.
func (c *Cleaner) fillerAt(rs []rune, at int) int {
	for _, f := range c.fillers {
		end := at + len(f)
		if end > len(rs) || !slices.Equal(rs[at:end], f) {
			continue
		}
		if end == len(rs) || isDelim(rs[end]) {
			return len(f)
		}
	}
	return 0
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// wordBoundary reports whether a word/non-word transition sits at i.
func wordBoundary(rs []rune, i int) bool {
	before := i > 0 && isWord(rs[i-1])
	after := i < len(rs) && isWord(rs[i])
	return before != after
}

// dedupeWords drops the second copy of a token repeated across whitespace,
// as in "今日は 今日は". The repeated part may be a suffix of the first token
// but must end on a word boundary in the second.
func dedupeWords(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	pos := 0
	for pos < len(rs) {
		ws := -1
		for j := pos + 1; j < len(rs); j++ {
			if unicode.IsSpace(rs[j]) && !unicode.IsSpace(rs[j-1]) {
				ws = j
				break
			}
		}
		if ws < 0 {
			break
		}
		next := ws
		for next < len(rs) && unicode.IsSpace(rs[next]) {
			next++
		}
		if next == len(rs) {
			break
		}

		start := ws - 1
		for start > pos && !unicode.IsSpace(rs[start-1]) {
			start--
		}
		matched := false
		for k := ws - start; k >= 1; k-- {
			tok := rs[ws-k : ws]
			end := next + k
			if end <= len(rs) && slices.Equal(rs[next:end], tok) && wordBoundary(rs, end) {
				b.WriteString(string(rs[pos:ws]))
				pos = end
				matched = true
				break
			}
		}
		if !matched {
			b.WriteString(string(rs[pos:next]))
			pos = next
		}
	}
	b.WriteString(string(rs[pos:]))
	return b.String()
}

func mergeLines(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(s, " "))
}

// Valid reports whether s is usable transcript text.
func Valid(s string) bool {
	return utf8.ValidString(s) && strings.TrimSpace(s) != ""
}
