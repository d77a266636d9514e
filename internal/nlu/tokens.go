package nlu

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// TokenSet is the unordered set of words in a transcript.
type TokenSet map[string]struct{}

// Normalize lowercases s and drops every rune that is not a letter, number
// or whitespace.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, s)
}

func Tokenize(s string) TokenSet {
	fields := strings.Fields(Normalize(s))
	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func (t TokenSet) Has(word string) bool {
	_, ok := t[word]
	return ok
}

// Any reports whether at least one of words is present.
func (t TokenSet) Any(words ...string) bool {
	for _, w := range words {
		if t.Has(w) {
			return true
		}
	}
	return false
}

// First returns the first of words present, in argument order.
func (t TokenSet) First(words ...string) (string, bool) {
	for _, w := range words {
		if t.Has(w) {
			return w, true
		}
	}
	return "", false
}

func (t TokenSet) Intersects(vocab map[string]struct{}) bool {
	for w := range t {
		if _, ok := vocab[w]; ok {
			return true
		}
	}
	return false
}

// String joins the sorted tokens with single spaces.
func (t TokenSet) String() string {
	words := make([]string, 0, len(t))
	for w := range t {
		words = append(words, w)
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}

// FirstInt returns the first maximal run of ASCII digits in s. Runs too long
// for an int are treated as absent.
func FirstInt(s string) (int, bool) {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && isDigit(rune(s[end])) {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func vocabulary(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Utterance is a transcript with everything the rules look at derived once.
type Utterance struct {
	Raw    string
	Text   string
	Tokens TokenSet

	Number    int
	HasNumber bool
}

func NewUtterance(raw string) *Utterance {
	text := Normalize(raw)
	n, ok := FirstInt(raw)
	return &Utterance{
		Raw:       raw,
		Text:      text,
		Tokens:    Tokenize(raw),
		Number:    n,
		HasNumber: ok,
	}
}
