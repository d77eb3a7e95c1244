package words

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrEmptyList = errors.New("word list is empty")
	ErrBadWord   = errors.New("invalid word")
)

//go:embed words.txt
var defaultWords string

// List is an ordered set of candidate signal words. The order is part of
// the schedule derivation: reordering a list changes every schedule
// generated from it.
type List struct {
	words []string
}

// Default returns the embedded word list.
func Default() List {
	l, err := Parse(strings.NewReader(defaultWords))
	if err != nil {
		panic(fmt.Sprintf("words: embedded list is invalid: %v", err))
	}
	return l
}

// Load reads a word list file, one word per line. Blank lines and lines
// starting with '#' are skipped.
func Load(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return List{}, err
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return List{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse reads the word list format from r.
func Parse(r io.Reader) (List, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return List{}, err
	}
	return New(words)
}

// New validates and lower-cases words. Words must be letters only and
// unique.
func New(words []string) (List, error) {
	if len(words) == 0 {
		return List{}, ErrEmptyList
	}
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || strings.IndexFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
			return List{}, fmt.Errorf("%w: %q", ErrBadWord, w)
		}
		if _, dup := seen[w]; dup {
			return List{}, fmt.Errorf("%w: duplicate %q", ErrBadWord, w)
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return List{words: out}, nil
}

func (l List) Len() int { return len(l.words) }

func (l List) At(i int) string { return l.words[i] }

// Words returns a copy of the list.
func (l List) Words() []string {
	return append([]string(nil), l.words...)
}

// Display is the upper-case form shown in calendars and tables.
func Display(word string) string {
	return cases.Upper(language.Und).String(word)
}
