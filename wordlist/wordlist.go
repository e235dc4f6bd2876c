package wordlist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrResourceNotFound is returned when a word list or lexicon file does not
// exist. A run cannot start without its resources, so callers treat this as
// fatal.
var ErrResourceNotFound = errors.New("resource not found")

// Set is a flat set of lowercase terms.
type Set map[string]struct{}

// New builds a set from the given terms, lowercasing and trimming each one.
// Empty terms are ignored.
func New(terms ...string) Set {
	s := make(Set, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			s[term] = struct{}{}
		}
	}
	return s
}

// Load reads a word list from path. Each non-empty line is one term; lines
// starting with "#" are comments.
func Load(path string) (Set, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := Set{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word list %s: %w", path, err)
	}

	return s, nil
}

// Open opens a resource file, mapping a missing file to ErrResourceNotFound.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// Contains reports whether term is in the set.
func (s Set) Contains(term string) bool {
	_, ok := s[term]
	return ok
}

// AnyIn reports whether any term of the set occurs as a substring of text.
// text is expected to be lowercase already.
func (s Set) AnyIn(text string) bool {
	for term := range s {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// Sorted returns the terms in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for term := range s {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
