// Package lexicon builds word polarity dictionaries from scored word-list
// files such as SentiWS.
package lexicon

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/pevans/newsmood/wordlist"
)

// Lexicon maps a lowercase word to its polarity score.
type Lexicon map[string]float64

// Build reads each scored resource in order and merges overrides last. Later
// entries win on key collisions, so a word scored in two files keeps the score
// of the last file, and a manual override always beats a file entry.
//
// Each resource line has the form
//
//	term[|POS]<TAB>score[<TAB>inflected,inflected,...]
//
// Blank lines, "#" comments, and lines with fewer than two fields or an
// unparseable score are skipped.
func Build(paths []string, overrides map[string]float64) (Lexicon, error) {
	lex := Lexicon{}
	for _, path := range paths {
		if err := lex.load(path); err != nil {
			return nil, err
		}
	}
	for word, score := range overrides {
		lex[strings.ToLower(strings.TrimSpace(word))] = score
	}
	return lex, nil
}

func (l Lexicon) load(path string) error {
	f, err := wordlist.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.addLine(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	return nil
}

func (l Lexicon) addLine(line string) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return
	}

	lemma, _, _ := strings.Cut(fields[0], "|")
	if lemma = strings.ToLower(strings.TrimSpace(lemma)); lemma != "" {
		l[lemma] = score
	}

	if len(fields) < 3 {
		return
	}
	for _, form := range strings.Split(fields[2], ",") {
		if form = strings.ToLower(strings.TrimSpace(form)); form != "" {
			l[form] = score
		}
	}
}

// LoadOverrides reads a manual override file of "term<TAB>score" lines.
// Whitespace other than a tab is accepted as separator too.
func LoadOverrides(path string) (map[string]float64, error) {
	f, err := wordlist.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	overrides := map[string]float64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		score, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			continue
		}
		term := strings.Join(fields[:len(fields)-1], " ")
		overrides[strings.ToLower(term)] = score
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read overrides %s: %w", path, err)
	}
	return overrides, nil
}

// Score returns the score of word, or 0 when the word is unknown.
func (l Lexicon) Score(word string) float64 {
	return l[word]
}
