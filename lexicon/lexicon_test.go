package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pevans/newsmood/wordlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const positiveFixture = "# SentiWS style\n" +
	"Innovation|NN\t0.5\tInnovationen\n" +
	"innovativ|ADJX\t0.9\tinnovative,innovativen,Innovativer\n" +
	"\n" +
	"effizient|ADJX\t0.8\n" +
	"kaputt\n" +
	"broken|ADJX\tnotanumber\n"

const negativeFixture = "Mangel|NN\t-0.4\tMängel,Mangels\n" +
	"innovativ|ADJX\t-0.1\n"

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestBuild_ParsesLemmaAndInflections verifies lemma and inflected forms
// share one score
func TestBuild_ParsesLemmaAndInflections(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "positive.txt", positiveFixture)

	lex, err := Build([]string{pos}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.9, lex["innovativ"])
	assert.Equal(t, 0.9, lex["innovativer"], "inflections should be case-folded")
	assert.Equal(t, 0.5, lex["innovationen"])
	assert.Equal(t, 0.8, lex["effizient"])
	assert.NotContains(t, lex, "kaputt", "single-field lines are skipped")
	assert.NotContains(t, lex, "broken", "unparseable scores are skipped")
	assert.Len(t, lex, 7)
}

// TestBuild_LaterFileWins verifies last write wins across resources
func TestBuild_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "positive.txt", positiveFixture)
	neg := writeFile(t, dir, "negative.txt", negativeFixture)

	lex, err := Build([]string{pos, neg}, nil)
	require.NoError(t, err)

	assert.Equal(t, -0.1, lex["innovativ"])
	assert.Equal(t, 0.9, lex["innovative"], "untouched inflections keep their score")
	assert.Equal(t, -0.4, lex["mängel"])
}

// TestBuild_OverridesWin verifies manual overrides are merged last
func TestBuild_OverridesWin(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "positive.txt", positiveFixture)

	lex, err := Build([]string{pos}, map[string]float64{"Effizient": -1, "rückruf": -0.7})
	require.NoError(t, err)

	assert.Equal(t, -1.0, lex["effizient"])
	assert.Equal(t, -0.7, lex["rückruf"])
}

// TestBuild_Idempotent verifies loading the same file twice yields the same
// mapping
func TestBuild_Idempotent(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "positive.txt", positiveFixture)

	once, err := Build([]string{pos}, nil)
	require.NoError(t, err)
	twice, err := Build([]string{pos, pos}, nil)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

// TestBuild_MissingResource verifies the fatal error for missing files
func TestBuild_MissingResource(t *testing.T) {
	_, err := Build([]string{filepath.Join(t.TempDir(), "nope.txt")}, nil)

	assert.ErrorIs(t, err, wordlist.ErrResourceNotFound)
}

// TestLoadOverrides verifies the override file format
func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "overrides.txt", "# manual\nrückruf\t-0.8\nsehr gut 0.6\nbad\n")

	overrides, err := LoadOverrides(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"rückruf": -0.8, "sehr gut": 0.6}, overrides)
}
