package config

import (
	"fmt"

	"github.com/pevans/newsmood/lexicon"
	"github.com/pevans/newsmood/scraper"
	"github.com/pevans/newsmood/wordlist"
)

// Resources holds everything loaded from disk for a run. Nothing here changes
// once loaded.
type Resources struct {
	Profile      *scraper.SiteProfile
	ContextWords wordlist.Set
	Blacklist    wordlist.Set
	Positive     wordlist.Set
	Negative     wordlist.Set
	Lexicon      lexicon.Lexicon
}

// LoadResources reads the site profile, word lists and lexicons named by
// cfg. The profile and context words are required; the other paths may be
// empty. Any named file that does not exist fails with
// wordlist.ErrResourceNotFound.
func LoadResources(cfg *Config) (*Resources, error) {
	profile, err := scraper.LoadProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}

	res := &Resources{Profile: profile}

	res.ContextWords, err = wordlist.Load(cfg.Resources.ContextWords)
	if err != nil {
		return nil, fmt.Errorf("context words: %w", err)
	}

	optional := []struct {
		name string
		path string
		dst  *wordlist.Set
	}{
		{"blacklist", cfg.Resources.Blacklist, &res.Blacklist},
		{"positive words", cfg.Resources.PositiveWords, &res.Positive},
		{"negative words", cfg.Resources.NegativeWords, &res.Negative},
	}
	for _, o := range optional {
		if o.path == "" {
			*o.dst = wordlist.New()
			continue
		}
		set, err := wordlist.Load(o.path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.name, err)
		}
		*o.dst = set
	}

	var overrides map[string]float64
	if cfg.Resources.Overrides != "" {
		overrides, err = lexicon.LoadOverrides(cfg.Resources.Overrides)
		if err != nil {
			return nil, fmt.Errorf("lexicon overrides: %w", err)
		}
	}

	res.Lexicon, err = lexicon.Build(cfg.Resources.Lexicons, overrides)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}

	return res, nil
}
