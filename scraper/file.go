package scraper

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pevans/newsmood/wordlist"
)

// LoadProfile reads a site profile from a YAML file. Fields missing from the
// file keep the values of DefaultProfile. A missing file is reported as
// wordlist.ErrResourceNotFound.
func LoadProfile(path string) (*SiteProfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", wordlist.ErrResourceNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	if profile.BaseURL != "" && !strings.HasSuffix(profile.BaseURL, "/") {
		profile.BaseURL += "/"
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}

	return profile, nil
}
