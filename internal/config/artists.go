package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Artist is one storefront the fetcher downloads from.
type Artist struct {
	Subdomain string `yaml:"subdomain" json:"subdomain"`
	ID        string `yaml:"id" json:"id"`
}

// Roster is the artists.yaml document.
type Roster struct {
	Artists []Artist `yaml:"artists" json:"artists"`
}

// LoadArtists reads the roster at path.
func LoadArtists(path string) ([]Artist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artists file: %w", err)
	}
	return ParseArtists(data)
}

// ParseArtists decodes roster YAML. Subdomains are trimmed and lower-cased;
// entries missing either field and duplicate subdomains are errors.
func ParseArtists(data []byte) ([]Artist, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse artists: %w", err)
	}

	seen := make(map[string]bool, len(roster.Artists))
	var errs []string
	for i := range roster.Artists {
		a := &roster.Artists[i]
		a.Subdomain = strings.ToLower(strings.TrimSpace(a.Subdomain))
		a.ID = strings.TrimSpace(a.ID)

		switch {
		case a.Subdomain == "":
			errs = append(errs, fmt.Sprintf("entry %d: subdomain is required", i+1))
		case a.ID == "":
			errs = append(errs, fmt.Sprintf("entry %d (%s): id is required", i+1, a.Subdomain))
		case seen[a.Subdomain]:
			errs = append(errs, fmt.Sprintf("entry %d: duplicate subdomain %q", i+1, a.Subdomain))
		}
		seen[a.Subdomain] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid artists:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return roster.Artists, nil
}
