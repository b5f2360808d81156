// Package catalog loads the school catalog offered on the registration
// form. The file format is picked by extension:
//
//	.yaml / .yml → gopkg.in/yaml.v3
//	.toml        → github.com/BurntSushi/toml  (top-level [[schools]] array)
//	.json        → encoding/json
//
// The loaded catalog is immutable and may be shared by every form.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var ErrEmptyCatalog = errors.New("catalog has no schools")

// tomlFile is the TOML shape. TOML has no top-level arrays, so the
// schools live under a [[schools]] table array.
type tomlFile struct {
	Schools []types.School `toml:"schools"`
}

// Load reads the catalog file at path and checks it.
func Load(path string) (types.SchoolCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog.Load: read: %w", err)
	}

	var schools types.SchoolCatalog

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &schools)
	case ".toml":
		var f tomlFile
		_, err = toml.Decode(string(raw), &f)
		schools = f.Schools
	case ".json":
		err = json.Unmarshal(raw, &schools)
	default:
		return nil, fmt.Errorf("catalog.Load: unsupported extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog.Load: decode: %w", err)
	}

	if err := Check(schools); err != nil {
		return nil, fmt.Errorf("catalog.Load: %w", err)
	}

	return schools, nil
}

// Check verifies the catalog can seed a registration form: at least one
// school, every school named, with a country and at least one programme,
// and no duplicate school names.
func Check(schools types.SchoolCatalog) error {
	if len(schools) == 0 {
		return ErrEmptyCatalog
	}

	seen := make(map[string]struct{}, len(schools))
	for i, s := range schools {
		if s.Name == "" || s.Country == "" {
			return fmt.Errorf("school #%d: name and country are required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("school %q listed twice", s.Name)
		}
		seen[s.Name] = struct{}{}
		if len(s.Programs) == 0 {
			return fmt.Errorf("school %q has no programs", s.Name)
		}
	}

	return nil
}

// Countries returns the distinct countries of the catalog in first-seen
// order, for the country selector.
func Countries(schools types.SchoolCatalog) []string {
	seen := make(map[string]struct{})
	countries := make([]string, 0)
	for _, s := range schools {
		if _, ok := seen[s.Country]; ok {
			continue
		}
		seen[s.Country] = struct{}{}
		countries = append(countries, s.Country)
	}
	return countries
}
