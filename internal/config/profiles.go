package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/talentflow/pkg/models"
)

type profileFile struct {
	Profiles []models.Profile `yaml:"profiles"`
}

// LoadProfiles reads the operator profiles file and returns the profile
// with the given id, or the first one when id is empty.
func LoadProfiles(path, id string) (*models.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("profiles %s: no profiles defined", path)
	}
	if id == "" {
		return &pf.Profiles[0], nil
	}
	for i := range pf.Profiles {
		if pf.Profiles[i].ID == id {
			return &pf.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profiles %s: profile %q not found", path, id)
}
