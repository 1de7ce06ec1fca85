package game

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// RoleEntry holds the static description of a role
type RoleEntry struct {
	Notes string `yaml:"notes"`
}

// Catalog is the static text handed to automated seats
type Catalog struct {
	Rules    string                    `yaml:"rules"`
	Roles    map[models.Role]RoleEntry `yaml:"roles"`
	Personas []string                  `yaml:"personas"`
}

// LoadCatalog parses the embedded catalog
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses and validates catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, r := range models.AllRoles {
		if _, ok := c.Roles[r]; !ok {
			return nil, fmt.Errorf("parse catalog: missing role %q", r)
		}
	}
	if len(c.Personas) == 0 {
		return nil, errors.New("parse catalog: persona pool is empty")
	}
	c.Rules = strings.TrimSpace(c.Rules)
	return &c, nil
}

// Notes returns the role notes for r
func (c *Catalog) Notes(r models.Role) string {
	return strings.TrimSpace(c.Roles[r].Notes)
}
