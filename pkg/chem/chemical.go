// Package chem models chemicals and the c1·v1 = c2·v2 dilution relation.
package chem

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"graphmix/pkg/units"

	"gopkg.in/yaml.v3"
)

// Chemical is identified by Name. Values are treated as immutable once
// constructed and are keyed by name wherever they are stored.
type Chemical struct {
	Name      string         `json:"name" yaml:"name"`
	Formula   string         `json:"formula" yaml:"formula"`
	Structure string         `json:"structure,omitempty" yaml:"structure,omitempty"`
	MolarMass units.Quantity `json:"molar_mass" yaml:"molar_mass"`
}

var molarMass = units.Default().Validator(units.MolarMass)

// New builds a chemical. molarMass may be a units.Quantity, a quantity string
// or a bare number, which is read as g/mol.
func New(name, formula string, mass any) (Chemical, error) {
	if strings.TrimSpace(name) == "" {
		return Chemical{}, errors.New("chem: name is required")
	}
	q, err := molarMass.Coerce(mass)
	if err != nil {
		return Chemical{}, fmt.Errorf("chem: molar mass of %s: %w", name, err)
	}
	return Chemical{Name: name, Formula: formula, MolarMass: q}, nil
}

// MustNew is New for literals known to be valid. It panics on error.
func MustNew(name, formula string, mass any) Chemical {
	c, err := New(name, formula, mass)
	if err != nil {
		panic(err)
	}
	return c
}

// WithStructure returns a copy carrying the given structure string (SMILES).
func (c Chemical) WithStructure(structure string) Chemical {
	c.Structure = structure
	return c
}

// Count returns how many times element occurs in the structure string.
func (c Chemical) Count(element string) int {
	if c.Structure == "" || element == "" {
		return 0
	}
	return strings.Count(c.Structure, element)
}

func (c Chemical) String() string { return c.Name }

// normalize reads a dimensionless molar mass as g/mol.
func (c *Chemical) normalize() error {
	q, err := molarMass.Coerce(c.MolarMass.String())
	if err != nil {
		return fmt.Errorf("chem: molar mass of %s: %w", c.Name, err)
	}
	c.MolarMass = q
	return nil
}

type chemicalAlias Chemical

// UnmarshalJSON decodes a chemical and reads bare molar masses as g/mol.
func (c *Chemical) UnmarshalJSON(b []byte) error {
	var raw chemicalAlias
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Chemical(raw)
	return c.normalize()
}

// UnmarshalYAML decodes a chemical and reads bare molar masses as g/mol.
func (c *Chemical) UnmarshalYAML(node *yaml.Node) error {
	var raw chemicalAlias
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = Chemical(raw)
	return c.normalize()
}
