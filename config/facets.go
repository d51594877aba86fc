package config

import (
	"fmt"
	"os"

	"github.com/celerway/meem/meem"
	"gopkg.in/yaml.v3"
)

type facetFile struct {
	Facets []Facet `yaml:"facets"`
}

// Facet is one entry of the facet table.
//
//	facets:
//	  - name: relay
//	    kind: binary
//	    direction: in
//	    pin: 17
type Facet struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Direction string `yaml:"direction"`
	Pin       *int   `yaml:"pin,omitempty"`      // gpio line offset
	Loopback  string `yaml:"loopback,omitempty"` // inbound facet whose values this outbound facet repeats
}

// LoadFacets reads and checks the facet table at path.
func LoadFacets(path string) ([]Facet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading facet table: %w", err)
	}
	return ParseFacets(data)
}

func ParseFacets(data []byte) ([]Facet, error) {
	var f facetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing facet table: %w", err)
	}
	if len(f.Facets) == 0 {
		return nil, fmt.Errorf("%w: empty facet table", ErrInvalidConfig)
	}
	if _, err := Descriptors(f.Facets); err != nil {
		return nil, err
	}
	if err := checkLoopbacks(f.Facets); err != nil {
		return nil, err
	}
	return f.Facets, nil
}

// Descriptors converts the table, in order, into the adapter's facet registry.
func Descriptors(facets []Facet) ([]meem.FacetDesc, error) {
	descs := make([]meem.FacetDesc, 0, len(facets))
	for i, f := range facets {
		kind := meem.Binary
		if f.Kind != "" {
			k, err := meem.ParseFacetKind(f.Kind)
			if err != nil {
				return nil, fmt.Errorf("facet %d (%s): %w", i, f.Name, err)
			}
			kind = k
		}
		dir, err := meem.ParseDirection(f.Direction)
		if err != nil {
			return nil, fmt.Errorf("facet %d (%s): %w", i, f.Name, err)
		}
		descs = append(descs, meem.FacetDesc{Name: f.Name, Kind: kind, Direction: dir})
	}
	return descs, nil
}

// Index returns the position of the named facet, or meem.NoFacet.
func Index(facets []Facet, name string) int {
	for i, f := range facets {
		if f.Name == name {
			return i
		}
	}
	return meem.NoFacet
}

// checkLoopbacks requires every loopback to run from an inbound to an outbound facet.
func checkLoopbacks(facets []Facet) error {
	for _, f := range facets {
		if f.Loopback == "" {
			continue
		}
		src := Index(facets, f.Loopback)
		if src == meem.NoFacet {
			return fmt.Errorf("%w: facet %s loops back unknown facet %s", ErrInvalidConfig, f.Name, f.Loopback)
		}
		srcDir, _ := meem.ParseDirection(facets[src].Direction)
		dstDir, _ := meem.ParseDirection(f.Direction)
		if srcDir != meem.In || dstDir != meem.Out {
			return fmt.Errorf("%w: loopback %s -> %s must run from in to out", ErrInvalidConfig, f.Loopback, f.Name)
		}
	}
	return nil
}
