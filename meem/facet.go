package meem

import (
	"fmt"
	"strings"
)

// NoFacet is the index handed to the inbound handler when no facet matches the topic.
const NoFacet = -1

type FacetKind int

const (
	Binary FacetKind = iota
	Linear
)

func (k FacetKind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Linear:
		return "linear"
	}
	return "unknown"
}

func ParseFacetKind(s string) (FacetKind, error) {
	switch strings.ToLower(s) {
	case "binary", "digital":
		return Binary, nil
	case "linear", "analog":
		return Linear, nil
	}
	return Binary, fmt.Errorf("%w: unknown facet kind %q", ErrInvalidFacet, s)
}

type Direction int

const (
	In Direction = iota
	Out
)

// String returns the topic segment for the direction.
func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	}
	return "unknown"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "in", "inbound", "input":
		return In, nil
	case "out", "outbound", "output":
		return Out, nil
	}
	return In, fmt.Errorf("%w: unknown direction %q", ErrInvalidFacet, s)
}

// FacetDesc describes one local channel of the device.
type FacetDesc struct {
	Name      string
	Kind      FacetKind
	Direction Direction
}

func (f FacetDesc) String() string {
	return fmt.Sprintf("(%s %s %s)", f.Name, f.Kind, f.Direction)
}

// validateFacets checks that every name can be used as a topic segment.
// An empty name would be a suffix of every topic and swallow all traffic.
func validateFacets(facets []FacetDesc) error {
	for i, f := range facets {
		if err := validateSegment(f.Name); err != nil {
			return fmt.Errorf("%w: facet %d (%q): %s", ErrInvalidFacet, i, f.Name, err)
		}
	}
	return nil
}

// MatchFacet returns the index of the first facet, in registry order, whose name
// is the tail of topic. Registry order is the tie-break when one name is a suffix
// of another. NoFacet is returned when nothing matches.
func MatchFacet(facets []FacetDesc, topic string) int {
	for i, f := range facets {
		if len(f.Name) > len(topic) {
			continue
		}
		if topic[len(topic)-len(f.Name):] == f.Name {
			return i
		}
	}
	return NoFacet
}
