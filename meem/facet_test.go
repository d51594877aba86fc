package meem

import (
	"errors"
	"testing"

	is2 "github.com/matryer/is"
)

func TestMatchFacet(t *testing.T) {
	is := is2.New(t)
	registry := []FacetDesc{{Name: "temp"}, {Name: "humidity"}}
	tests := []struct {
		topic string
		want  int
	}{
		{"meem/dev-1/in/temp", 0},
		{"meem/dev-1/in/humidity", 1},
		{"meem/dev-1/in/pressure", NoFacet},
		{"temp", 0},
		{"emp", NoFacet}, // shorter than every name
		{"", NoFacet},
	}
	for _, tt := range tests {
		is.Equal(MatchFacet(registry, tt.topic), tt.want) // tt.topic
	}
	is.Equal(MatchFacet(nil, "meem/dev-1/in/temp"), NoFacet)
}

func TestMatchFacet_registryOrderBreaksTies(t *testing.T) {
	is := is2.New(t)
	// "temp" is a suffix of "roomtemp": the first entry wins either way round.
	is.Equal(MatchFacet([]FacetDesc{{Name: "temp"}, {Name: "roomtemp"}}, "meem/d/in/roomtemp"), 0)
	is.Equal(MatchFacet([]FacetDesc{{Name: "roomtemp"}, {Name: "temp"}}, "meem/d/in/roomtemp"), 0)
	is.Equal(MatchFacet([]FacetDesc{{Name: "roomtemp"}, {Name: "temp"}}, "meem/d/in/temp"), 1)
}

func TestParseFacetKind(t *testing.T) {
	is := is2.New(t)
	k, err := ParseFacetKind("Analog")
	is.NoErr(err)
	is.Equal(k, Linear)
	k, err = ParseFacetKind("binary")
	is.NoErr(err)
	is.Equal(k, Binary)
	_, err = ParseFacetKind("pwm")
	is.True(errors.Is(err, ErrInvalidFacet))
}

func TestParseDirection(t *testing.T) {
	is := is2.New(t)
	d, err := ParseDirection("OUT")
	is.NoErr(err)
	is.Equal(d, Out)
	_, err = ParseDirection("sideways")
	is.True(errors.Is(err, ErrInvalidFacet))
}

func TestFacetDesc_String(t *testing.T) {
	is := is2.New(t)
	is.Equal(FacetDesc{Name: "relay", Kind: Binary, Direction: In}.String(), "(relay binary in)")
}
