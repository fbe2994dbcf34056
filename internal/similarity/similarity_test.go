package similarity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Home Depot", "Home Depot", 1.0},
		{"case insensitive", "HOME DEPOT", "home depot", 1.0},
		{"extra whitespace", "  Home   Depot ", "home depot", 1.0},
		{"contains", "Ace Rentals", "ACE Rentals Inc", 0.9},
		{"contained", "ACE Rentals Inc", "Ace Rentals", 0.9},
		{"one substitution", "kitten", "sitten", 5.0 / 6.0},
		{"classic", "kitten", "sitting", 4.0 / 7.0},
		{"nothing shared", "abc", "xyz", 0},
		{"one empty", "abc", "", 0},
		{"both empty", "", "", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 0.0001)
		})
	}
}

func TestRatio_SymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"Lowe's", "Lowes Home Improvement"},
		{"City of Austin", "Austin Permits Office"},
		{"Sunbelt Rentals", "United Rentals"},
		{"Ferguson", "Fergusen Supply"},
	}
	for _, p := range pairs {
		r := Ratio(p[0], p[1])
		assert.InDelta(t, r, Ratio(p[1], p[0]), 1e-9)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 100, Score("ACME", "acme"))
	assert.Equal(t, 90, Score("ACME", "ACME Supply"))
	assert.Equal(t, 0, Score("", "ACME"))
}

func TestRatio_LongInputs(t *testing.T) {
	a := strings.Repeat("concrete ", 200)
	b := strings.Repeat("concrete ", 199) + "lumber"
	r := Ratio(a, b)
	assert.Greater(t, r, 0.9)
	assert.Less(t, r, 1.0)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 100, Confidence(1))
	assert.Equal(t, 99, Confidence(0.996))
	assert.Equal(t, 90, Confidence(ContainmentScore))
	assert.Equal(t, 0, Confidence(0))

	long := strings.Repeat("lumber yard ", 20)
	assert.Equal(t, 99, Score(long+"a", long+"b"))
}
