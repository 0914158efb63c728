package kvbench

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedGenerator(t *testing.T) {
	g := FixedGenerator{Value: 3.5}
	assert.Equal(t, 3.5, g.Generate())
	assert.Equal(t, 3.5, g.Generate())
}

func TestNewArrivalGeneratorDisabledForNonPositiveLambda(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := NewArrivalGenerator(0, 4, rng)
	assert.Equal(t, 0.0, g.Generate())

	g = NewArrivalGenerator(-1, 4, rng)
	assert.Equal(t, 0.0, g.Generate())
}

func TestNewArrivalGeneratorProducesPositiveDelays(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := NewArrivalGenerator(1000, 4, rng)
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, g.Generate(), 0.0)
	}
}

func TestUniformGeneratorBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := NewUniformGenerator(10, 20, rng)
	for i := 0; i < 1000; i++ {
		v := g.Generate()
		assert.GreaterOrEqual(t, v, 10.0)
		assert.Less(t, v, 20.0)
	}
}

func TestParseSizeGeneratorFixed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g, err := ParseSizeGenerator("fixed:64", rng)
	require.NoError(t, err)
	assert.Equal(t, 64.0, g.Generate())
}

func TestParseSizeGeneratorBareNumber(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g, err := ParseSizeGenerator("128", rng)
	require.NoError(t, err)
	assert.Equal(t, 128.0, g.Generate())
}

func TestParseSizeGeneratorUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g, err := ParseSizeGenerator("uniform:10,20", rng)
	require.NoError(t, err)
	v := g.Generate()
	assert.GreaterOrEqual(t, v, 10.0)
	assert.Less(t, v, 20.0)
}

func TestParseSizeGeneratorRejectsUnknownKind(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := ParseSizeGenerator("exponential:10", rng)
	assert.Error(t, err)
}

func TestSequentialKeyGenerator(t *testing.T) {
	g := NewSequentialKeyGenerator(1000)
	assert.Equal(t, "0000", g.Key(0))
	assert.Equal(t, "0042", g.Key(42))
	assert.Equal(t, "0999", g.Key(999))
}
