package kvbench

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Generator produces a stream of non-negative float64 samples. Connections
// use one to drive inter-arrival delays (seconds) and value/key sizing.
// Implementations need not be safe for concurrent use; each Connection
// owns its own instances.
type Generator interface {
	Generate() float64
}

// FixedGenerator always returns the same value. An arrival generator built
// from a non-positive Lambda becomes a FixedGenerator(0), which the pacing
// state machine treats as "pacing disabled" (see connection.go).
type FixedGenerator struct{ Value float64 }

func (g FixedGenerator) Generate() float64 { return g.Value }

// UniformGenerator draws uniformly from [Min, Max).
type UniformGenerator struct {
	Min, Max float64
	rng      *rand.Rand
}

func NewUniformGenerator(min, max float64, rng *rand.Rand) *UniformGenerator {
	return &UniformGenerator{Min: min, Max: max, rng: rng}
}

func (g *UniformGenerator) Generate() float64 {
	return g.Min + g.rng.Float64()*(g.Max-g.Min)
}

// ExponentialGenerator draws from an exponential distribution with the
// given mean, the standard model for Poisson-process inter-arrival times.
type ExponentialGenerator struct {
	Mean float64
	rng  *rand.Rand
}

func NewExponentialGenerator(mean float64, rng *rand.Rand) *ExponentialGenerator {
	return &ExponentialGenerator{Mean: mean, rng: rng}
}

func (g *ExponentialGenerator) Generate() float64 {
	if g.Mean <= 0 {
		return 0
	}
	return g.rng.ExpFloat64() * g.Mean
}

// NewArrivalGenerator builds the inter-arrival Generator for a session given
// the aggregate Lambda (ops/s) an Options snapshot requests, divided across
// sessionCount sessions. A non-positive Lambda disables pacing entirely,
// mirroring the reference implementation's createGenerator("0") fallback.
func NewArrivalGenerator(lambda float64, sessionCount int, rng *rand.Rand) Generator {
	if lambda <= 0 || sessionCount <= 0 {
		return FixedGenerator{Value: 0}
	}
	perSession := lambda / float64(sessionCount)
	if perSession <= 0 || math.IsInf(perSession, 0) {
		return FixedGenerator{Value: 0}
	}
	return NewExponentialGenerator(1.0/perSession, rng)
}

// ParseSizeGenerator parses the distribution mini-language used by
// Options.KeySize and Options.ValueSize: "fixed:N", "uniform:MIN,MAX", or a
// bare "N" (equivalent to "fixed:N").
func ParseSizeGenerator(spec string, rng *rand.Rand) (Generator, error) {
	var kind string
	var rest string
	if idx := indexByte(spec, ':'); idx >= 0 {
		kind, rest = spec[:idx], spec[idx+1:]
	} else {
		kind, rest = "fixed", spec
	}

	switch kind {
	case "fixed":
		var n float64
		if _, err := fmt.Sscanf(rest, "%f", &n); err != nil {
			return nil, fmt.Errorf("kvbench: invalid fixed size spec %q: %w", spec, err)
		}
		return FixedGenerator{Value: n}, nil
	case "uniform":
		var lo, hi float64
		if _, err := fmt.Sscanf(rest, "%f,%f", &lo, &hi); err != nil {
			return nil, fmt.Errorf("kvbench: invalid uniform size spec %q: %w", spec, err)
		}
		return NewUniformGenerator(lo, hi, rng), nil
	default:
		return nil, fmt.Errorf("kvbench: unknown size distribution %q", kind)
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// KeyGenerator maps a record index in [0, Records) to its wire key string.
type KeyGenerator interface {
	Key(index int) string
}

// SequentialKeyGenerator zero-pads indices to a fixed width, matching the
// reference implementation's generate_key (util.cc).
type SequentialKeyGenerator struct {
	Width int
}

func NewSequentialKeyGenerator(records int) SequentialKeyGenerator {
	width := len(fmt.Sprintf("%d", records))
	if width < 1 {
		width = 1
	}
	return SequentialKeyGenerator{Width: width}
}

func (g SequentialKeyGenerator) Key(index int) string {
	return fmt.Sprintf("%0*d", g.Width, index)
}

// newRand returns a Rand seeded from the current time, for callers that
// don't need a reproducible seed (tests should construct their own
// rand.Rand with a fixed seed instead).
func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
