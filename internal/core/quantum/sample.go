package quantum

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Noise is a simple depolarizing plus readout error model.
type Noise struct {
	CZError      float64
	GateError    float64
	ReadoutError float64
}

// Fidelity is the probability that no gate error occurs while running c.
func (n Noise) Fidelity(c *Circuit) float64 {
	return math.Pow(1-n.CZError, float64(c.TwoQubitGates())) *
		math.Pow(1-n.GateError, float64(c.SingleQubitGates()))
}

// Simulator samples measurement outcomes of a transpiled circuit with a
// dense state vector over the qubits the circuit touches.
type Simulator struct {
	Noise Noise
	rng   *rand.Rand
}

// NewSimulator returns a simulator; seed 0 picks a random seed.
func NewSimulator(noise Noise, seed uint64) *Simulator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulator{
		Noise: noise,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// maxSimQubits bounds the state vector at 2^20 amplitudes.
const maxSimQubits = 20

// Probabilities returns the ideal outcome distribution of c indexed by the
// classical register value, where bit i holds Measure[i].
func Probabilities(c *Circuit) ([]float64, error) {
	qubits := c.Qubits()
	if len(qubits) > maxSimQubits {
		return nil, fmt.Errorf("circuit touches %d qubits, limit is %d", len(qubits), maxSimQubits)
	}
	index := make(map[int]int, len(qubits))
	for i, q := range qubits {
		index[q] = i
	}

	amp := make([]complex128, 1<<len(qubits))
	amp[0] = 1
	for _, g := range c.Gates {
		if err := apply(amp, g, index); err != nil {
			return nil, err
		}
	}

	probs := make([]float64, 1<<len(c.Measure))
	for i, a := range amp {
		p := real(a)*real(a) + imag(a)*imag(a)
		if p == 0 {
			continue
		}
		outcome := 0
		for bit, q := range c.Measure {
			if i&(1<<index[q]) != 0 {
				outcome |= 1 << bit
			}
		}
		probs[outcome] += p
	}
	return probs, nil
}

func apply(amp []complex128, g Gate, index map[int]int) error {
	switch g.Name {
	case GateH:
		t := 1 << index[g.Qubits[0]]
		s := complex(1/math.Sqrt2, 0)
		for i := range amp {
			if i&t == 0 {
				a, b := amp[i], amp[i|t]
				amp[i], amp[i|t] = s*(a+b), s*(a-b)
			}
		}
	case GateX:
		t := 1 << index[g.Qubits[0]]
		for i := range amp {
			if i&t == 0 {
				amp[i], amp[i|t] = amp[i|t], amp[i]
			}
		}
	case GateCZ:
		m := 1<<index[g.Qubits[0]] | 1<<index[g.Qubits[1]]
		for i := range amp {
			if i&m == m {
				amp[i] = -amp[i]
			}
		}
	case GateCX:
		c, t := 1<<index[g.Qubits[0]], 1<<index[g.Qubits[1]]
		for i := range amp {
			if i&c != 0 && i&t == 0 {
				amp[i], amp[i|t] = amp[i|t], amp[i]
			}
		}
	case GateSwap:
		a, b := 1<<index[g.Qubits[0]], 1<<index[g.Qubits[1]]
		for i := range amp {
			if i&a != 0 && i&b == 0 {
				j := i ^ a ^ b
				amp[i], amp[j] = amp[j], amp[i]
			}
		}
	default:
		return fmt.Errorf("unsupported gate %q", g.Name)
	}
	return nil
}

// Run samples shots outcomes of c and returns counts keyed by bitstring,
// classical bit 0 rightmost.
func (s *Simulator) Run(c *Circuit, shots int) (map[string]int, error) {
	if len(c.Measure) == 0 {
		return nil, fmt.Errorf("circuit has no measurements")
	}
	probs, err := Probabilities(c)
	if err != nil {
		return nil, err
	}
	fidelity := s.Noise.Fidelity(c)
	nbits := len(c.Measure)
	counts := make(map[string]int)
	for range shots {
		var outcome int
		if s.rng.Float64() < fidelity {
			outcome = s.pick(probs)
		} else {
			outcome = s.rng.IntN(len(probs))
		}
		for bit := range nbits {
			if s.rng.Float64() < s.Noise.ReadoutError {
				outcome ^= 1 << bit
			}
		}
		counts[bitstring(outcome, nbits)]++
	}
	return counts, nil
}

func (s *Simulator) pick(probs []float64) int {
	r := s.rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	// rounding left r above the final sum
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return 0
}

func bitstring(v, n int) string {
	var b strings.Builder
	for i := n - 1; i >= 0; i-- {
		if v&(1<<i) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
