package quantum

import "fmt"

const (
	GateH    = "h"
	GateX    = "x"
	GateCX   = "cx"
	GateCZ   = "cz"
	GateSwap = "swap"
)

type Gate struct {
	Name   string `json:"name"`
	Qubits []int  `json:"qubits"`
}

// Circuit is a gate list over qubit indices followed by a final measurement
// of Measure[i] into classical bit i. Before transpilation indices are
// logical; afterwards they are physical device qubits.
type Circuit struct {
	NumQubits int    `json:"num_qubits"`
	Gates     []Gate `json:"gates"`
	Measure   []int  `json:"measure"`
	Device    string `json:"device,omitempty"`
	Layout    []int  `json:"layout,omitempty"`
}

// Bell returns the two-qubit circuit preparing (|00> + |11>)/sqrt(2).
func Bell() *Circuit {
	return &Circuit{
		NumQubits: 2,
		Gates: []Gate{
			{Name: GateH, Qubits: []int{0}},
			{Name: GateCX, Qubits: []int{0, 1}},
		},
		Measure: []int{0, 1},
	}
}

// Qubits returns the distinct qubits touched by gates or measurement, in
// first-use order.
func (c *Circuit) Qubits() []int {
	seen := make(map[int]bool)
	var out []int
	add := func(q int) {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	for _, g := range c.Gates {
		for _, q := range g.Qubits {
			add(q)
		}
	}
	for _, q := range c.Measure {
		add(q)
	}
	return out
}

// TwoQubitGates counts entangling operations, with a swap costing three.
func (c *Circuit) TwoQubitGates() int {
	n := 0
	for _, g := range c.Gates {
		switch g.Name {
		case GateCX, GateCZ:
			n++
		case GateSwap:
			n += 3
		}
	}
	return n
}

func (c *Circuit) SingleQubitGates() int {
	n := 0
	for _, g := range c.Gates {
		if len(g.Qubits) == 1 {
			n++
		}
	}
	return n
}

// Transpile maps a logical circuit onto the device using layout as the
// initial logical-to-physical assignment. Non-adjacent two-qubit gates are
// routed with swaps and CX is rewritten as H-CZ-H on the target.
func Transpile(c *Circuit, d Device, layout []int) (*Circuit, error) {
	if len(layout) != c.NumQubits {
		return nil, fmt.Errorf("layout has %d qubits, circuit needs %d", len(layout), c.NumQubits)
	}
	used := make(map[int]bool, len(layout))
	for _, q := range layout {
		if !d.Valid(q) {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidQubit, q, d.NumQubits())
		}
		if used[q] {
			return nil, fmt.Errorf("%w: %d used twice", ErrSameQubit, q)
		}
		used[q] = true
	}

	phys := make([]int, len(layout))
	copy(phys, layout)

	out := &Circuit{
		NumQubits: d.NumQubits(),
		Device:    d.Name(),
		Layout:    append([]int(nil), layout...),
	}
	for _, g := range c.Gates {
		switch len(g.Qubits) {
		case 1:
			out.Gates = append(out.Gates, Gate{Name: g.Name, Qubits: []int{phys[g.Qubits[0]]}})
		case 2:
			ctl, tgt := g.Qubits[0], g.Qubits[1]
			if err := route(out, d, phys, ctl, tgt); err != nil {
				return nil, err
			}
			a, b := phys[ctl], phys[tgt]
			switch g.Name {
			case GateCX:
				out.Gates = append(out.Gates,
					Gate{Name: GateH, Qubits: []int{b}},
					Gate{Name: GateCZ, Qubits: []int{a, b}},
					Gate{Name: GateH, Qubits: []int{b}},
				)
			default:
				out.Gates = append(out.Gates, Gate{Name: g.Name, Qubits: []int{a, b}})
			}
		default:
			return nil, fmt.Errorf("unsupported gate %q on %d qubits", g.Name, len(g.Qubits))
		}
	}
	for _, l := range c.Measure {
		out.Measure = append(out.Measure, phys[l])
	}
	return out, nil
}

// route swaps the control towards the target until they are adjacent,
// updating the logical-to-physical mapping in phys.
func route(out *Circuit, d Device, phys []int, ctl, tgt int) error {
	if d.Adjacent(phys[ctl], phys[tgt]) {
		return nil
	}
	path, err := d.ShortestPath(phys[ctl], phys[tgt])
	if err != nil {
		return err
	}
	// path[0] is the control, path[len-1] the target; walk the control to
	// path[len-2].
	for i := 0; i < len(path)-2; i++ {
		from, to := path[i], path[i+1]
		out.Gates = append(out.Gates, Gate{Name: GateSwap, Qubits: []int{from, to}})
		for l, p := range phys {
			switch p {
			case from:
				phys[l] = to
			case to:
				phys[l] = from
			}
		}
	}
	return nil
}
