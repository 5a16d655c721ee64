package quantum

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQubit = errors.New("qubit index out of range")
	ErrSameQubit    = errors.New("qubits must be distinct")
	ErrNoPath       = errors.New("no coupling path between qubits")
)

// Device is a square-lattice coupling map. Qubit r*Cols+c couples to its
// horizontal and vertical neighbours.
type Device struct {
	Rows int
	Cols int
}

func NewDevice(rows, cols int) Device {
	return Device{Rows: rows, Cols: cols}
}

func (d Device) Name() string {
	return fmt.Sprintf("grid-%dx%d", d.Rows, d.Cols)
}

func (d Device) NumQubits() int {
	return d.Rows * d.Cols
}

func (d Device) Valid(q int) bool {
	return q >= 0 && q < d.NumQubits()
}

func (d Device) Neighbors(q int) []int {
	r, c := q/d.Cols, q%d.Cols
	out := make([]int, 0, 4)
	if r > 0 {
		out = append(out, q-d.Cols)
	}
	if r < d.Rows-1 {
		out = append(out, q+d.Cols)
	}
	if c > 0 {
		out = append(out, q-1)
	}
	if c < d.Cols-1 {
		out = append(out, q+1)
	}
	return out
}

func (d Device) Adjacent(a, b int) bool {
	for _, n := range d.Neighbors(a) {
		if n == b {
			return true
		}
	}
	return false
}

// ShortestPath returns the qubits from a to b inclusive along a shortest
// coupling path.
func (d Device) ShortestPath(a, b int) ([]int, error) {
	if !d.Valid(a) || !d.Valid(b) {
		return nil, ErrInvalidQubit
	}
	prev := make([]int, d.NumQubits())
	for i := range prev {
		prev[i] = -1
	}
	prev[a] = a
	queue := []int{a}
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		if q == b {
			break
		}
		for _, n := range d.Neighbors(q) {
			if prev[n] == -1 {
				prev[n] = q
				queue = append(queue, n)
			}
		}
	}
	if prev[b] == -1 {
		return nil, ErrNoPath
	}
	path := []int{b}
	for q := b; q != a; q = prev[q] {
		path = append(path, prev[q])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
