// Package channel names the ways two channel planes are merged.
package channel

import (
	"fmt"
	"strings"
)

// CombineOp selects how two channels are merged into one plane.
type CombineOp int

const (
	// Add sums the channels pixel by pixel.
	Add CombineOp = iota
	// Multiply takes the pixel-wise product of the channels.
	Multiply
)

// ParseCombineOp resolves "add" or "multiply".
func ParseCombineOp(name string) (CombineOp, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "add", "":
		return Add, nil
	case "multiply":
		return Multiply, nil
	}
	return 0, fmt.Errorf("unknown channel combination %q", name)
}

func (op CombineOp) String() string {
	if op == Multiply {
		return "multiply"
	}
	return "add"
}
