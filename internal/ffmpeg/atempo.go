package ffmpeg

import (
	"fmt"
	"strings"
)

// Bounds accepted by a single atempo filter stage.
const (
	atempoMin = 0.5
	atempoMax = 100.0
)

// AtempoChain factorises a tempo adjustment into stages that each lie within
// [0.5, 100]. The product of the returned stages equals factor.
func AtempoChain(factor float64) ([]float64, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("atempo factor must be positive, got %g", factor)
	}

	var stages []float64
	remaining := factor
	for remaining > atempoMax {
		stages = append(stages, atempoMax)
		remaining /= atempoMax
	}
	for remaining < atempoMin {
		stages = append(stages, atempoMin)
		remaining /= atempoMin
	}
	stages = append(stages, remaining)
	return stages, nil
}

// AtempoFilter renders the factorised chain as an audio filter expression,
// e.g. "atempo=100.000000,atempo=1.200000".
func AtempoFilter(factor float64) (string, error) {
	stages, err := AtempoChain(factor)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = fmt.Sprintf("atempo=%.6f", s)
	}
	return strings.Join(parts, ","), nil
}
