// Package util holds small helpers shared across the service.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindBinary resolves an external tool to a runnable path. An environment
// override wins, then a copy in the working directory, then PATH.
func FindBinary(name, envVar string) (string, error) {
	candidates := make([]string, 0, 2)
	if envVar != "" {
		if override := os.Getenv(envVar); override != "" {
			candidates = append(candidates, override)
		}
	}
	candidates = append(candidates, filepath.Join(".", name))

	for _, candidate := range candidates {
		if runnable(candidate) {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("binary %s not found", name)
}

func runnable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}
