package ffmpeg

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafePath indicates a path rejected by validation.
var ErrUnsafePath = errors.New("unsafe path")

// shellMetachars are rejected anywhere in a path passed to the transcoder.
const shellMetachars = ";|&$`<>\n\r"

// ValidatePath rejects paths that could escape the intended file or smuggle
// arguments into the transcoder invocation.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: null byte in %q", ErrUnsafePath, path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("%w: parent traversal in %q", ErrUnsafePath, path)
		}
	}
	if strings.ContainsAny(path, shellMetachars) {
		return fmt.Errorf("%w: shell metacharacter in %q", ErrUnsafePath, path)
	}
	if strings.HasPrefix(filepath.Base(path), "-") {
		return fmt.Errorf("%w: leading dash basename in %q", ErrUnsafePath, path)
	}
	return nil
}

// FilterSafe reports whether a path can be embedded in a filter argument
// without escaping surprises: printable ASCII with no filter delimiters.
func FilterSafe(path string) bool {
	for _, r := range path {
		if r > 126 || r < 32 {
			return false
		}
		switch r {
		case '\'', ':', ',', ';', '[', ']', '=':
			return false
		}
	}
	return true
}

// EscapeFilterPath escapes a path for use inside an ffmpeg filter argument.
// Filter syntax treats ':' and '\' specially and quotes with '\''.
func EscapeFilterPath(path string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
	)
	return r.Replace(path)
}
