package blocks

import (
	"strconv"
	"strings"
)

// WriteOptions gates the semantic-version-dependent choices a writer makes:
// whether to emit newer optional fields, which TreeNode/point schema
// version to target. Readers never consult WriteOptions — they accept
// whatever version a block or point declares.
type WriteOptions struct {
	// Version is the semantic version of the producing reMarkable software,
	// e.g. "3.3.2". The zero value behaves as "9999" (newest, all optional
	// fields enabled), matching the producer-agnostic default a library
	// caller expects when writing a fresh file.
	Version string
}

func (o WriteOptions) version() string {
	if o.Version == "" {
		return "9999"
	}
	return o.Version
}

func parseVersion(s string) [3]int {
	var out [3]int
	parts := strings.SplitN(s, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return out
		}
		out[i] = n
	}
	return out
}

func compareVersions(a, b [3]int) int {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// AtLeast reports whether the option's version is >= threshold.
func (o WriteOptions) AtLeast(threshold string) bool {
	return compareVersions(parseVersion(o.version()), parseVersion(threshold)) >= 0
}

// After reports whether the option's version is strictly > threshold.
func (o WriteOptions) After(threshold string) bool {
	return compareVersions(parseVersion(o.version()), parseVersion(threshold)) > 0
}
