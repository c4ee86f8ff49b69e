package cli

import (
	"fmt"
	"strconv"
)

// sizeSuffixes are the decimal (1000-based) scale suffixes, smallest first.
//
//nolint:gochecknoglobals // Config constant
var sizeSuffixes = [...]string{"", "K", "M", "G", "T"}

// FormatSize renders a byte count as a compact human-readable string using
// decimal scaling: the smallest unit whose scaled integer value is at most
// 1000, with truncating division. It fails when the count exceeds the
// largest scale.
func FormatSize(bytes int64) (string, error) {
	value := bytes

	for _, suffix := range sizeSuffixes {
		if value <= 1000 {
			return strconv.FormatInt(value, 10) + suffix, nil
		}

		value /= 1000
	}

	return "", fmt.Errorf("size %d bytes exceeds the %s scale", bytes, sizeSuffixes[len(sizeSuffixes)-1])
}
