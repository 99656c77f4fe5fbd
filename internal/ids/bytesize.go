package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a total ordering over byte counts with human-readable parsing
// and formatting, accepting both SI (MB, GB) and binary (MiB, GiB) units.
type ByteSize uint64

const (
	Byte ByteSize = 1
	KB            = Byte * 1000
	MB            = KB * 1000
	GB            = MB * 1000
	TB            = GB * 1000
	KiB           = Byte * 1024
	MiB           = KiB * 1024
	GiB           = MiB * 1024
	TiB           = GiB * 1024
)

var byteUnits = []struct {
	suffix string
	size   ByteSize
}{
	{"TiB", TiB}, {"GiB", GiB}, {"MiB", MiB}, {"KiB", KiB},
	{"TB", TB}, {"GB", GB}, {"MB", MB}, {"KB", KB},
	{"B", Byte},
}

// ParseByteSize parses "0", "unlimited", "none", a bare integer (bytes), or a
// number with an SI/binary suffix such as "100MiB" or "2GB".
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if lower == "0" || lower == "unlimited" || lower == "none" {
		return 0, nil
	}
	for _, u := range byteUnits {
		if strings.HasSuffix(trimmed, u.suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(trimmed, u.suffix))
			val, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("ids: invalid byte size %q: %w", s, err)
			}
			return ByteSize(val * float64(u.size)), nil
		}
	}
	val, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ids: invalid byte size %q: %w", s, err)
	}
	return ByteSize(val), nil
}

// String renders the size using the largest binary unit that divides evenly,
// falling back to a plain byte count.
func (b ByteSize) String() string {
	if b == 0 {
		return "unlimited"
	}
	switch {
	case b%TiB == 0:
		return fmt.Sprintf("%dTiB", b/TiB)
	case b%GiB == 0:
		return fmt.Sprintf("%dGiB", b/GiB)
	case b%MiB == 0:
		return fmt.Sprintf("%dMiB", b/MiB)
	case b%KiB == 0:
		return fmt.Sprintf("%dKiB", b/KiB)
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// IsUnlimited reports whether the size represents "no limit".
func (b ByteSize) IsUnlimited() bool { return b == 0 }
