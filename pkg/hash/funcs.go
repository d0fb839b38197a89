package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Func maps bytes to a position in the 64-bit ring space.
type Func func(data []byte) uint64

// XXHash is the default ring hash.
func XXHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Murmur3 hashes with 64-bit MurmurHash3.
func Murmur3(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// SHA256 uses the first eight bytes of a SHA-256 digest.
func SHA256(data []byte) uint64 {
	h := sha256.Sum256(data)
	return binary.BigEndian.Uint64(h[:8])
}

// FuncByName resolves a configured hash name. The empty name selects XXHash.
func FuncByName(name string) (Func, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "xxhash":
		return XXHash, nil
	case "murmur3":
		return Murmur3, nil
	case "sha256":
		return SHA256, nil
	default:
		return nil, fmt.Errorf("unknown hash function %q (want xxhash, murmur3 or sha256)", name)
	}
}
