package store

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is the BLAKE3 digest of a revision's wikitext.
type Hash [32]byte

// contentDomainKey keys the content hash so it cannot collide with hashes
// taken for other purposes over the same bytes.
var contentDomainKey = [32]byte{
	'w', 'i', 'k', 'i', '2', 'h', 't', 'm', 'l', '.', 'c', 'o', 'n', 't', 'e', 'n',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashContent returns the content hash of data.
func HashContent(data []byte) Hash {
	h, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		panic("store: blake3 keyed hasher: " + err.Error())
	}
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses the hex form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("store: parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("store: parse hash: got %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

func hashFromBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}
