package cache

import "golang.org/x/crypto/blake2b"

// Blake2bChecksummed adapts a Class to ChecksumVerifier using a BLAKE2b
// digest of the raw on-disk image. Classes that don't need per-load
// verification simply don't implement ChecksumVerifier at all; this
// type exists for the ones that do, sparing each of them from
// reimplementing the same digest-and-compare logic.
type Blake2bChecksummed struct {
	Class
	// Digest returns the expected checksum for userData, e.g. one
	// recorded in a parent entry's image alongside the child's address.
	Digest func(userData interface{}) ([]byte, bool)
}

func (b Blake2bChecksummed) VerifyChecksum(image []byte, userData interface{}) bool {
	want, ok := b.Digest(userData)
	if !ok {
		return true // class declares no checksum for this load
	}
	got := blake2b.Sum256(image)
	if len(want) != len(got) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
