package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// HashAlgorithm is the identifier of the digest used to sign an invite. It is
// carried by the invite so that a receiver computes the same digest.
type HashAlgorithm int

const (
	// Sha256 is the SHA-2 digest of 256 bits.
	Sha256 HashAlgorithm = iota

	// Sha3_224 is the SHA-3 digest of 224 bits.
	Sha3_224
)

// String implements fmt.Stringer.
func (a HashAlgorithm) String() string {
	switch a {
	case Sha256:
		return "sha256"
	case Sha3_224:
		return "sha3-224"
	default:
		return "unknown"
	}
}

// NewHash returns a fresh hash of the algorithm, or an error when the
// algorithm is not supported.
func NewHash(a HashAlgorithm) (hash.Hash, error) {
	switch a {
	case Sha256:
		return sha256.New(), nil
	case Sha3_224:
		return sha3.New224(), nil
	default:
		return nil, xerrors.Errorf("unsupported hash algorithm %d", int(a))
	}
}
