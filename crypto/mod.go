// Package crypto defines the cryptographic primitives used to make invites
// unforgeable: digests, signatures and random handles.
package crypto

import (
	"encoding"
	"io"
)

// RandGenerator is the interface of a random generator.
type RandGenerator interface {
	io.Reader
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler

	// Verify returns nil if the signature matches the message for this public
	// key.
	Verify(msg []byte, sig Signature) error

	// Equal returns true if the other public key is the same.
	Equal(other interface{}) bool
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler

	// Equal returns true if the other signature is the same.
	Equal(other Signature) bool
}

// Signer provides the primitives to sign messages.
type Signer interface {
	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// Sign returns the signature of the message.
	Sign(msg []byte) (Signature, error)
}
