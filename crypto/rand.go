package crypto

import (
	"crypto/rand"
	"io"
)

// CryptographicRandomGenerator reads from the secure random source of the
// operating system.
//
// - implements crypto.RandGenerator
type CryptographicRandomGenerator struct{}

// Read implements crypto.RandGenerator.
func (CryptographicRandomGenerator) Read(buffer []byte) (int, error) {
	return rand.Read(buffer)
}

// NewHandle draws a handle of the given size. A short read is an error so that
// a handle is never partially random.
func NewHandle(r RandGenerator, size int) ([]byte, error) {
	handle := make([]byte, size)

	_, err := io.ReadFull(r, handle)
	if err != nil {
		return nil, err
	}

	return handle, nil
}
