// Package invite defines the single-use capabilities that grant a seat in a
// trade.
//
// An invite is minted by the issuer of one trade instance and bound to exactly
// one seat. Redeeming it consumes it: a second redemption fails and grants
// nothing. The issuer signs the digest of every invite so that whoever receives
// an invite can check its content and its origin before redeeming it.
package invite

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"go.dedis.ch/escrow/crypto"
	"go.dedis.ch/escrow/offer"
	"golang.org/x/xerrors"
)

// SeatRef is the reference of a seat inside its trade instance.
type SeatRef int

// Description is what an invite grants.
type Description struct {
	// Installation identifies the contract code that runs the trade.
	Installation string

	// InstanceID identifies the trade instance.
	InstanceID string

	// Role is the name of the seat in the trade.
	Role string

	// Terms are the asset slots of the trade.
	Terms offer.Terms

	// OfferToBeMade is the offer description the seat commits to. It is empty
	// for administrative seats.
	OfferToBeMade offer.Description
}

// Fingerprint writes a deterministic binary representation of the description.
func (d Description) Fingerprint(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s|%s|%s;", d.Installation, d.InstanceID, d.Role)
	if err != nil {
		return xerrors.Errorf("couldn't write identifiers: %v", err)
	}

	err = d.Terms.Fingerprint(w)
	if err != nil {
		return xerrors.Errorf("couldn't fingerprint terms: %v", err)
	}

	if d.OfferToBeMade.Len() == 0 {
		return nil
	}

	err = d.OfferToBeMade.Fingerprint(d.Terms.Strategies(), w)
	if err != nil {
		return xerrors.Errorf("couldn't fingerprint offer: %v", err)
	}

	return nil
}

// Invite is an immutable single-use capability.
type Invite struct {
	handle    []byte
	desc      Description
	algorithm crypto.HashAlgorithm
	signature crypto.Signature
}

// NewInvite returns an invite. Only the issuer that recorded the handle will
// accept to redeem it.
func NewInvite(handle []byte, desc Description, algo crypto.HashAlgorithm, sig crypto.Signature) Invite {
	copied := make([]byte, len(handle))
	copy(copied, handle)

	return Invite{
		handle:    copied,
		desc:      desc,
		algorithm: algo,
		signature: sig,
	}
}

// GetHandle returns a copy of the unique handle of the invite.
func (inv Invite) GetHandle() []byte {
	handle := make([]byte, len(inv.handle))
	copy(handle, inv.handle)

	return handle
}

// GetDescription returns what the invite grants.
func (inv Invite) GetDescription() Description {
	return inv.desc
}

// GetAlgorithm returns the digest algorithm of the signature.
func (inv Invite) GetAlgorithm() crypto.HashAlgorithm {
	return inv.algorithm
}

// GetSignature returns the signature of the issuer.
func (inv Invite) GetSignature() crypto.Signature {
	return inv.signature
}

// String implements fmt.Stringer.
func (inv Invite) String() string {
	return fmt.Sprintf("Invite[%s@%s]:%s", inv.desc.Role, inv.desc.InstanceID, shortHandle(inv.handle))
}

// Issuer mints and redeems the invites of one trade instance.
type Issuer interface {
	// Mint creates the only invite of the seat.
	Mint(role string, seat SeatRef, terms offer.Terms, toBeMade offer.Description) (Invite, error)

	// Redeem consumes the invite and returns the seat it is bound to. It
	// returns an AlreadyRedeemedError or a ForgedInviteError when the invite
	// cannot be redeemed.
	Redeem(inv Invite) (SeatRef, error)

	// GetPublicKey returns the key that verifies the signature of the invites.
	GetPublicKey() crypto.PublicKey
}

// AlreadyRedeemedError is returned when an invite is redeemed a second time.
type AlreadyRedeemedError struct {
	Handle []byte
}

// Error implements error.
func (e AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("invite %s already redeemed", shortHandle(e.Handle))
}

// ForgedInviteError is returned when an invite was not minted by the issuer.
type ForgedInviteError struct {
	Handle []byte
	Reason string
}

// Error implements error.
func (e ForgedInviteError) Error() string {
	return fmt.Sprintf("forged invite %s: %s", shortHandle(e.Handle), e.Reason)
}

// Digest returns the digest of the invite that the issuer signs.
func Digest(inv Invite) ([]byte, error) {
	return digest(inv.handle, inv.desc, inv.algorithm)
}

// MakeDigest returns the digest of an invite made of the elements.
func MakeDigest(handle []byte, desc Description, algo crypto.HashAlgorithm) ([]byte, error) {
	return digest(handle, desc, algo)
}

func digest(handle []byte, desc Description, algo crypto.HashAlgorithm) ([]byte, error) {
	h, err := crypto.NewHash(algo)
	if err != nil {
		return nil, err
	}

	_, err = h.Write(handle)
	if err != nil {
		return nil, xerrors.Errorf("couldn't write handle: %v", err)
	}

	err = desc.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint: %v", err)
	}

	return h.Sum(nil), nil
}

// Verify checks that the invite is signed by the owner of the public key. It
// returns a ForgedInviteError otherwise.
func Verify(inv Invite, pubkey crypto.PublicKey) error {
	if inv.signature == nil {
		return ForgedInviteError{Handle: inv.handle, Reason: "missing signature"}
	}

	digest, err := Digest(inv)
	if err != nil {
		return ForgedInviteError{Handle: inv.handle, Reason: err.Error()}
	}

	err = pubkey.Verify(digest, inv.signature)
	if err != nil {
		return ForgedInviteError{Handle: inv.handle, Reason: err.Error()}
	}

	return nil
}

// Check verifies that the description matches the installation, the terms and
// the role the receiver expects.
func Check(installation string, alleged Description, expected offer.Terms, role string) error {
	if alleged.Role != role {
		return xerrors.Errorf("expected role '%s' but got '%s'", role, alleged.Role)
	}

	if !alleged.Terms.Equal(expected) {
		return xerrors.New("terms do not match")
	}

	if alleged.Installation != installation {
		return xerrors.Errorf("expected installation '%s' but got '%s'",
			installation, alleged.Installation)
	}

	return nil
}

// CheckInviteAmount returns true if the description matches the installation,
// the terms and the role the receiver expects.
func CheckInviteAmount(installation string, alleged Description, expected offer.Terms, role string) bool {
	return Check(installation, alleged, expected, role) == nil
}

// CheckOffer returns true if the offer the invite commits to is equal to the
// expected one.
func CheckOffer(alleged Description, expected offer.Description) bool {
	return offer.Equal(alleged.Terms.Strategies(), alleged.OfferToBeMade, expected)
}

// SameHandle returns true if both invites have the same handle.
func SameHandle(a, b Invite) bool {
	return bytes.Equal(a.handle, b.handle)
}

func shortHandle(handle []byte) string {
	str := hex.EncodeToString(handle)
	if len(str) > 16 {
		return str[:16]
	}

	return str
}
