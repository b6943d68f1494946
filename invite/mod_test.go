package invite

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/escrow/crypto"
	"go.dedis.ch/escrow/crypto/schnorr"
	"go.dedis.ch/escrow/internal/testing/fake"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity/nat"
	"go.dedis.ch/escrow/quantity/set"
	"golang.org/x/xerrors"
)

func TestDescription_Fingerprint(t *testing.T) {
	desc := makeDescription(t)

	buffer := new(bytes.Buffer)
	err := desc.Fingerprint(buffer)
	require.NoError(t, err)
	require.Equal(t, "swap|instance|seller;a|nat;b|set;"+
		"offerExactly|a|0000000000000003;wantExactly|b|5b2278225d;", buffer.String())

	desc.OfferToBeMade = offer.NewDescription()
	buffer.Reset()
	err = desc.Fingerprint(buffer)
	require.NoError(t, err)
	require.Equal(t, "swap|instance|seller;a|nat;b|set;", buffer.String())

	err = desc.Fingerprint(fake.NewBadWriter())
	require.EqualError(t, err, fake.Err("couldn't write identifiers"))
}

func TestInvite_Getters(t *testing.T) {
	handle := []byte{0xaa, 0xbb}
	inv := NewInvite(handle, makeDescription(t), crypto.Sha3_224, nil)

	handle[0] = 0
	require.Equal(t, []byte{0xaa, 0xbb}, inv.GetHandle())

	inv.GetHandle()[1] = 0
	require.Equal(t, []byte{0xaa, 0xbb}, inv.GetHandle())

	require.Equal(t, "seller", inv.GetDescription().Role)
	require.Equal(t, crypto.Sha3_224, inv.GetAlgorithm())
	require.Nil(t, inv.GetSignature())
	require.Equal(t, "Invite[seller@instance]:aabb", inv.String())

	long := NewInvite(bytes.Repeat([]byte{0xff}, 32), Description{Role: "r", InstanceID: "i"}, crypto.Sha256, nil)
	require.Equal(t, "Invite[r@i]:ffffffffffffffff", long.String())

	require.True(t, SameHandle(inv, NewInvite([]byte{0xaa, 0xbb}, Description{}, crypto.Sha256, nil)))
	require.False(t, SameHandle(inv, long))
}

func TestErrors(t *testing.T) {
	err := AlreadyRedeemedError{Handle: []byte{1, 2}}
	require.EqualError(t, err, "invite 0102 already redeemed")

	err2 := ForgedInviteError{Handle: []byte{3}, Reason: "oops"}
	require.EqualError(t, err2, "forged invite 03: oops")

	wrapped := xerrors.Errorf("couldn't redeem: %w", err)

	var redeemed AlreadyRedeemedError
	require.True(t, xerrors.As(wrapped, &redeemed))
}

func TestDigest(t *testing.T) {
	desc := makeDescription(t)

	d1, err := MakeDigest([]byte{1}, desc, crypto.Sha256)
	require.NoError(t, err)
	require.Len(t, d1, 32)

	d2, err := MakeDigest([]byte{1}, desc, crypto.Sha3_224)
	require.NoError(t, err)
	require.Len(t, d2, 28)

	d3, err := MakeDigest([]byte{2}, desc, crypto.Sha256)
	require.NoError(t, err)
	require.NotEqual(t, d1, d3)

	d4, err := Digest(NewInvite([]byte{1}, desc, crypto.Sha256, nil))
	require.NoError(t, err)
	require.Equal(t, d1, d4)

	_, err = MakeDigest([]byte{1}, desc, crypto.HashAlgorithm(99))
	require.EqualError(t, err, "unsupported hash algorithm 99")
}

func TestVerify(t *testing.T) {
	signer := schnorr.NewSigner()
	desc := makeDescription(t)

	digest, err := MakeDigest([]byte{1}, desc, crypto.Sha256)
	require.NoError(t, err)

	sig, err := signer.Sign(digest)
	require.NoError(t, err)

	inv := NewInvite([]byte{1}, desc, crypto.Sha256, sig)
	require.NoError(t, Verify(inv, signer.GetPublicKey()))

	err = Verify(NewInvite([]byte{1}, desc, crypto.Sha256, nil), signer.GetPublicKey())
	require.EqualError(t, err, "forged invite 01: missing signature")

	err = Verify(NewInvite([]byte{1}, desc, crypto.HashAlgorithm(99), sig), signer.GetPublicKey())
	require.EqualError(t, err, "forged invite 01: unsupported hash algorithm 99")

	err = Verify(inv, schnorr.NewSigner().GetPublicKey())
	require.Error(t, err)

	var forged ForgedInviteError
	require.True(t, xerrors.As(err, &forged))
	require.Regexp(t, "^schnorr verify failed: ", forged.Reason)

	desc.Role = "buyer"
	err = Verify(NewInvite([]byte{1}, desc, crypto.Sha256, sig), signer.GetPublicKey())
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	desc := makeDescription(t)

	require.NoError(t, Check("swap", desc, desc.Terms, "seller"))
	require.True(t, CheckInviteAmount("swap", desc, desc.Terms, "seller"))

	err := Check("swap", desc, desc.Terms, "buyer")
	require.EqualError(t, err, "expected role 'buyer' but got 'seller'")
	require.False(t, CheckInviteAmount("swap", desc, desc.Terms, "buyer"))

	other := offer.NewTerms(desc.Terms.GetSlot(1), desc.Terms.GetSlot(0))
	err = Check("swap", desc, other, "seller")
	require.EqualError(t, err, "terms do not match")

	err = Check("agency", desc, desc.Terms, "seller")
	require.EqualError(t, err, "expected installation 'agency' but got 'swap'")
}

func TestCheckOffer(t *testing.T) {
	desc := makeDescription(t)

	require.True(t, CheckOffer(desc, desc.OfferToBeMade))

	three, err := offer.MakeAmount(nat.NewStrategy(), offer.Label{Issuer: "a"}, uint64(3))
	require.NoError(t, err)

	require.False(t, CheckOffer(desc, offer.NewDescription(offer.NewRule(offer.OfferExactly, three))))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDescription(t *testing.T) Description {
	a := offer.Slot{Label: offer.Label{Issuer: "a"}, Strategy: nat.NewStrategy()}
	b := offer.Slot{Label: offer.Label{Issuer: "b"}, Strategy: set.NewStrategy()}

	three, err := offer.MakeAmount(a.Strategy, a.Label, uint64(3))
	require.NoError(t, err)

	pixel, err := offer.MakeAmount(b.Strategy, b.Label, set.New("x"))
	require.NoError(t, err)

	return Description{
		Installation: "swap",
		InstanceID:   "instance",
		Role:         "seller",
		Terms:        offer.NewTerms(a, b),
		OfferToBeMade: offer.NewDescription(
			offer.NewRule(offer.OfferExactly, three),
			offer.NewRule(offer.WantExactly, pixel),
		),
	}
}
