package registry

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/escrow/crypto"
	"go.dedis.ch/escrow/crypto/schnorr"
	"go.dedis.ch/escrow/internal/testing/fake"
	"go.dedis.ch/escrow/invite"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/quantity/nat"
	"golang.org/x/xerrors"
)

func TestRegistry_Mint(t *testing.T) {
	reg := NewRegistry("swap", "instance")

	inv, err := reg.Mint("buyer", 3, makeTerms(), offer.NewDescription())
	require.NoError(t, err)
	require.Len(t, inv.GetHandle(), HandleSize)
	require.Equal(t, "buyer", inv.GetDescription().Role)
	require.Equal(t, "swap", inv.GetDescription().Installation)
	require.Equal(t, "instance", inv.GetDescription().InstanceID)
	require.Equal(t, crypto.Sha256, inv.GetAlgorithm())
	require.Equal(t, 1, reg.Outstanding())

	require.NoError(t, invite.Verify(inv, reg.GetPublicKey()))

	other, err := reg.Mint("buyer", 3, makeTerms(), offer.NewDescription())
	require.NoError(t, err)
	require.False(t, invite.SameHandle(inv, other))
}

func TestRegistry_MintFailures(t *testing.T) {
	reg := NewRegistry("swap", "instance", WithRandom(badReader{}))

	_, err := reg.Mint("buyer", 0, makeTerms(), offer.NewDescription())
	require.EqualError(t, err, fake.Err("couldn't draw handle"))

	reg = NewRegistry("swap", "instance", WithSigner(badSigner{}))

	_, err = reg.Mint("buyer", 0, makeTerms(), offer.NewDescription())
	require.EqualError(t, err, fake.Err("couldn't sign invite"))

	reg = NewRegistry("swap", "instance", WithHashAlgorithm(crypto.HashAlgorithm(42)))

	_, err = reg.Mint("buyer", 0, makeTerms(), offer.NewDescription())
	require.EqualError(t, err, "couldn't compute digest: unsupported hash algorithm 42")

	reg = NewRegistry("swap", "instance", WithRandom(zeroReader{}))

	_, err = reg.Mint("buyer", 0, makeTerms(), offer.NewDescription())
	require.NoError(t, err)

	_, err = reg.Mint("buyer", 1, makeTerms(), offer.NewDescription())
	require.EqualError(t, err, "handle "+
		"0000000000000000000000000000000000000000000000000000000000000000 is already live")
}

func TestRegistry_Redeem(t *testing.T) {
	logger, check := fake.CheckLog("invite redeemed")

	reg := NewRegistry("swap", "instance",
		WithHashAlgorithm(crypto.Sha3_224), WithLogger(logger.Level(zerolog.DebugLevel)))

	inv, err := reg.Mint("seller", 7, makeTerms(), offer.NewDescription())
	require.NoError(t, err)

	seat, err := reg.Redeem(inv)
	require.NoError(t, err)
	require.Equal(t, invite.SeatRef(7), seat)
	require.Equal(t, 0, reg.Outstanding())

	check(t)

	_, err = reg.Redeem(inv)
	require.Error(t, err)

	var redeemed invite.AlreadyRedeemedError
	require.True(t, xerrors.As(err, &redeemed))
	require.Equal(t, inv.GetHandle(), redeemed.Handle)
}

func TestRegistry_RedeemForged(t *testing.T) {
	reg := NewRegistry("swap", "instance")

	inv, err := reg.Mint("seller", 1, makeTerms(), offer.NewDescription())
	require.NoError(t, err)

	var forged invite.ForgedInviteError

	// Unknown handle.
	fakeInv := invite.NewInvite([]byte{1, 2, 3}, inv.GetDescription(), crypto.Sha256, inv.GetSignature())

	_, err = reg.Redeem(fakeInv)
	require.EqualError(t, err, "forged invite 010203: unknown handle")
	require.True(t, xerrors.As(err, &forged))

	// Same handle but the role has been changed.
	desc := inv.GetDescription()
	desc.Role = "buyer"
	tampered := invite.NewInvite(inv.GetHandle(), desc, crypto.Sha256, inv.GetSignature())

	_, err = reg.Redeem(tampered)
	require.True(t, xerrors.As(err, &forged))
	require.Equal(t, "content does not match", forged.Reason)

	// Same content but a signature from somebody else.
	other := schnorr.NewSigner()
	digest, err := invite.Digest(inv)
	require.NoError(t, err)
	sig, err := other.Sign(digest)
	require.NoError(t, err)

	resigned := invite.NewInvite(inv.GetHandle(), inv.GetDescription(), crypto.Sha256, sig)

	_, err = reg.Redeem(resigned)
	require.True(t, xerrors.As(err, &forged))
	require.Regexp(t, "^schnorr verify failed", forged.Reason)

	// An invite of another instance.
	reg2 := NewRegistry("swap", "instance")
	_, err = reg2.Redeem(inv)
	require.True(t, xerrors.As(err, &forged))

	// The genuine invite is still redeemable.
	_, err = reg.Redeem(inv)
	require.NoError(t, err)
}

func TestRegistry_ConcurrentRedeem(t *testing.T) {
	reg := NewRegistry("swap", "instance")

	inv, err := reg.Mint("seller", 1, makeTerms(), offer.NewDescription())
	require.NoError(t, err)

	n := 20
	errs := make(chan error, n)
	wg := sync.WaitGroup{}

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := reg.Redeem(inv)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else {
			require.IsType(t, invite.AlreadyRedeemedError{}, err)
		}
	}

	require.Equal(t, 1, success)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeTerms() offer.Terms {
	return offer.NewTerms(
		offer.Slot{Label: offer.Label{Issuer: "a"}, Strategy: nat.NewStrategy()},
		offer.Slot{Label: offer.Label{Issuer: "b"}, Strategy: nat.NewStrategy()},
	)
}

type badReader struct{}

func (badReader) Read([]byte) (int, error) {
	return 0, fake.GetError()
}

type zeroReader struct{}

func (zeroReader) Read(buffer []byte) (int, error) {
	for i := range buffer {
		buffer[i] = 0
	}

	return len(buffer), nil
}

type badSigner struct {
	crypto.Signer
}

func (badSigner) Sign([]byte) (crypto.Signature, error) {
	return nil, fake.GetError()
}
