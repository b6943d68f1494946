// Package registry implements an invite issuer that keeps the handles of the
// live invites in memory.
//
// A handle is drawn from a cryptographically secure source so that it cannot
// be guessed. Redemption checks and consumes the handle under a single lock.
package registry

import (
	"bytes"
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"
	"go.dedis.ch/escrow"
	"go.dedis.ch/escrow/crypto"
	"go.dedis.ch/escrow/crypto/schnorr"
	"go.dedis.ch/escrow/invite"
	"go.dedis.ch/escrow/offer"
	"golang.org/x/xerrors"
)

// HandleSize is the size in bytes of an invite handle.
const HandleSize = 32

type entry struct {
	seat   invite.SeatRef
	digest []byte
}

// Registry is an invite issuer for one trade instance.
//
// - implements invite.Issuer
type Registry struct {
	sync.Mutex

	installation string
	instanceID   string
	signer       crypto.Signer
	algorithm    crypto.HashAlgorithm
	rand         crypto.RandGenerator
	logger       zerolog.Logger

	live     map[string]entry
	redeemed map[string]struct{}
}

// Option is the type of options to create a registry.
type Option func(*Registry)

// WithSigner sets the signer of the invites. A random signer is used by
// default.
func WithSigner(signer crypto.Signer) Option {
	return func(r *Registry) {
		r.signer = signer
	}
}

// WithHashAlgorithm sets the digest algorithm of the signatures.
func WithHashAlgorithm(algo crypto.HashAlgorithm) Option {
	return func(r *Registry) {
		r.algorithm = algo
	}
}

// WithRandom sets the source of the handles.
func WithRandom(rand crypto.RandGenerator) Option {
	return func(r *Registry) {
		r.rand = rand
	}
}

// WithLogger sets the logger of the registry.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new registry for the trade instance.
func NewRegistry(installation, instanceID string, opts ...Option) *Registry {
	r := &Registry{
		installation: installation,
		instanceID:   instanceID,
		algorithm:    crypto.Sha256,
		rand:         crypto.CryptographicRandomGenerator{},
		logger:       escrow.Logger.With().Str("instance", instanceID).Logger(),
		live:         make(map[string]entry),
		redeemed:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.signer == nil {
		r.signer = schnorr.NewSigner()
	}

	return r
}

// GetPublicKey implements invite.Issuer.
func (r *Registry) GetPublicKey() crypto.PublicKey {
	return r.signer.GetPublicKey()
}

// Mint implements invite.Issuer. It draws a new handle, signs the invite and
// records it as live.
func (r *Registry) Mint(role string, seat invite.SeatRef, terms offer.Terms,
	toBeMade offer.Description) (invite.Invite, error) {

	handle, err := crypto.NewHandle(r.rand, HandleSize)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't draw handle: %v", err)
	}

	desc := invite.Description{
		Installation:  r.installation,
		InstanceID:    r.instanceID,
		Role:          role,
		Terms:         terms,
		OfferToBeMade: toBeMade,
	}

	digest, err := invite.MakeDigest(handle, desc, r.algorithm)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't compute digest: %v", err)
	}

	sig, err := r.signer.Sign(digest)
	if err != nil {
		return invite.Invite{}, xerrors.Errorf("couldn't sign invite: %v", err)
	}

	key := hex.EncodeToString(handle)

	r.Lock()
	defer r.Unlock()

	_, found := r.live[key]
	if found {
		return invite.Invite{}, xerrors.Errorf("handle %s is already live", key)
	}

	r.live[key] = entry{seat: seat, digest: digest}

	inv := invite.NewInvite(handle, desc, r.algorithm, sig)

	r.logger.Debug().Str("role", role).Int("seat", int(seat)).Stringer("invite", inv).Msg("invite minted")

	return inv, nil
}

// Redeem implements invite.Issuer. The check and the consumption of the handle
// happen under the same lock so that concurrent redemptions of one invite
// succeed at most once.
func (r *Registry) Redeem(inv invite.Invite) (invite.SeatRef, error) {
	handle := inv.GetHandle()
	key := hex.EncodeToString(handle)

	r.Lock()
	defer r.Unlock()

	_, done := r.redeemed[key]
	if done {
		return 0, invite.AlreadyRedeemedError{Handle: handle}
	}

	e, found := r.live[key]
	if !found {
		return 0, invite.ForgedInviteError{Handle: handle, Reason: "unknown handle"}
	}

	digest, err := invite.Digest(inv)
	if err != nil || !bytes.Equal(digest, e.digest) {
		return 0, invite.ForgedInviteError{Handle: handle, Reason: "content does not match"}
	}

	err = invite.Verify(inv, r.signer.GetPublicKey())
	if err != nil {
		return 0, err
	}

	delete(r.live, key)
	r.redeemed[key] = struct{}{}

	r.logger.Debug().Str("role", inv.GetDescription().Role).Stringer("invite", inv).Msg("invite redeemed")

	return e.seat, nil
}

// Outstanding returns the number of invites minted but not yet redeemed.
func (r *Registry) Outstanding() int {
	r.Lock()
	defer r.Unlock()

	return len(r.live)
}
