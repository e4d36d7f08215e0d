// Package signer obtains owner signatures for relay operations from a remote
// custody backend. Private keys never pass through it: only the operation
// digest goes out and only a signature comes back.
package signer

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/custody"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/identity"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/relay"
)

var ErrSignatureMismatch = errors.New("signature does not recover to the custodial address")

// Backend signs a message as an EIP-191 personal message with the custodial
// key named by binding.
type Backend interface {
	SignMessage(ctx context.Context, binding custody.SignerBinding, message []byte) ([]byte, error)
}

// SignedOperation pairs an unsigned operation with its owner signature.
type SignedOperation struct {
	Signature []byte
	Operation *relay.UnsignedOperation

	submitted atomic.Bool
}

// MarkSubmitted claims the single submission of op. It returns false if op
// was already claimed.
func (op *SignedOperation) MarkSubmitted() bool {
	return op.submitted.CompareAndSwap(false, true)
}

type Signer struct {
	backend Backend
	logger  *logrus.Entry
}

func New(backend Backend) *Signer {
	return &Signer{backend: backend, logger: log.Component("signer")}
}

// Sign requests a signature over op's digest from the key bound to id and
// checks it before returning. Any failure is ErrSigningFailed; the transfer
// has to start over.
func (s *Signer) Sign(ctx context.Context, id identity.WalletIdentity, op *relay.UnsignedOperation) (*SignedOperation, error) {
	if op == nil {
		return nil, errs.New(errs.ErrSigningFailed, "no operation to sign")
	}
	digest := op.Digest()
	s.logger.WithField("digest", hexutil.Encode(digest)).Debug("operation hash to sign")

	signature, err := s.backend.SignMessage(ctx, id.Binding(), digest)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSigningFailed, err, "remote signing")
	}
	if err := Verify(digest, signature, id.CustodialAddress); err != nil {
		return nil, errs.Wrap(errs.ErrSigningFailed, err, "")
	}
	return &SignedOperation{Signature: signature, Operation: op}, nil
}

// Verify checks that signature is an EIP-191 personal-message signature of
// message by owner. Both 0/1 and 27/28 recovery ids are accepted.
func Verify(message, signature []byte, owner common.Address) error {
	if len(signature) != crypto.SignatureLength {
		return errors.Errorf("signature is %d bytes, want %d", len(signature), crypto.SignatureLength)
	}
	sig := common.CopyBytes(signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return errors.Wrap(err, "recover signer")
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != owner {
		return errors.Wrapf(ErrSignatureMismatch, "recovered %s, want %s", recovered.Hex(), owner.Hex())
	}
	return nil
}
