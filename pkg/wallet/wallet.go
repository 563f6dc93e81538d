package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrRejected means the signer declined to sign.
	ErrRejected = errors.New("signing rejected")
	// ErrNotConnected means no key is available.
	ErrNotConnected = errors.New("wallet not connected")
)

// Wallet signs transactions on behalf of the trader.
type Wallet interface {
	// PublicKey returns nil when no wallet is connected.
	PublicKey() *solana.PublicKey
	Connected() bool
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// ApproveFunc is asked before every signature. Returning false rejects it.
type ApproveFunc func(ctx context.Context, tx *solana.Transaction) bool

// Keypair is a Wallet backed by a local private key.
type Keypair struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	approve    ApproveFunc
}

var _ Wallet = (*Keypair)(nil)

// Option configures a Keypair.
type Option func(*Keypair)

// WithApproval installs a hook consulted before signing.
func WithApproval(fn ApproveFunc) Option {
	return func(k *Keypair) {
		k.approve = fn
	}
}

// NewKeypair wraps an existing private key.
func NewKeypair(key solana.PrivateKey, opts ...Option) (*Keypair, error) {
	if !key.IsValid() {
		return nil, fmt.Errorf("invalid private key")
	}
	k := &Keypair{
		privateKey: key,
		publicKey:  key.PublicKey(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Load builds a Keypair from a base58 private key, or from a solana-keygen
// JSON file when no key is given.
func Load(privateKey, keypairPath string, opts ...Option) (*Keypair, error) {
	switch {
	case strings.TrimSpace(privateKey) != "":
		// Parse private key (Base58 encoded)
		key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKey))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		return NewKeypair(key, opts...)
	case keypairPath != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file: %w", err)
		}
		return NewKeypair(key, opts...)
	default:
		return nil, fmt.Errorf("%w: set private_key or keypair_path", ErrNotConnected)
	}
}

func (k *Keypair) PublicKey() *solana.PublicKey {
	if k == nil {
		return nil
	}
	pk := k.publicKey
	return &pk
}

func (k *Keypair) Connected() bool {
	return k != nil && !k.publicKey.IsZero()
}

// SignTransaction adds the keypair's signature to tx.
func (k *Keypair) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if !k.Connected() {
		return nil, ErrNotConnected
	}
	if k.approve != nil && !k.approve(ctx, tx) {
		return nil, ErrRejected
	}

	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(k.publicKey) {
			return &k.privateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return tx, nil
}
