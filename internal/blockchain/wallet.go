package blockchain

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Wallet holds the keypair for signing transactions
type Wallet struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// NewWallet creates a wallet from a private key supplied as either a
// base58-encoded string or a JSON byte-array string (e.g. "[12,34,...]"),
// the two forms WALLET_PRIVATE_KEY accepts per spec.md §6.
//
// Load the key from an environment variable or secret manager, never from
// a committed config file.
func NewWallet(privateKeyRaw string) (*Wallet, error) {
	privateKeyBytes, err := decodePrivateKey(privateKeyRaw)
	if err != nil {
		return nil, err
	}

	// Private key should be 64 bytes (32 seed + 32 public key)
	// or 32 bytes (seed only)
	var privateKey ed25519.PrivateKey

	switch len(privateKeyBytes) {
	case 64:
		privateKey = ed25519.PrivateKey(privateKeyBytes)
	case 32:
		privateKey = ed25519.NewKeyFromSeed(privateKeyBytes)
	default:
		return nil, fmt.Errorf("invalid private key length: %d (expected 32 or 64)", len(privateKeyBytes))
	}

	publicKey := privateKey.Public().(ed25519.PublicKey)
	address := base58.Encode(publicKey)

	log.Info().Str("address", address).Msg("wallet loaded")

	return &Wallet{
		privateKey: privateKey,
		publicKey:  publicKey,
		address:    address,
	}, nil
}

// decodePrivateKey accepts either a JSON byte-array ("[1,2,3,...]") or a
// base58-encoded string, sniffing the former by its leading '['.
func decodePrivateKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var bytes []byte
		if err := json.Unmarshal([]byte(trimmed), &bytes); err != nil {
			return nil, fmt.Errorf("decode private key as JSON byte array: %w", err)
		}
		return bytes, nil
	}

	bytes, err := base58.Decode(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return bytes, nil
}

// Address returns the wallet's public key as Base58 string
func (w *Wallet) Address() string {
	return w.address
}

// PublicKey returns the wallet's public key bytes
func (w *Wallet) PublicKey() []byte {
	return w.publicKey
}

// Sign signs a message with the wallet's private key
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.privateKey, message)
}

// BalanceTracker maintains the wallet's SOL balance
type BalanceTracker struct {
	mu              sync.RWMutex
	wallet          *Wallet
	rpc             *RPCClient
	balanceLamports uint64
}

// NewBalanceTracker creates a new balance tracker
func NewBalanceTracker(wallet *Wallet, rpc *RPCClient) *BalanceTracker {
	return &BalanceTracker{
		wallet: wallet,
		rpc:    rpc,
	}
}

// Refresh updates the balance from RPC
func (b *BalanceTracker) Refresh(ctx context.Context) error {
	balance, err := b.rpc.GetBalance(ctx, b.wallet.Address())
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.balanceLamports = balance
	b.mu.Unlock()
	return nil
}

// BalanceLamports returns balance in lamports
func (b *BalanceTracker) BalanceLamports() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceLamports
}

// BalanceSOL returns balance in SOL
func (b *BalanceTracker) BalanceSOL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return float64(b.balanceLamports) / 1e9
}

// SetBalance directly sets balance (for WebSocket updates)
func (b *BalanceTracker) SetBalance(lamports uint64) {
	b.mu.Lock()
	b.balanceLamports = lamports
	b.mu.Unlock()
}

// HasSufficientBalance checks if wallet can afford a trade
func (b *BalanceTracker) HasSufficientBalance(amountLamports, feesLamports uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceLamports >= amountLamports+feesLamports
}
