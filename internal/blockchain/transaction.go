package blockchain

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// ComputeBudgetProgramID is the compute budget program ID
const ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

// TransactionBuilder builds Solana transactions
type TransactionBuilder struct {
	wallet              *Wallet
	blockhashCache      *BlockhashCache
	priorityFeeLamports uint64
	computeUnitLimit    uint32
}

// NewTransactionBuilder creates a new transaction builder
func NewTransactionBuilder(wallet *Wallet, blockhashCache *BlockhashCache, priorityFeeLamports uint64) *TransactionBuilder {
	return &TransactionBuilder{
		wallet:              wallet,
		blockhashCache:      blockhashCache,
		priorityFeeLamports: priorityFeeLamports,
		computeUnitLimit:    600000, // Default for Jupiter swaps (bumped for reliability)
	}
}

// SetComputeUnitLimit sets the compute unit limit
func (b *TransactionBuilder) SetComputeUnitLimit(limit uint32) {
	b.computeUnitLimit = limit
}

// BuildComputeBudgetInstructions creates the compute budget instructions
func (b *TransactionBuilder) BuildComputeBudgetInstructions() (setLimit []byte, setPrice []byte) {
	// SetComputeUnitLimit instruction (instruction type 2)
	// Format: [1 byte instruction type] [4 bytes limit]
	setLimit = make([]byte, 5)
	setLimit[0] = 2 // SetComputeUnitLimit
	binary.LittleEndian.PutUint32(setLimit[1:], b.computeUnitLimit)

	// SetComputeUnitPrice instruction (instruction type 3)
	// Format: [1 byte instruction type] [8 bytes microLamports per CU]
	// Calculate: priorityFeeLamports / computeUnitLimit = microLamports per CU
	microLamportsPerCU := (b.priorityFeeLamports * 1_000_000) / uint64(b.computeUnitLimit)

	setPrice = make([]byte, 9)
	setPrice[0] = 3 // SetComputeUnitPrice
	binary.LittleEndian.PutUint64(setPrice[1:], microLamportsPerCU)

	return setLimit, setPrice
}

// ComputeBudgetProgramIDBytes returns the compute budget program ID as bytes
func ComputeBudgetProgramIDBytes() []byte {
	bytes, _ := base58.Decode(ComputeBudgetProgramID)
	return bytes
}

// Sign is the single-signer path (spec.md §4.2): the venue adapters (C2)
// return a raw, unsigned transaction with their own recent blockhash already
// embedded, so this only signs the message and places the signature at
// index 0 — it never rewrites the blockhash. It's the one signer the trader
// orchestrator (C7) uses for every buy and sell attempt.
func (b *TransactionBuilder) Sign(txBytes []byte) []byte {
	if b.blockhashCache != nil {
		log.Debug().Dur("cachedBlockhashAge", b.blockhashCache.Age()).
			Float64("blockhashCacheHitRate", b.blockhashCache.HitRate()).
			Msg("transactionbuilder: signing venue-built transaction")
	}
	return signRaw(b.wallet, txBytes)
}

// SignSerializedTransaction signs a base64-encoded transaction (the form
// Jupiter-style swap endpoints return before the adapters in this repo
// decode them to raw bytes).
func (b *TransactionBuilder) SignSerializedTransaction(serializedTxBase64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(serializedTxBase64)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signRaw(b.wallet, txBytes)), nil
}

// signRaw implements the Solana versioned-transaction single-signer rule:
// [signature count][signatures...][message]. When the venue returns a bare
// message (sigCount == 0) a one-signature header is prepended; when it
// returns placeholder signature slots, ours fills the first one.
func signRaw(wallet *Wallet, txBytes []byte) []byte {
	sigCount := int(txBytes[0])
	if sigCount == 0 {
		message := txBytes[1:]
		signature := wallet.Sign(message)

		signed := make([]byte, 0, 1+64+len(message))
		signed = append(signed, 1)
		signed = append(signed, signature...)
		signed = append(signed, message...)
		return signed
	}

	sigOffset := 1
	messageOffset := sigOffset + sigCount*64
	message := txBytes[messageOffset:]
	signature := wallet.Sign(message)

	signed := make([]byte, len(txBytes))
	copy(signed, txBytes)
	copy(signed[sigOffset:sigOffset+64], signature)
	return signed
}

// GetRecentBlockhash returns the current cached blockhash.
func (b *TransactionBuilder) GetRecentBlockhash() (string, error) {
	return b.blockhashCache.Get()
}
