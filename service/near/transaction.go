package near

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
)

// DefaultGas is the gas attached to function calls when none is configured (30 TGas).
const DefaultGas uint64 = 30_000_000_000_000

const (
	keyTypeED25519       uint8 = 0
	actionFunctionCall   uint8 = 2
	signatureTypeED25519 uint8 = 0
)

// FunctionCallAction invokes a contract method with an attached deposit.
type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *uint256.Int
}

// Transaction is an unsigned NEAR transaction carrying function call actions.
type Transaction struct {
	SignerID   string
	PublicKey  []byte
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []FunctionCallAction
}

// MarshalBorsh serializes the transaction in the borsh layout the chain hashes and signs.
func (tx *Transaction) MarshalBorsh() ([]byte, error) {
	if len(tx.PublicKey) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(tx.PublicKey))
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := writeString(enc, tx.SignerID); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(keyTypeED25519); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(tx.PublicKey, false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(tx.Nonce, bin.LE); err != nil {
		return nil, err
	}
	if err := writeString(enc, tx.ReceiverID); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(tx.BlockHash[:], false); err != nil {
		return nil, err
	}

	if err := enc.WriteUint32(uint32(len(tx.Actions)), bin.LE); err != nil {
		return nil, err
	}
	for _, action := range tx.Actions {
		if err := writeFunctionCall(enc, action); err != nil {
			return nil, fmt.Errorf("failed to encode action %q: %w", action.MethodName, err)
		}
	}

	return buf.Bytes(), nil
}

func writeFunctionCall(enc *bin.Encoder, action FunctionCallAction) error {
	deposit := action.Deposit
	if deposit == nil {
		deposit = new(uint256.Int)
	}
	if deposit.Gt(maxUint128) {
		return fmt.Errorf("%w: deposit %s exceeds u128", ErrInvalidAmount, deposit.Dec())
	}

	if err := enc.WriteUint8(actionFunctionCall); err != nil {
		return err
	}
	if err := writeString(enc, action.MethodName); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(action.Args)), bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBytes(action.Args, false); err != nil {
		return err
	}
	if err := enc.WriteUint64(action.Gas, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint128(bin.Uint128{Lo: deposit[0], Hi: deposit[1]}, bin.LE)
}

// borsh strings are a u32 little-endian length followed by UTF-8 bytes.
func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

// SignedTransaction is a serialized transaction ready for broadcast.
type SignedTransaction struct {
	Bytes []byte
	Hash  string
}

// SignTransaction hashes the borsh-encoded transaction with sha256, signs the
// digest and appends the signature. Hash is the base58 transaction id.
func SignTransaction(tx *Transaction, key *KeyPair) (*SignedTransaction, error) {
	encoded, err := tx.MarshalBorsh()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	digest := sha256.Sum256(encoded)
	sig := key.Sign(digest[:])

	signed := make([]byte, 0, len(encoded)+1+len(sig))
	signed = append(signed, encoded...)
	signed = append(signed, signatureTypeED25519)
	signed = append(signed, sig...)

	return &SignedTransaction{
		Bytes: signed,
		Hash:  base58.Encode(digest[:]),
	}, nil
}

// DecodeBlockHash decodes a base58 block hash.
func DecodeBlockHash(hash string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(hash)
	if err != nil {
		return out, fmt.Errorf("invalid block hash %q: %w", hash, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid block hash %q: expected 32 bytes, got %d", hash, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
