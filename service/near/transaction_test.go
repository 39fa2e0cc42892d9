package near

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair() *KeyPair {
	return NewKeyPairFromSeed(bytes.Repeat([]byte{7}, 32))
}

// expectedBorsh builds the encoding by hand so the encoder is checked
// against the layout rather than against itself.
func expectedBorsh(tx *Transaction) []byte {
	var b bytes.Buffer
	str := func(s string) {
		binary.Write(&b, binary.LittleEndian, uint32(len(s)))
		b.WriteString(s)
	}
	u64 := func(v uint64) { binary.Write(&b, binary.LittleEndian, v) }

	str(tx.SignerID)
	b.WriteByte(0)
	b.Write(tx.PublicKey)
	u64(tx.Nonce)
	str(tx.ReceiverID)
	b.Write(tx.BlockHash[:])
	binary.Write(&b, binary.LittleEndian, uint32(len(tx.Actions)))
	for _, a := range tx.Actions {
		b.WriteByte(2)
		str(a.MethodName)
		binary.Write(&b, binary.LittleEndian, uint32(len(a.Args)))
		b.Write(a.Args)
		u64(a.Gas)
		u64(a.Deposit[0])
		u64(a.Deposit[1])
	}
	return b.Bytes()
}

func TestTransactionMarshalBorsh(t *testing.T) {
	key := testKeyPair()
	deposit, err := ParseDeposit("1000000000000000000000000")
	require.NoError(t, err)

	tx := &Transaction{
		SignerID:   "alice.testnet",
		PublicKey:  key.public,
		Nonce:      42,
		ReceiverID: "donation.testnet",
		BlockHash:  [32]byte{1, 2, 3},
		Actions: []FunctionCallAction{{
			MethodName: "donate",
			Args:       []byte("{}"),
			Gas:        DefaultGas,
			Deposit:    deposit,
		}},
	}

	got, err := tx.MarshalBorsh()
	require.NoError(t, err)
	assert.Equal(t, expectedBorsh(tx), got)
}

func TestTransactionMarshalBorsh_Errors(t *testing.T) {
	t.Run("short public key", func(t *testing.T) {
		tx := &Transaction{PublicKey: []byte{1, 2}}
		_, err := tx.MarshalBorsh()
		assert.Error(t, err)
	})

	t.Run("deposit above u128", func(t *testing.T) {
		tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 130)
		tx := &Transaction{
			PublicKey: testKeyPair().public,
			Actions:   []FunctionCallAction{{MethodName: "donate", Deposit: tooBig}},
		}
		_, err := tx.MarshalBorsh()
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestSignTransaction(t *testing.T) {
	key := testKeyPair()
	tx := &Transaction{
		SignerID:   "alice.testnet",
		PublicKey:  key.public,
		Nonce:      7,
		ReceiverID: "donation.testnet",
		Actions:    []FunctionCallAction{{MethodName: "donate", Args: []byte("{}"), Gas: DefaultGas}},
	}

	signed, err := SignTransaction(tx, key)
	require.NoError(t, err)

	encoded, err := tx.MarshalBorsh()
	require.NoError(t, err)
	digest := sha256.Sum256(encoded)

	assert.Equal(t, base58.Encode(digest[:]), signed.Hash)
	require.Len(t, signed.Bytes, len(encoded)+1+64)
	assert.Equal(t, encoded, signed.Bytes[:len(encoded)])
	assert.Equal(t, byte(0), signed.Bytes[len(encoded)])
	assert.True(t, key.Verify(digest[:], signed.Bytes[len(encoded)+1:]))
}

func TestParseKeyPair(t *testing.T) {
	key := testKeyPair()

	fromSecret, err := ParseKeyPair(key.SecretKey())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromSecret.PublicKey())

	fromSeed, err := ParseKeyPair("ed25519:" + base58.Encode(bytes.Repeat([]byte{7}, 32)))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromSeed.PublicKey())

	for _, bad := range []string{"", "secp256k1:abc", "ed25519:0OIl", "ed25519:" + base58.Encode([]byte{1, 2, 3})} {
		_, err := ParseKeyPair(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestDecodeBlockHash(t *testing.T) {
	want := [32]byte{9, 9, 9}
	got, err := DecodeBlockHash(base58.Encode(want[:]))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeBlockHash(base58.Encode([]byte{1}))
	assert.Error(t, err)
}
