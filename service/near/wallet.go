package near

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	json "github.com/goccy/go-json"
)

var (
	// ErrReadOnlyWallet is returned by CallMethod when the wallet has no signing key.
	ErrReadOnlyWallet = errors.New("wallet has no signing key")

	// ErrTransactionFailed is returned when a submitted transaction executed with a failure status.
	ErrTransactionFailed = errors.New("transaction failed")
)

// ViewRequest is a read-only contract method invocation.
type ViewRequest struct {
	ContractID string
	Method     string
	Args       interface{}
}

// CallRequest is a state-changing contract method invocation. Deposit is a
// yoctoNEAR integer string; empty means no deposit.
type CallRequest struct {
	ContractID string
	Method     string
	Args       interface{}
	Deposit    string
	Gas        uint64
}

// CallResult is the raw outcome of a submitted call.
type CallResult struct {
	TransactionHash string          `json:"transaction_hash"`
	SignerID        string          `json:"signer_id"`
	ReceiverID      string          `json:"receiver_id"`
	Value           json.RawMessage `json:"value,omitempty"`
}

// Wallet views, calls and looks up transactions over JSON-RPC on behalf of
// one account. Without a key it can only view and look up.
type Wallet struct {
	rpc       *RPCClient
	accountID string
	key       *KeyPair
	gas       uint64
	// lookupSender is used to route tx lookups when accountID is empty.
	lookupSender string
	logger       *slog.Logger

	// serializes nonce acquisition and broadcast
	mu sync.Mutex
}

// WalletConfig configures a Wallet.
type WalletConfig struct {
	AccountID    string
	Key          *KeyPair
	Gas          uint64
	LookupSender string
}

// NewWallet creates a Wallet backed by rpc.
func NewWallet(rpc *RPCClient, cfg WalletConfig, logger *slog.Logger) *Wallet {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	gas := cfg.Gas
	if gas == 0 {
		gas = DefaultGas
	}
	return &Wallet{
		rpc:          rpc,
		accountID:    cfg.AccountID,
		key:          cfg.Key,
		gas:          gas,
		lookupSender: cfg.LookupSender,
		logger:       logger,
	}
}

// AccountID returns the signing account, empty for read-only wallets.
func (w *Wallet) AccountID() string {
	return w.accountID
}

// CanSign reports whether CallMethod is available.
func (w *Wallet) CanSign() bool {
	return w.key != nil && w.accountID != ""
}

// ViewMethod runs a view method and returns its JSON result.
func (w *Wallet) ViewMethod(ctx context.Context, req ViewRequest) (json.RawMessage, error) {
	args, err := encodeArgs(req.Args)
	if err != nil {
		return nil, err
	}

	out, err := w.rpc.CallFunction(ctx, req.ContractID, req.Method, args)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", req.Method, err)
	}
	if len(out) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(out), nil
}

// CallMethod signs a function call transaction, broadcasts it and waits for
// the final outcome.
func (w *Wallet) CallMethod(ctx context.Context, req CallRequest) (*CallResult, error) {
	if !w.CanSign() {
		return nil, ErrReadOnlyWallet
	}

	args, err := encodeArgs(req.Args)
	if err != nil {
		return nil, err
	}

	deposit := "0"
	if req.Deposit != "" {
		deposit = req.Deposit
	}
	amount, err := ParseDeposit(deposit)
	if err != nil {
		return nil, err
	}

	gas := req.Gas
	if gas == 0 {
		gas = w.gas
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	accessKey, err := w.rpc.ViewAccessKey(ctx, w.accountID, w.key.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch access key: %w", err)
	}
	blockHash, err := DecodeBlockHash(accessKey.BlockHash)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		SignerID:   w.accountID,
		PublicKey:  w.key.public,
		Nonce:      accessKey.Nonce + 1,
		ReceiverID: req.ContractID,
		BlockHash:  blockHash,
		Actions: []FunctionCallAction{{
			MethodName: req.Method,
			Args:       args,
			Gas:        gas,
			Deposit:    amount,
		}},
	}

	signed, err := SignTransaction(tx, w.key)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "broadcasting transaction",
		"tx_hash", signed.Hash,
		"signer_id", w.accountID,
		"receiver_id", req.ContractID,
		"method", req.Method,
		"deposit", deposit,
		"nonce", tx.Nonce,
	)

	outcome, err := w.rpc.BroadcastTxCommit(ctx, signed.Bytes)
	if err != nil {
		return nil, fmt.Errorf("broadcast %s: %w", signed.Hash, err)
	}
	if outcome.Failed() {
		return nil, fmt.Errorf("%w: %s: %s", ErrTransactionFailed, signed.Hash, string(outcome.Status.Failure))
	}

	value, _, err := outcome.LastResult()
	if err != nil {
		return nil, err
	}

	hash := outcome.Transaction.Hash
	if hash == "" {
		hash = signed.Hash
	}
	return &CallResult{
		TransactionHash: hash,
		SignerID:        w.accountID,
		ReceiverID:      req.ContractID,
		Value:           json.RawMessage(value),
	}, nil
}

// GetTransactionResult returns the JSON value the transaction's last receipt
// returned. A nil result with no error means the transaction produced no value.
func (w *Wallet) GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error) {
	sender := w.accountID
	if sender == "" {
		sender = w.lookupSender
	}

	outcome, err := w.rpc.TxStatus(ctx, txHash, sender)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", txHash, err)
	}

	value, ok, err := outcome.LastResult()
	if err != nil {
		return nil, err
	}
	if !ok {
		w.logger.DebugContext(ctx, "transaction produced no value",
			"tx_hash", txHash,
			"status", outcome.Status.Kind,
			"failed", outcome.Failed(),
		)
		return nil, nil
	}
	return json.RawMessage(value), nil
}

func encodeArgs(args interface{}) ([]byte, error) {
	if args == nil {
		return []byte("{}"), nil
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args: %w", err)
	}
	return encoded, nil
}
