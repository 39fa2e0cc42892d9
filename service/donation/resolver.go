package donation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/brojonat/neardonate/service/near"
	json "github.com/goccy/go-json"
)

// TransactionLookup returns the JSON value a transaction's last receipt
// returned, or nil when it returned nothing.
type TransactionLookup interface {
	GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error)
}

// Resolver turns a transaction id into the single yoctoNEAR amount the
// transaction returned.
type Resolver struct {
	lookup TransactionLookup
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(lookup TransactionLookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Resolver{lookup: lookup, logger: logger}
}

// GetTransactionResult returns the raw yoctoNEAR integer string the
// transaction produced.
func (r *Resolver) GetTransactionResult(ctx context.Context, txHash string) (string, error) {
	if txHash == "" {
		return "", fmt.Errorf("%w: empty transaction id", ErrTransactionNotFound)
	}

	raw, err := r.lookup.GetTransactionResult(ctx, txHash)
	if err != nil {
		if errors.Is(err, near.ErrUnknownTransaction) || errors.Is(err, ErrTransactionNotFound) {
			return "", fmt.Errorf("%w: %s: %w", ErrTransactionNotFound, txHash, err)
		}
		return "", fmt.Errorf("%w: transaction %s: %w", ErrRemoteQuery, txHash, err)
	}

	amount, err := singleAmount(raw)
	if err != nil {
		r.logger.DebugContext(ctx, "transaction result is not an amount",
			"tx_hash", txHash,
			"result", string(raw),
			"error", err,
		)
		return "", fmt.Errorf("%w: transaction %s: %w", ErrAmbiguousResult, txHash, err)
	}

	r.logger.DebugContext(ctx, "resolved transaction amount", "tx_hash", txHash, "amount", amount)
	return amount, nil
}

// singleAmount accepts a JSON string of digits (U128 encoding) or a JSON
// non-negative integer.
func singleAmount(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("no value returned")
	}

	var candidate string
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &candidate); err != nil {
			return "", err
		}
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		candidate = string(trimmed)
	default:
		return "", fmt.Errorf("unexpected value %s", string(trimmed))
	}

	amount, err := near.ParseYocto(candidate)
	if err != nil {
		return "", err
	}
	return amount.Dec(), nil
}
