package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/neardonate/service/metrics"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Default public RPC endpoints per network.
const (
	TestnetRPCURL = "https://rpc.testnet.near.org"
	MainnetRPCURL = "https://rpc.mainnet.near.org"
)

// ErrUnknownTransaction is returned when the node has no record of a transaction hash.
var ErrUnknownTransaction = errors.New("unknown transaction")

// RPCError is a structured error returned by a NEAR JSON-RPC node.
type RPCError struct {
	Name    string          `json:"name"`
	Cause   *ErrorCause     `json:"cause,omitempty"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorCause names the specific failure inside an RPCError.
type ErrorCause struct {
	Name string          `json:"name"`
	Info json.RawMessage `json:"info,omitempty"`
}

func (e *RPCError) Error() string {
	cause := ""
	if e.Cause != nil {
		cause = e.Cause.Name
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d %s/%s: %s: %s", e.Code, e.Name, cause, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d %s/%s: %s", e.Code, e.Name, cause, e.Message)
}

// CauseName returns the cause name, or the error name when no cause is present.
func (e *RPCError) CauseName() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return e.Cause.Name
	}
	return e.Name
}

// Is lets errors.Is match UNKNOWN_TRANSACTION failures against ErrUnknownTransaction.
func (e *RPCError) Is(target error) bool {
	if target != ErrUnknownTransaction {
		return false
	}
	// legacy nodes only say so in data
	return e.CauseName() == "UNKNOWN_TRANSACTION" || bytes.Contains(e.Data, []byte("doesn't exist"))
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCClient talks JSON-RPC 2.0 to a NEAR node.
type RPCClient struct {
	endpoint   string
	network    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewRPCClient creates a client for the given endpoint. network is only used
// to label metrics and logs. If metrics is nil, no metrics are recorded.
func NewRPCClient(endpoint, network string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *RPCClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &RPCClient{
		endpoint:   endpoint,
		network:    network,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// Endpoint returns the node URL.
func (c *RPCClient) Endpoint() string {
	return c.endpoint
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.network, time.Since(start).Seconds())
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				c.metrics.RecordRPCError(method, rpcErr.CauseName())
			}
		}
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s request failed with status %d: %s", method, resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if envelope.Error != nil {
		c.logger.DebugContext(ctx, "rpc returned error",
			"method", method,
			"name", envelope.Error.Name,
			"cause", envelope.Error.CauseName(),
			"code", envelope.Error.Code,
		)
		return envelope.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request failed with status %d", method, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	c.logger.DebugContext(ctx, "rpc call completed",
		"method", method,
		"duration", time.Since(start),
	)
	return nil
}

type callFunctionResult struct {
	Result      []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
	// Older nodes report contract panics here instead of as an RPC error.
	Error string `json:"error,omitempty"`
}

// CallFunction runs a view method against the final state of accountID and
// returns the raw bytes the method produced.
func (c *RPCClient) CallFunction(ctx context.Context, accountID, methodName string, args []byte) ([]byte, error) {
	params := map[string]interface{}{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   accountID,
		"method_name":  methodName,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}

	var res callFunctionResult
	if err := c.call(ctx, "query", params, &res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("view %s on %s failed: %s", methodName, accountID, res.Error)
	}

	out := make([]byte, len(res.Result))
	for i, v := range res.Result {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("view %s on %s returned invalid byte %d", methodName, accountID, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// AccessKeyView is the state of one access key.
type AccessKeyView struct {
	Nonce       uint64          `json:"nonce"`
	Permission  json.RawMessage `json:"permission"`
	BlockHeight uint64          `json:"block_height"`
	BlockHash   string          `json:"block_hash"`
}

// ViewAccessKey returns the access key for publicKey on accountID.
// The returned block hash is recent enough to anchor a new transaction.
func (c *RPCClient) ViewAccessKey(ctx context.Context, accountID, publicKey string) (*AccessKeyView, error) {
	params := map[string]interface{}{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey,
	}

	var res AccessKeyView
	if err := c.call(ctx, "query", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExecutionStatus is the final status of a transaction. Unit variants such as
// "NotStarted" arrive as bare strings and are kept in Kind.
type ExecutionStatus struct {
	Kind             string          `json:"-"`
	SuccessValue     *string         `json:"SuccessValue,omitempty"`
	SuccessReceiptID *string         `json:"SuccessReceiptId,omitempty"`
	Failure          json.RawMessage `json:"Failure,omitempty"`
}

// UnmarshalJSON accepts both the object and the bare string forms.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Kind)
	}
	type plain ExecutionStatus
	return json.Unmarshal(data, (*plain)(s))
}

// FinalExecutionOutcome is the result of broadcast_tx_commit and tx.
type FinalExecutionOutcome struct {
	Status      ExecutionStatus `json:"status"`
	Transaction struct {
		Hash       string `json:"hash"`
		SignerID   string `json:"signer_id"`
		ReceiverID string `json:"receiver_id"`
		Nonce      uint64 `json:"nonce"`
	} `json:"transaction"`
	TransactionOutcome struct {
		ID string `json:"id"`
	} `json:"transaction_outcome"`
}

// Failed reports whether the transaction or one of its receipts failed.
func (o *FinalExecutionOutcome) Failed() bool {
	return len(o.Status.Failure) > 0 && string(o.Status.Failure) != "null"
}

// LastResult returns the bytes returned by the last receipt of a successful
// transaction. ok is false when the transaction produced no return value.
func (o *FinalExecutionOutcome) LastResult() (value []byte, ok bool, err error) {
	if o.Status.SuccessValue == nil {
		return nil, false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(*o.Status.SuccessValue)
	if err != nil {
		return nil, false, fmt.Errorf("invalid SuccessValue encoding: %w", err)
	}
	return decoded, len(decoded) > 0, nil
}

// BroadcastTxCommit submits a signed transaction and waits until it is final.
func (c *RPCClient) BroadcastTxCommit(ctx context.Context, signedTx []byte) (*FinalExecutionOutcome, error) {
	params := []string{base64.StdEncoding.EncodeToString(signedTx)}

	var res FinalExecutionOutcome
	if err := c.call(ctx, "broadcast_tx_commit", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TxStatus looks up a transaction by hash. senderID routes the lookup to the
// shard that holds the signer's account.
func (c *RPCClient) TxStatus(ctx context.Context, txHash, senderID string) (*FinalExecutionOutcome, error) {
	params := []string{txHash, senderID}

	var res FinalExecutionOutcome
	if err := c.call(ctx, "tx", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
