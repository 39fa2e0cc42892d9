package donation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"sync"

	"github.com/brojonat/neardonate/service/near"
	json "github.com/goccy/go-json"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
)

// defaultDonationsLimit is what get_donations takes when no limit is passed.
const defaultDonationsLimit = 50

// MockWallet is an in-memory Wallet that behaves like the donation contract:
// donors are kept in first-donation order, totals accumulate, a first
// donation must exceed StorageCost, and donate returns the new total.
// It is used by tests and for local dry runs.
type MockWallet struct {
	mu          sync.Mutex
	contractID  string
	signer      string
	beneficiary string
	donors      []string
	totals      map[string]*uint256.Int
	txResults   map[string]json.RawMessage
	nonce       uint64
	calls       []string
	viewErrors  map[string]error
	callError   error
	lookupError error
}

// NewMockWallet creates a contract double for contractID whose donate calls
// are signed by signer.
func NewMockWallet(contractID, beneficiary, signer string) *MockWallet {
	return &MockWallet{
		contractID:  contractID,
		signer:      signer,
		beneficiary: beneficiary,
		totals:      make(map[string]*uint256.Int),
		txResults:   make(map[string]json.RawMessage),
		viewErrors:  make(map[string]error),
	}
}

// SetSigner changes the account subsequent donate calls are attributed to.
func (m *MockWallet) SetSigner(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signer = accountID
}

// SeedDonation records a donation without going through CallMethod.
func (m *MockWallet) SeedDonation(accountID, yocto string) error {
	amount, err := near.ParseDeposit(yocto)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(accountID, amount)
	return nil
}

// SetViewError makes ViewMethod fail for method.
func (m *MockWallet) SetViewError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewErrors[method] = err
}

// SetCallError makes CallMethod fail.
func (m *MockWallet) SetCallError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callError = err
}

// SetLookupError makes GetTransactionResult fail.
func (m *MockWallet) SetLookupError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupError = err
}

// SetTransactionResult registers the raw JSON a transaction returned.
func (m *MockWallet) SetTransactionResult(txHash string, raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txResults[txHash] = raw
}

// Calls returns the methods invoked so far, in order.
func (m *MockWallet) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// ViewMethod answers the contract's view methods from memory.
func (m *MockWallet) ViewMethod(ctx context.Context, req near.ViewRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req.Method)
	if err := m.viewErrors[req.Method]; err != nil {
		return nil, err
	}
	if req.ContractID != m.contractID {
		return nil, fmt.Errorf("account %s does not exist", req.ContractID)
	}

	switch req.Method {
	case MethodGetBeneficiary:
		return json.Marshal(m.beneficiary)

	case MethodNumberOfDonors:
		return json.Marshal(len(m.donors))

	case MethodGetDonations:
		var args struct {
			FromIndex *string `json:"from_index"`
			Limit     *uint64 `json:"limit"`
		}
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}

		var start uint64
		if args.FromIndex != nil {
			v, err := strconv.ParseUint(*args.FromIndex, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid from_index %q: %w", *args.FromIndex, err)
			}
			start = v
		}
		limit := uint64(defaultDonationsLimit)
		if args.Limit != nil {
			limit = *args.Limit
		}

		out := make([]Donation, 0)
		for i := start; i < uint64(len(m.donors)) && uint64(len(out)) < limit; i++ {
			account := m.donors[i]
			out = append(out, Donation{AccountID: account, TotalAmount: m.totals[account].Dec()})
		}
		return json.Marshal(out)

	case MethodGetDonationForAccount:
		var args struct {
			AccountID string `json:"account_id"`
		}
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, err
		}
		total := "0"
		if t, ok := m.totals[args.AccountID]; ok {
			total = t.Dec()
		}
		return json.Marshal(Donation{AccountID: args.AccountID, TotalAmount: total})

	default:
		return nil, fmt.Errorf("contract method %s is not found", req.Method)
	}
}

// CallMethod executes donate against the in-memory state.
func (m *MockWallet) CallMethod(ctx context.Context, req near.CallRequest) (*near.CallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req.Method)
	if m.callError != nil {
		return nil, m.callError
	}
	if req.Method != MethodDonate {
		return nil, fmt.Errorf("%w: contract method %s is not found", near.ErrTransactionFailed, req.Method)
	}

	deposit := req.Deposit
	if deposit == "" {
		deposit = "0"
	}
	amount, err := near.ParseDeposit(deposit)
	if err != nil {
		return nil, err
	}

	if _, donated := m.totals[m.signer]; !donated {
		storage := uint256.MustFromDecimal(StorageCost)
		if !amount.Gt(storage) {
			return nil, fmt.Errorf("%w: Attach at least %s yoctoNEAR", near.ErrTransactionFailed, StorageCost)
		}
	}

	total := m.addLocked(m.signer, amount)
	value, err := json.Marshal(total.Dec())
	if err != nil {
		return nil, err
	}

	m.nonce++
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", m.signer, m.contractID, m.nonce)))
	hash := base58.Encode(digest[:])
	m.txResults[hash] = value

	return &near.CallResult{
		TransactionHash: hash,
		SignerID:        m.signer,
		ReceiverID:      m.contractID,
		Value:           value,
	}, nil
}

// GetTransactionResult returns what a recorded transaction returned.
func (m *MockWallet) GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, "tx")
	if m.lookupError != nil {
		return nil, m.lookupError
	}
	raw, ok := m.txResults[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", near.ErrUnknownTransaction, txHash)
	}
	return raw, nil
}

func (m *MockWallet) addLocked(accountID string, amount *uint256.Int) *uint256.Int {
	total, ok := m.totals[accountID]
	if !ok {
		total = new(uint256.Int)
		m.totals[accountID] = total
		m.donors = append(m.donors, accountID)
	}
	total.Add(total, amount)
	return new(uint256.Int).Set(total)
}

func decodeArgs(args interface{}, out interface{}) error {
	if args == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
