package donation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/brojonat/neardonate/service/metrics"
	"github.com/brojonat/neardonate/service/near"
	json "github.com/goccy/go-json"
)

// Contract adapts the donation contract's methods for callers. It holds no
// state beyond its collaborators and never retries; every upstream error is
// wrapped and returned.
type Contract struct {
	contractID string
	wallet     Wallet
	resolver   *Resolver
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewContract creates an adapter for the contract deployed at contractID.
// If metrics is nil, no metrics are recorded.
func NewContract(contractID string, wallet Wallet, m *metrics.Metrics, logger *slog.Logger) *Contract {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("contract_id", contractID)
	return &Contract{
		contractID: contractID,
		wallet:     wallet,
		resolver:   NewResolver(wallet, logger),
		metrics:    m,
		logger:     logger,
	}
}

// ContractID returns the contract account this adapter targets.
func (c *Contract) ContractID() string {
	return c.contractID
}

// Resolver returns the transaction resolver sharing this adapter's wallet.
func (c *Contract) Resolver() *Resolver {
	return c.resolver
}

func (c *Contract) record(operation string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordDonationOperation(operation, time.Since(start).Seconds(), err)
	}
}

func (c *Contract) view(ctx context.Context, method string, args interface{}, out interface{}) error {
	raw, err := c.wallet.ViewMethod(ctx, near.ViewRequest{
		ContractID: c.contractID,
		Method:     method,
		Args:       args,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "view failed", "method", method, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrRemoteQuery, method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s returned malformed data: %w", ErrRemoteQuery, method, err)
	}
	return nil
}

// GetBeneficiary returns the account that receives donations.
func (c *Contract) GetBeneficiary(ctx context.Context) (beneficiary string, err error) {
	defer func(start time.Time) { c.record("get_beneficiary", start, err) }(time.Now())

	if err := c.view(ctx, MethodGetBeneficiary, nil, &beneficiary); err != nil {
		return "", err
	}
	return beneficiary, nil
}

// NumberOfDonors returns how many distinct accounts have donated.
func (c *Contract) NumberOfDonors(ctx context.Context) (n uint64, err error) {
	defer func(start time.Time) { c.record("number_of_donors", start, err) }(time.Now())

	if err := c.view(ctx, MethodNumberOfDonors, nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// LatestDonations returns the most recent donors with totals formatted as
// NEAR decimals, in the order the contract lists them. The donor count is
// read first and determines the window of the records query.
func (c *Contract) LatestDonations(ctx context.Context) (donations []Donation, err error) {
	defer func(start time.Time) { c.record("latest_donations", start, err) }(time.Now())

	n, err := c.NumberOfDonors(ctx)
	if err != nil {
		return nil, err
	}

	window := ComputeWindow(n)
	args := map[string]interface{}{
		"from_index": strconv.FormatUint(window.FromIndex, 10),
		"limit":      window.Limit,
	}

	var raw []Donation
	if err := c.view(ctx, MethodGetDonations, args, &raw); err != nil {
		return nil, err
	}

	donations = make([]Donation, 0, len(raw))
	for _, d := range raw {
		formatted, err := near.FormatNearAmount(d.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: donation for %s: %w", ErrRemoteQuery, d.AccountID, err)
		}
		donations = append(donations, Donation{AccountID: d.AccountID, TotalAmount: formatted})
	}

	c.logger.DebugContext(ctx, "fetched latest donations",
		"donors", n,
		"from_index", window.FromIndex,
		"limit", window.Limit,
		"count", len(donations),
	)
	if c.metrics != nil {
		c.metrics.RecordDonationsListed(c.contractID, len(donations))
	}

	return donations, nil
}

// GetDonationForAccount returns accountID's formatted cumulative total.
// Accounts that never donated have a total of "0".
func (c *Contract) GetDonationForAccount(ctx context.Context, accountID string) (donation *Donation, err error) {
	defer func(start time.Time) { c.record("get_donation_for_account", start, err) }(time.Now())

	var raw Donation
	if err := c.view(ctx, MethodGetDonationForAccount, map[string]string{"account_id": accountID}, &raw); err != nil {
		return nil, err
	}

	formatted, err := near.FormatNearAmount(raw.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: donation for %s: %w", ErrRemoteQuery, accountID, err)
	}
	return &Donation{AccountID: raw.AccountID, TotalAmount: formatted}, nil
}

// Donate converts a human NEAR amount into yoctoNEAR and calls donate with
// it attached. The wallet's raw call result is returned unchanged.
func (c *Contract) Donate(ctx context.Context, amount string) (result *near.CallResult, err error) {
	defer func(start time.Time) { c.record("donate", start, err) }(time.Now())

	deposit, err := near.ParseNearAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAmountParse, err)
	}

	result, err = c.wallet.CallMethod(ctx, near.CallRequest{
		ContractID: c.contractID,
		Method:     MethodDonate,
		Deposit:    deposit,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "donate call failed", "deposit", deposit, "error", err)
		return nil, fmt.Errorf("%w: donate: %w", ErrRemoteCall, err)
	}

	c.logger.InfoContext(ctx, "donation submitted",
		"tx_hash", result.TransactionHash,
		"signer_id", result.SignerID,
		"deposit", deposit,
	)
	return result, nil
}

// GetDonationFromTransaction returns the amount a past donate transaction
// returned, formatted as a NEAR decimal.
func (c *Contract) GetDonationFromTransaction(ctx context.Context, txHash string) (amount string, err error) {
	defer func(start time.Time) { c.record("donation_from_transaction", start, err) }(time.Now())

	raw, err := c.resolver.GetTransactionResult(ctx, txHash)
	if err != nil {
		return "", err
	}

	formatted, err := near.FormatNearAmount(raw)
	if err != nil {
		return "", fmt.Errorf("%w: transaction %s: %w", ErrAmbiguousResult, txHash, err)
	}
	return formatted, nil
}
