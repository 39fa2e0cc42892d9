package donation

import (
	"context"

	"github.com/brojonat/neardonate/service/near"
	json "github.com/goccy/go-json"
)

// Contract method names exposed by the donation contract.
const (
	MethodGetBeneficiary        = "get_beneficiary"
	MethodNumberOfDonors        = "number_of_donors"
	MethodGetDonations          = "get_donations"
	MethodGetDonationForAccount = "get_donation_for_account"
	MethodDonate                = "donate"
)

// StorageCost is the yoctoNEAR the contract keeps from a donor's first
// donation to pay for storing the record (0.001 NEAR).
const StorageCost = "1000000000000000000000"

// Wallet is the signing and lookup capability the adapter depends on.
// near.Wallet talks to a real node; MockWallet keeps the contract in memory.
type Wallet interface {
	ViewMethod(ctx context.Context, req near.ViewRequest) (json.RawMessage, error)
	CallMethod(ctx context.Context, req near.CallRequest) (*near.CallResult, error)
	GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error)
}

// Donation is one donor's cumulative total. TotalAmount is a yoctoNEAR
// integer string as the contract returns it, and a NEAR decimal string once
// the adapter has formatted it.
type Donation struct {
	AccountID   string `json:"account_id"`
	TotalAmount string `json:"total_amount"`
}

// Window is the pagination request derived from the donor count.
type Window struct {
	FromIndex uint64
	Limit     uint64
}

// windowSpan is how many trailing donors a latest query starts before the end.
const windowSpan = 9

// ComputeWindow returns {max(donors-9, 0), donors}. Limit is the total donor
// count rather than a page size; the contract stops at the end of its list,
// so at most the last nine donors come back.
func ComputeWindow(donors uint64) Window {
	var from uint64
	if donors > windowSpan {
		from = donors - windowSpan
	}
	return Window{FromIndex: from, Limit: donors}
}
