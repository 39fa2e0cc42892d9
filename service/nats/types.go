package nats

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/neardonate/service/near"
)

const subjectPrefix = "donations."

// ErrMissingAccount is returned for events without a donor account, which
// would otherwise be published on the wildcard subject.
var ErrMissingAccount = errors.New("donation event has no account id")

// DonationEvent represents a confirmed donation published to NATS.
// This is published to the subject "donations.{account_id}" in JetStream.
type DonationEvent struct {
	// Transaction identifiers
	TxHash     string `json:"tx_hash"`
	ContractID string `json:"contract_id"`

	// Donor
	AccountID string `json:"account_id"`

	// Cumulative amount donated by the account, as returned by donate
	Total      string `json:"total"`
	TotalYocto string `json:"total_yocto"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// NewDonationEvent builds an event from the raw yoctoNEAR total a donate
// transaction returned.
func NewDonationEvent(txHash, contractID, accountID, totalYocto string) (*DonationEvent, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAccount, txHash)
	}
	total, err := near.FormatNearAmount(totalYocto)
	if err != nil {
		return nil, fmt.Errorf("invalid total for %s: %w", txHash, err)
	}
	return &DonationEvent{
		TxHash:      txHash,
		ContractID:  contractID,
		AccountID:   accountID,
		Total:       total,
		TotalYocto:  totalYocto,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Subject returns the subject events for accountID are published on.
// An empty accountID yields the wildcard matching every donor.
func Subject(accountID string) string {
	if accountID == "" {
		return StreamSubjects
	}
	return subjectPrefix + accountID
}

// matchesAccount reports whether an event belongs to a subscription filter.
func matchesAccount(filter string, event *DonationEvent) bool {
	return filter == "" || strings.EqualFold(filter, event.AccountID)
}
