package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Donation is one donor's cumulative total as a NEAR decimal string.
type Donation struct {
	AccountID   string `json:"account_id"`
	TotalAmount string `json:"total_amount"`
}

// DonateResult describes a submitted donate transaction.
type DonateResult struct {
	TransactionHash        string `json:"transaction_hash"`
	SignerID               string `json:"signer_id"`
	ReceiverID             string `json:"receiver_id"`
	Amount                 string `json:"amount"`
	DepositYocto           string `json:"deposit_yocto"`
	Total                  string `json:"total,omitempty"` // donor's new total, when the contract returned one
	ReceiptRecorded        bool   `json:"receipt_recorded"`
	ConfirmationWorkflowID string `json:"confirmation_workflow_id,omitempty"`
}

// Receipt is a stored record of a submitted donation.
type Receipt struct {
	TxHash       string     `json:"tx_hash"`
	ContractID   string     `json:"contract_id"`
	AccountID    string     `json:"account_id"`
	DepositYocto *string    `json:"deposit_yocto,omitempty"`
	Deposit      string     `json:"deposit,omitempty"`
	TotalYocto   *string    `json:"total_yocto,omitempty"`
	Total        string     `json:"total,omitempty"`
	Status       string     `json:"status"` // pending, confirmed, failed
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

// ReceiptsQuery filters and pages a receipts listing. Zero values use the
// server defaults.
type ReceiptsQuery struct {
	AccountID string
	Limit     int
	Offset    int
}

// ConfirmationResult is the outcome of a finished confirmation.
type ConfirmationResult struct {
	TxHash      string    `json:"tx_hash"`
	AccountID   string    `json:"account_id"`
	ContractID  string    `json:"contract_id"`
	Total       string    `json:"total,omitempty"`
	TotalYocto  string    `json:"total_yocto,omitempty"`
	Status      string    `json:"status"`
	Recorded    bool      `json:"recorded"`
	Published   bool      `json:"published"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	Error       *string   `json:"error,omitempty"`
}

// Confirmation is the state of a donation's confirmation workflow.
type Confirmation struct {
	WorkflowID string              `json:"workflow_id"`
	RunID      string              `json:"run_id,omitempty"`
	Status     string              `json:"status"` // running, completed, failed, canceled, terminated, timed_out
	Result     *ConfirmationResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is the HTTP client for the neardonate service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new donation service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Beneficiary returns the account that receives donations.
func (c *Client) Beneficiary(ctx context.Context) (string, error) {
	var resp struct {
		ContractID  string `json:"contract_id"`
		Beneficiary string `json:"beneficiary"`
	}
	if err := c.get(ctx, "/api/v1/beneficiary", &resp); err != nil {
		return "", err
	}
	return resp.Beneficiary, nil
}

// LatestDonations returns the most recent donors, in contract order.
func (c *Client) LatestDonations(ctx context.Context) ([]Donation, error) {
	var resp struct {
		Donations []Donation `json:"donations"`
	}
	if err := c.get(ctx, "/api/v1/donations/latest", &resp); err != nil {
		return nil, err
	}
	return resp.Donations, nil
}

// DonationForAccount returns one donor's total. Accounts that never donated
// have a total of "0".
func (c *Client) DonationForAccount(ctx context.Context, accountID string) (*Donation, error) {
	var d Donation
	if err := c.get(ctx, "/api/v1/donations/"+url.PathEscape(accountID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Donate asks the server to donate amount NEAR from its signing account.
func (c *Client) Donate(ctx context.Context, amount string) (*DonateResult, error) {
	body, err := json.Marshal(map[string]string{"amount": amount})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/donations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var result DonateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("donation submitted", "tx_hash", result.TransactionHash, "amount", amount)
	return &result, nil
}

// DonationFromTransaction returns the total a donate transaction returned,
// as a NEAR decimal string.
func (c *Client) DonationFromTransaction(ctx context.Context, txHash string) (string, error) {
	var resp struct {
		TransactionHash string `json:"transaction_hash"`
		Amount          string `json:"amount"`
	}
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(txHash)+"/donation", &resp); err != nil {
		return "", err
	}
	return resp.Amount, nil
}

// Receipts lists stored donation receipts, newest first.
func (c *Client) Receipts(ctx context.Context, query ReceiptsQuery) ([]*Receipt, error) {
	params := url.Values{}
	if query.AccountID != "" {
		params.Set("account_id", query.AccountID)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		params.Set("offset", strconv.Itoa(query.Offset))
	}

	path := "/api/v1/receipts"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Receipts []*Receipt `json:"receipts"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

// Receipt returns the stored receipt for a transaction.
func (c *Client) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	var r Receipt
	if err := c.get(ctx, "/api/v1/receipts/"+url.PathEscape(txHash), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Confirmation returns the state of a transaction's confirmation workflow.
func (c *Client) Confirmation(ctx context.Context, txHash string) (*Confirmation, error) {
	var conf Confirmation
	if err := c.get(ctx, "/api/v1/confirmations/"+url.PathEscape(txHash), &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// WaitForConfirmation polls Confirmation until the workflow leaves the
// running state or ctx is done.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, interval time.Duration) (*Confirmation, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		conf, err := c.Confirmation(ctx, txHash)
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
		if conf != nil && conf.Status != "running" {
			return conf, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// get performs a GET and decodes a 200 response into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
