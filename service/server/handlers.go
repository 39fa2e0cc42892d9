package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/db"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/near"
	"github.com/brojonat/neardonate/service/temporal"
	json "github.com/goccy/go-json"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAccountIDLength = 64
	minAccountIDLength = 2
	maxTxHashLength    = 64
	defaultListLimit   = 50
	maxListLimit       = 500
)

var (
	// NEAR account ids: lowercase alphanumeric parts joined by '-' or '_',
	// separated by dots.
	validAccountIDRegex = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

	// Transaction hashes are base58 encoded sha256 digests.
	validTxHashRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleGetBeneficiary returns the account that receives donations.
// GET /api/v1/beneficiary
func handleGetBeneficiary(donations DonationService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		beneficiary, err := donations.GetBeneficiary(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get beneficiary", "error", err)
			writeDonationError(w, err)
			return
		}

		writeJSON(w, beneficiaryResponse{
			ContractID:  donations.ContractID(),
			Beneficiary: beneficiary,
		}, http.StatusOK)
	})
}

// handleLatestDonations returns the most recent donors with formatted totals.
// GET /api/v1/donations/latest
func handleLatestDonations(donations DonationService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		latest, err := donations.LatestDonations(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get latest donations", "error", err)
			writeDonationError(w, err)
			return
		}

		logger.DebugContext(r.Context(), "latest donations listed", "count", len(latest))

		writeJSON(w, donationsResponse{
			ContractID: donations.ContractID(),
			Donations:  latest,
			Count:      len(latest),
		}, http.StatusOK)
	})
}

// handleGetDonationForAccount returns one donor's formatted total.
// GET /api/v1/donations/{account_id}
func handleGetDonationForAccount(donations DonationService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("account_id")

		if err := validateAccountID(accountID); err != nil {
			logger.DebugContext(r.Context(), "invalid account id", "account_id", accountID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		d, err := donations.GetDonationForAccount(r.Context(), accountID)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get donation", "account_id", accountID, "error", err)
			writeDonationError(w, err)
			return
		}

		writeJSON(w, d, http.StatusOK)
	})
}

// handleDonate submits a donation signed by the server's account, records a
// pending receipt and starts its confirmation.
// POST /api/v1/donations
func handleDonate(donations DonationService, store ReceiptStore, confirmer temporal.Confirmer, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.DebugContext(r.Context(), "failed to read donate request", "error", err)
			// Check if error is due to body size limit
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		var req donateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			logger.DebugContext(r.Context(), "failed to decode donate request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if strings.TrimSpace(req.Amount) == "" {
			writeError(w, "amount is required", http.StatusBadRequest)
			return
		}

		deposit, err := near.ParseNearAmount(req.Amount)
		if err != nil {
			logger.DebugContext(r.Context(), "invalid amount", "amount", req.Amount, "error", err)
			writeError(w, fmt.Sprintf("invalid amount: %v", err), http.StatusBadRequest)
			return
		}

		result, err := donations.Donate(r.Context(), req.Amount)
		if err != nil {
			logger.ErrorContext(r.Context(), "donation failed", "amount", req.Amount, "error", err)
			writeDonationError(w, err)
			return
		}

		resp := donateResponse{
			TransactionHash: result.TransactionHash,
			SignerID:        result.SignerID,
			ReceiverID:      result.ReceiverID,
			Amount:          req.Amount,
			DepositYocto:    deposit,
		}

		// The call result is the donor's new total as a JSON string
		var totalYocto string
		if err := json.Unmarshal(result.Value, &totalYocto); err == nil {
			if total, err := near.FormatNearAmount(totalYocto); err == nil {
				resp.Total = total
			}
		}

		if store != nil {
			_, err := store.CreateReceipt(r.Context(), db.CreateReceiptParams{
				TxHash:       result.TransactionHash,
				ContractID:   donations.ContractID(),
				AccountID:    result.SignerID,
				DepositYocto: deposit,
			})
			if err != nil {
				// The transaction is already on chain; the confirmation upserts the receipt.
				logger.WarnContext(r.Context(), "failed to record pending receipt",
					"tx_hash", result.TransactionHash,
					"error", err,
				)
			} else {
				resp.ReceiptRecorded = true
			}
		}

		if confirmer != nil {
			workflowID, err := confirmer.StartConfirmation(r.Context(), temporal.ConfirmDonationInput{
				TxHash:     result.TransactionHash,
				AccountID:  result.SignerID,
				ContractID: donations.ContractID(),
				Timeout:    confirmTimeout(cfg),
			})
			if err != nil {
				logger.WarnContext(r.Context(), "failed to start confirmation",
					"tx_hash", result.TransactionHash,
					"error", err,
				)
			} else {
				resp.ConfirmationWorkflowID = workflowID
			}
		}

		logger.InfoContext(r.Context(), "donation submitted",
			"tx_hash", result.TransactionHash,
			"signer_id", result.SignerID,
			"amount", req.Amount,
		)

		writeJSON(w, resp, http.StatusCreated)
	})
}

// handleDonationFromTransaction returns the total a donate transaction returned.
// GET /api/v1/transactions/{tx_hash}/donation
func handleDonationFromTransaction(donations DonationService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := r.PathValue("tx_hash")

		if err := validateTxHash(txHash); err != nil {
			logger.DebugContext(r.Context(), "invalid transaction hash", "tx_hash", txHash, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		amount, err := donations.GetDonationFromTransaction(r.Context(), txHash)
		if err != nil {
			logger.WarnContext(r.Context(), "failed to resolve transaction", "tx_hash", txHash, "error", err)
			writeDonationError(w, err)
			return
		}

		writeJSON(w, transactionDonationResponse{
			TransactionHash: txHash,
			Amount:          amount,
		}, http.StatusOK)
	})
}

// handleListReceipts lists stored donation receipts for the contract.
// GET /api/v1/receipts?account_id=ACCOUNT&limit=N&offset=N
func handleListReceipts(store ReceiptStore, contractID string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		accountID := query.Get("account_id")

		if accountID != "" {
			if err := validateAccountID(accountID); err != nil {
				logger.DebugContext(r.Context(), "invalid account id", "account_id", accountID, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, offset, err := parsePagination(query.Get("limit"), query.Get("offset"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		receipts, err := store.ListReceipts(r.Context(), db.ListReceiptsParams{
			ContractID: contractID,
			AccountID:  accountID,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list receipts", "account_id", accountID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "receipts listed", "account_id", accountID, "count", len(receipts))

		resp := make([]receiptResponse, len(receipts))
		for i := range receipts {
			resp[i] = receiptToResponse(receipts[i])
		}

		writeJSON(w, receiptsResponse{
			Receipts: resp,
			Count:    len(resp),
			Limit:    limit,
			Offset:   offset,
		}, http.StatusOK)
	})
}

// handleGetReceipt returns one stored receipt.
// GET /api/v1/receipts/{tx_hash}
func handleGetReceipt(store ReceiptStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := r.PathValue("tx_hash")

		if err := validateTxHash(txHash); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		receipt, err := store.GetReceipt(r.Context(), txHash)
		if err != nil {
			if errors.Is(err, db.ErrReceiptNotFound) {
				writeError(w, "receipt not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get receipt", "tx_hash", txHash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, receiptToResponse(receipt), http.StatusOK)
	})
}

// handleGetConfirmation returns the state of a transaction's confirmation workflow.
// GET /api/v1/confirmations/{tx_hash}
func handleGetConfirmation(confirmer temporal.Confirmer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := r.PathValue("tx_hash")

		if err := validateTxHash(txHash); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		confirmation, err := confirmer.GetConfirmation(r.Context(), txHash)
		if err != nil {
			if errors.Is(err, temporal.ErrConfirmationNotFound) {
				writeError(w, "confirmation not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get confirmation", "tx_hash", txHash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, confirmation, http.StatusOK)
	})
}

type donateRequest struct {
	Amount string `json:"amount"`
}

type beneficiaryResponse struct {
	ContractID  string `json:"contract_id"`
	Beneficiary string `json:"beneficiary"`
}

type donationsResponse struct {
	ContractID string              `json:"contract_id"`
	Donations  []donation.Donation `json:"donations"`
	Count      int                 `json:"count"`
}

type donateResponse struct {
	TransactionHash        string `json:"transaction_hash"`
	SignerID               string `json:"signer_id"`
	ReceiverID             string `json:"receiver_id"`
	Amount                 string `json:"amount"`
	DepositYocto           string `json:"deposit_yocto"`
	Total                  string `json:"total,omitempty"`
	ReceiptRecorded        bool   `json:"receipt_recorded"`
	ConfirmationWorkflowID string `json:"confirmation_workflow_id,omitempty"`
}

type transactionDonationResponse struct {
	TransactionHash string `json:"transaction_hash"`
	Amount          string `json:"amount"`
}

type receiptsResponse struct {
	Receipts []receiptResponse `json:"receipts"`
	Count    int               `json:"count"`
	Limit    int32             `json:"limit"`
	Offset   int32             `json:"offset"`
}

// receiptResponse is the JSON response format for a receipt.
type receiptResponse struct {
	TxHash       string     `json:"tx_hash"`
	ContractID   string     `json:"contract_id"`
	AccountID    string     `json:"account_id"`
	DepositYocto *string    `json:"deposit_yocto,omitempty"`
	Deposit      string     `json:"deposit,omitempty"`
	TotalYocto   *string    `json:"total_yocto,omitempty"`
	Total        string     `json:"total,omitempty"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

// receiptToResponse converts a stored receipt to a response, adding NEAR
// formatted amounts next to the yocto values.
func receiptToResponse(r *db.Receipt) receiptResponse {
	resp := receiptResponse{
		TxHash:       r.TxHash,
		ContractID:   r.ContractID,
		AccountID:    r.AccountID,
		DepositYocto: r.DepositYocto,
		TotalYocto:   r.TotalYocto,
		Status:       r.Status,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		ConfirmedAt:  r.ConfirmedAt,
	}
	if r.DepositYocto != nil {
		resp.Deposit, _ = near.FormatNearAmount(*r.DepositYocto)
	}
	if r.TotalYocto != nil {
		resp.Total, _ = near.FormatNearAmount(*r.TotalYocto)
	}
	return resp
}

// writeDonationError maps contract adapter errors to HTTP statuses.
func writeDonationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, donation.ErrAmountParse):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, donation.ErrTransactionNotFound):
		writeError(w, "transaction not found", http.StatusNotFound)
	case errors.Is(err, donation.ErrAmbiguousResult):
		writeError(w, "transaction did not return a donation amount", http.StatusUnprocessableEntity)
	case errors.Is(err, near.ErrReadOnlyWallet):
		writeError(w, "donations are not enabled: no signing account configured", http.StatusServiceUnavailable)
	case errors.Is(err, donation.ErrRemoteCall):
		writeError(w, "donation was rejected", http.StatusBadGateway)
	case errors.Is(err, donation.ErrRemoteQuery):
		writeError(w, "contract query failed", http.StatusBadGateway)
	default:
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

func confirmTimeout(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.ConfirmTimeout <= 0 {
		return temporal.DefaultConfirmTimeout
	}
	return cfg.ConfirmTimeout
}

// parsePagination parses limit (default 50, max 500) and offset (default 0).
func parsePagination(limitStr, offsetStr string) (int32, int32, error) {
	limit := int32(defaultListLimit)
	if limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, errorf("invalid limit parameter: must be an integer")
		}
		if parsed < 1 {
			return 0, 0, errorf("limit must be at least 1")
		}
		if parsed > maxListLimit {
			return 0, 0, errorf("limit cannot exceed %d", maxListLimit)
		}
		limit = int32(parsed)
	}

	offset := int32(0)
	if offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, errorf("invalid offset parameter: must be an integer")
		}
		if parsed < 0 {
			return 0, 0, errorf("offset cannot be negative")
		}
		offset = int32(parsed)
	}

	return limit, offset, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAccountID validates a NEAR account id for security and format.
func validateAccountID(accountID string) error {
	if accountID == "" {
		return errorf("account_id is required")
	}

	if len(accountID) < minAccountIDLength {
		return errorf("account_id too short: minimum length is %d characters", minAccountIDLength)
	}

	if len(accountID) > maxAccountIDLength {
		return errorf("account_id too long: maximum length is %d characters", maxAccountIDLength)
	}

	// Check for null bytes and control characters
	for _, r := range accountID {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in account_id: control characters not allowed")
		}
	}

	if !validAccountIDRegex.MatchString(accountID) {
		return errorf("invalid account_id format: must be lowercase alphanumeric parts separated by '.', '-' or '_'")
	}

	return nil
}

// validateTxHash validates a base58 transaction hash.
func validateTxHash(txHash string) error {
	if txHash == "" {
		return errorf("transaction hash is required")
	}

	if len(txHash) > maxTxHashLength {
		return errorf("transaction hash too long: maximum length is %d characters", maxTxHashLength)
	}

	if !validTxHashRegex.MatchString(txHash) {
		return errorf("invalid transaction hash: must contain only base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
