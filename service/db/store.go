package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/brojonat/neardonate/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

const receiptsTable = "donation_receipts"

// Receipt statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// ErrReceiptNotFound is returned when no receipt exists for a transaction hash.
var ErrReceiptNotFound = errors.New("receipt not found")

// Store provides database operations for donation receipts.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Receipt is a donate transaction the service submitted or confirmed.
// Amounts are yoctoNEAR integer strings.
type Receipt struct {
	TxHash       string
	ContractID   string
	AccountID    string
	DepositYocto *string // nil when the receipt was created by confirmation only
	TotalYocto   *string // cumulative total the contract returned, once confirmed
	Status       string
	Error        *string
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
}

// CreateReceiptParams contains the parameters for recording a submitted donation.
type CreateReceiptParams struct {
	TxHash       string
	ContractID   string
	AccountID    string
	DepositYocto string
}

// ConfirmReceiptParams contains the parameters for confirming a donation.
type ConfirmReceiptParams struct {
	TxHash     string
	ContractID string
	AccountID  string
	TotalYocto string
}

// FailReceiptParams contains the parameters for marking a donation failed.
type FailReceiptParams struct {
	TxHash     string
	ContractID string
	AccountID  string
	Reason     string
}

// ListReceiptsParams contains filter and pagination parameters.
type ListReceiptsParams struct {
	ContractID string
	AccountID  string // optional
	Limit      int32
	Offset     int32
}

const receiptColumns = `tx_hash, contract_id, account_id, deposit_yocto, total_yocto, status, error, created_at, confirmed_at`

// Migrate applies the embedded schema migrations in filename order.
// Every migration is idempotent.
func (s *Store) Migrate(ctx context.Context) (err error) {
	defer func(start time.Time) { s.record("migrate", start, err) }(time.Now())

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

// CreateReceipt records a submitted donation as pending. Recording the same
// transaction twice returns the existing receipt unchanged.
func (s *Store) CreateReceipt(ctx context.Context, params CreateReceiptParams) (receipt *Receipt, err error) {
	defer func(start time.Time) { s.record("create_receipt", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO donation_receipts (tx_hash, contract_id, account_id, deposit_yocto, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (tx_hash) DO UPDATE SET tx_hash = EXCLUDED.tx_hash
		RETURNING `+receiptColumns,
		params.TxHash, params.ContractID, params.AccountID, params.DepositYocto,
	)
	receipt, err = scanReceipt(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}
	return receipt, nil
}

// ConfirmReceipt marks a donation confirmed with the total the contract
// returned, creating the receipt if it was never recorded as pending.
func (s *Store) ConfirmReceipt(ctx context.Context, params ConfirmReceiptParams) (receipt *Receipt, err error) {
	defer func(start time.Time) { s.record("confirm_receipt", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO donation_receipts (tx_hash, contract_id, account_id, total_yocto, status, confirmed_at)
		VALUES ($1, $2, $3, $4, 'confirmed', now())
		ON CONFLICT (tx_hash) DO UPDATE SET
			total_yocto  = EXCLUDED.total_yocto,
			status       = 'confirmed',
			error        = NULL,
			confirmed_at = COALESCE(donation_receipts.confirmed_at, EXCLUDED.confirmed_at)
		RETURNING `+receiptColumns,
		params.TxHash, params.ContractID, params.AccountID, params.TotalYocto,
	)
	receipt, err = scanReceipt(row)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm receipt: %w", err)
	}
	return receipt, nil
}

// FailReceipt marks a donation failed with the given reason. A confirmed
// receipt is never downgraded.
func (s *Store) FailReceipt(ctx context.Context, params FailReceiptParams) (receipt *Receipt, err error) {
	defer func(start time.Time) { s.record("fail_receipt", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO donation_receipts (tx_hash, contract_id, account_id, status, error)
		VALUES ($1, $2, $3, 'failed', $4)
		ON CONFLICT (tx_hash) DO UPDATE SET
			status = CASE WHEN donation_receipts.status = 'confirmed' THEN donation_receipts.status ELSE 'failed' END,
			error  = CASE WHEN donation_receipts.status = 'confirmed' THEN donation_receipts.error ELSE EXCLUDED.error END
		RETURNING `+receiptColumns,
		params.TxHash, params.ContractID, params.AccountID, params.Reason,
	)
	receipt, err = scanReceipt(row)
	if err != nil {
		return nil, fmt.Errorf("failed to mark receipt failed: %w", err)
	}
	return receipt, nil
}

// GetReceipt retrieves the receipt for a transaction hash.
func (s *Store) GetReceipt(ctx context.Context, txHash string) (receipt *Receipt, err error) {
	defer func(start time.Time) { s.record("get_receipt", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM donation_receipts WHERE tx_hash = $1`, txHash)
	receipt, err = scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns a contract's receipts, newest first.
func (s *Store) ListReceipts(ctx context.Context, params ListReceiptsParams) (receipts []*Receipt, err error) {
	defer func(start time.Time) { s.record("list_receipts", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+receiptColumns+`
		FROM donation_receipts
		WHERE contract_id = $1 AND ($2 = '' OR account_id = $2)
		ORDER BY created_at DESC, tx_hash
		LIMIT $3 OFFSET $4`,
		params.ContractID, params.AccountID, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	receipts = make([]*Receipt, 0)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return receipts, nil
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, receiptsTable, time.Since(start).Seconds(), err)
	}
}

// Helper functions to convert between pgx types and domain types

func scanReceipt(row pgx.Row) (*Receipt, error) {
	var (
		r           Receipt
		deposit     pgtype.Text
		total       pgtype.Text
		errText     pgtype.Text
		createdAt   pgtype.Timestamptz
		confirmedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&r.TxHash,
		&r.ContractID,
		&r.AccountID,
		&deposit,
		&total,
		&r.Status,
		&errText,
		&createdAt,
		&confirmedAt,
	); err != nil {
		return nil, err
	}
	r.DepositYocto = stringPtrFromPgtext(deposit)
	r.TotalYocto = stringPtrFromPgtext(total)
	r.Error = stringPtrFromPgtext(errText)
	r.CreatedAt = createdAt.Time
	r.ConfirmedAt = timePtrFromPgTimestamptz(confirmedAt)
	return &r, nil
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
