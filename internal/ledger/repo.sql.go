package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/platform/db"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository exposes ledger writes on a transaction owned by another module.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx runs fn at READ COMMITTED so concurrent posters queue on the sequence row
// instead of failing serialization. Deadlocks are retried by db.WithTx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if errors.Is(err, db.ErrTxRetriesExhausted) {
		return errors.Join(ErrSequenceContention, err)
	}
	return err
}

func (r *txRepository) AccountsByCode(ctx context.Context, tenantID string, codes []string) (map[string]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, code, name, type, normal_balance, is_active, created_at
FROM accounts WHERE tenant_id=$1 AND code = ANY($2)`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]Account, len(codes))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.Code] = a
	}
	return out, rows.Err()
}

// ClosedPeriodCovering share-locks every period row covering date so a concurrent
// close either waits for this posting to commit or is seen as CLOSED here.
func (r *txRepository) ClosedPeriodCovering(ctx context.Context, tenantID string, date time.Time) (*PeriodRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, start_date, end_date, status FROM reporting_periods
WHERE tenant_id=$1 AND $2::date BETWEEN start_date AND end_date
ORDER BY start_date FOR SHARE`, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var closed *PeriodRef
	for rows.Next() {
		var ref PeriodRef
		var status string
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.StartDate, &ref.EndDate, &status); err != nil {
			return nil, err
		}
		if status == "CLOSED" && closed == nil {
			found := ref
			closed = &found
		}
	}
	return closed, rows.Err()
}

func (r *txRepository) NextEntrySequence(ctx context.Context, tenantID string) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_sequences (tenant_id, last_number) VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET last_number = entry_sequences.last_number + 1, updated_at = NOW()
RETURNING last_number`, tenantID).Scan(&next)
	return next, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, sequence, entry_number, description, transaction_date,
total_amount, status, reference_type, reference_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),NULLIF($10,'')) RETURNING id, created_at`,
		e.TenantID, e.Sequence, e.Number, e.Description, e.TransactionDate, e.TotalAmount,
		string(e.Status), string(e.ReferenceType), e.ReferenceID, e.CreatedBy).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LedgerLine) ([]LedgerLine, error) {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO ledger_entries (tenant_id, journal_entry_id, line_no, account_id, debit_amount, credit_amount,
description, transaction_date, reference_type, reference_id)
SELECT tenant_id, id, $2, $3, $4, $5, $6, transaction_date, reference_type, reference_id FROM journal_entries WHERE id=$1
RETURNING id`, entryID, l.LineNo, l.AccountID, nullAmount(l.Debit), nullAmount(l.Credit), l.Description)
	}
	br := r.tx.SendBatch(ctx, batch)
	out := make([]LedgerLine, len(lines))
	for i, l := range lines {
		if err := br.QueryRow().Scan(&l.ID); err != nil {
			_ = br.Close()
			return nil, err
		}
		l.EntryID = entryID
		out[i] = l
	}
	if err := br.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *txRepository) LinkSource(ctx context.Context, tenantID string, source SourceKey, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (tenant_id, source, idempotency_key, journal_entry_id) VALUES ($1,$2,$3,$4)`,
		tenantID, source.Name, source.Key, entryID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_source_links") {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

// GetAccount loads one account by code.
func (r *Repository) GetAccount(ctx context.Context, tenantID, code string) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, type, normal_balance, is_active, created_at
FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// ListAccounts loads the tenant chart ordered by code.
func (r *Repository) ListAccounts(ctx context.Context, tenantID string) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, code, name, type, normal_balance, is_active, created_at
FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetEntry loads an entry and its lines.
func (r *Repository) GetEntry(ctx context.Context, tenantID, number string) (JournalEntry, error) {
	var e JournalEntry
	var refID, createdBy *string
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, entry_number, sequence, description, transaction_date, total_amount,
status, reference_type, reference_id, created_by, created_at
FROM journal_entries WHERE tenant_id=$1 AND entry_number=$2`, tenantID, number).
		Scan(&e.ID, &e.TenantID, &e.Number, &e.Sequence, &e.Description, &e.TransactionDate, &e.TotalAmount,
			&e.Status, &e.ReferenceType, &refID, &createdBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	e.ReferenceID = deref(refID)
	e.CreatedBy = deref(createdBy)
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.journal_entry_id, l.line_no, l.account_id, a.code, l.debit_amount, l.credit_amount,
l.description, l.transaction_date, l.reference_type, l.reference_id
FROM ledger_entries l JOIN accounts a ON a.id = l.account_id
WHERE l.journal_entry_id=$1 ORDER BY l.line_no`, e.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l LedgerLine
		var debit, credit decimal.NullDecimal
		var lineRef *string
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.AccountCode, &debit, &credit,
			&l.Description, &l.TransactionDate, &l.ReferenceType, &lineRef); err != nil {
			return JournalEntry{}, err
		}
		l.Debit = debit.Decimal
		l.Credit = credit.Decimal
		l.ReferenceID = deref(lineRef)
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.Active, &a.CreatedAt)
	return a, err
}

func nullAmount(d decimal.Decimal) any {
	if d.IsZero() {
		return nil
	}
	return d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
