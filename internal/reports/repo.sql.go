package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgRepository aggregates ledger lines in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// AccountActivity sums every active account, including those without lines in the window.
func (r *PgRepository) AccountActivity(ctx context.Context, q ActivityQuery) ([]AccountActivity, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.code, a.name, a.type, a.normal_balance,
COALESCE(SUM(l.debit_amount), 0), COALESCE(SUM(l.credit_amount), 0)
FROM accounts a
LEFT JOIN ledger_entries l ON l.account_id = a.id
	AND ($2::date IS NULL OR l.transaction_date >= $2::date)
	AND l.transaction_date <= $3::date
	AND ($4 = '' OR l.reference_type <> $4)
WHERE a.tenant_id = $1 AND a.is_active
GROUP BY a.code, a.name, a.type, a.normal_balance
ORDER BY a.code`, q.TenantID, nullableDate(q.From), q.To, string(q.ExcludeReference))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PgRepository) CashLines(ctx context.Context, tenantID string, codes []string, from, to time.Time) ([]CashLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT j.entry_number, a.code, COALESCE(NULLIF(l.description, ''), j.description),
l.transaction_date, l.reference_type, COALESCE(l.debit_amount, 0), COALESCE(l.credit_amount, 0)
FROM ledger_entries l
JOIN accounts a ON a.id = l.account_id
JOIN journal_entries j ON j.id = l.journal_entry_id
WHERE l.tenant_id = $1 AND a.code = ANY($2) AND l.transaction_date BETWEEN $3::date AND $4::date
ORDER BY l.transaction_date, j.sequence, l.line_no`, tenantID, codes, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CashLine
	for rows.Next() {
		var l CashLine
		if err := rows.Scan(&l.EntryNumber, &l.AccountCode, &l.Description, &l.TransactionDate, &l.ReferenceType, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PgRepository) CashBalance(ctx context.Context, tenantID string, codes []string, before time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(COALESCE(l.debit_amount, 0) - COALESCE(l.credit_amount, 0)), 0)
FROM ledger_entries l JOIN accounts a ON a.id = l.account_id
WHERE l.tenant_id = $1 AND a.code = ANY($2) AND l.transaction_date < $3::date`, tenantID, codes, before).Scan(&balance)
	return balance, err
}

var _ Repository = (*PgRepository)(nil)
