package postgres

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/lending-hub/internal/domain/loan"
)

const (
	tableLoans = "loans"

	colLoanID     = "loan_id"
	colBookID     = "book_id"
	colLenderID   = "lender_id"
	colBorrowerID = "borrower_id"
	colStatus     = "status"
	colRequested  = "request_date"
	colVersion    = "version"
)

var loanColumns = []interface{}{
	"id", colLoanID, colBookID, colLenderID, colBorrowerID, colStatus,
	colRequested, "approval_date", "lend_date", "due_date", "return_date", "notes", colVersion,
}

// LoanRepository implements loan.Repository.
type LoanRepository struct {
	db querier
}

func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{db: pool}
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO loans (loan_id, book_id, lender_id, borrower_id, status, request_date, approval_date, lend_date, due_date, return_date, notes, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, l.LoanID, l.BookID, l.LenderID, l.BorrowerID, l.Status, l.RequestDate, l.ApprovalDate, l.LendDate, l.DueDate, l.ReturnDate, l.Notes, l.Version)
	if err := row.Scan(&l.ID); err != nil {
		return translate(err)
	}
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, loanID uuid.UUID) (*loan.Loan, error) {
	query, args, err := dialect().From(tableLoans).Prepared(true).
		Select(loanColumns...).
		Where(goqu.C(colLoanID).Eq(loanID)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	l, err := scanLoan(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return l, nil
}

func (r *LoanRepository) List(ctx context.Context, filter loan.Filter) ([]*loan.Loan, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	loans := make([]*loan.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, translate(err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return loans, nil
}

func buildListQuery(filter loan.Filter) (string, []interface{}, error) {
	where := make([]exp.Expression, 0, 3)
	if filter.UserID != "" {
		switch filter.Role {
		case loan.RoleLender:
			where = append(where, goqu.C(colLenderID).Eq(filter.UserID))
		case loan.RoleBorrower:
			where = append(where, goqu.C(colBorrowerID).Eq(filter.UserID))
		default:
			where = append(where, goqu.Or(
				goqu.C(colLenderID).Eq(filter.UserID),
				goqu.C(colBorrowerID).Eq(filter.UserID),
			))
		}
	}
	if filter.Status != nil {
		where = append(where, goqu.C(colStatus).Eq(string(*filter.Status)))
	}
	if filter.BookID != nil {
		where = append(where, goqu.C(colBookID).Eq(*filter.BookID))
	}

	stmt := dialect().From(tableLoans).Prepared(true).
		Select(loanColumns...).
		Order(goqu.I(colRequested).Desc(), goqu.I("id").Desc())
	if len(where) > 0 {
		stmt = stmt.Where(goqu.And(where...))
	}
	return stmt.ToSQL()
}

func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan, expectedVersion int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE loans
		SET status=$1, approval_date=$2, lend_date=$3, due_date=$4, return_date=$5, notes=$6, version=$7
		WHERE loan_id=$8 AND version=$9
	`, l.Status, l.ApprovalDate, l.LendDate, l.DueDate, l.ReturnDate, l.Notes, l.Version, l.LoanID, expectedVersion)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return loan.Conflictf("loan %s changed concurrently", l.LoanID)
	}
	return nil
}

func (r *LoanRepository) Delete(ctx context.Context, loanID uuid.UUID, expectedVersion int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM loans WHERE loan_id=$1 AND version=$2`, loanID, expectedVersion)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return loan.Conflictf("loan %s changed concurrently", loanID)
	}
	return nil
}

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	if err := row.Scan(
		&l.ID, &l.LoanID, &l.BookID, &l.LenderID, &l.BorrowerID, &l.Status,
		&l.RequestDate, &l.ApprovalDate, &l.LendDate, &l.DueDate, &l.ReturnDate, &l.Notes, &l.Version,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
