package invoice

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type ListParams struct {
	OwnerID string
	Skip    int
	Limit   int
}

type Repository interface {
	Save(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, p ListParams) ([]Invoice, error)
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresRepo) Save(ctx context.Context, inv *Invoice) error {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}
	query := `INSERT INTO invoices (owner_id, vendor_name, vendor_address, invoice_number, invoice_date, due_date, total_amount, tax_amount, currency, line_items, file_path) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		nullString(inv.OwnerID), inv.VendorName, inv.VendorAddress, inv.InvoiceNumber,
		inv.InvoiceDate, inv.DueDate, inv.TotalAmount, inv.TaxAmount, inv.Currency,
		items, inv.FilePath,
	).Scan(&inv.ID, &inv.CreatedAt)
}

const selectColumns = `SELECT id, owner_id, vendor_name, vendor_address, invoice_number, invoice_date, due_date, total_amount, tax_amount, currency, line_items, file_path, created_at FROM invoices`

func (r *PostgresRepo) List(ctx context.Context, p ListParams) ([]Invoice, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if p.OwnerID != "" {
		rows, err = r.db.QueryContext(ctx, selectColumns+` WHERE owner_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`, p.OwnerID, p.Skip, p.Limit)
	} else {
		rows, err = r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC OFFSET $1 LIMIT $2`, p.Skip, p.Limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var (
			inv     Invoice
			owner   sql.NullString
			address sql.NullString
			due     sql.NullTime
			tax     sql.NullFloat64
			items   []byte
		)
		if err := rows.Scan(&inv.ID, &owner, &inv.VendorName, &address, &inv.InvoiceNumber, &inv.InvoiceDate, &due, &inv.TotalAmount, &tax, &inv.Currency, &items, &inv.FilePath, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.OwnerID = owner.String
		if address.Valid {
			inv.VendorAddress = &address.String
		}
		if due.Valid {
			inv.DueDate = &due.Time
		}
		if tax.Valid {
			inv.TaxAmount = &tax.Float64
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &inv.LineItems); err != nil {
				return nil, fmt.Errorf("decode line items for %s: %w", inv.ID, err)
			}
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count)
	return count, err
}
