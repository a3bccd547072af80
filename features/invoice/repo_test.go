package invoice_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/features/invoice"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := invoice.NewPostgresRepo(db)
	created := time.Now()
	inv := &invoice.Invoice{
		VendorName:    "ACME",
		InvoiceNumber: "INV-1",
		InvoiceDate:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		TotalAmount:   99.5,
		Currency:      "USD",
		LineItems:     []map[string]any{},
		FilePath:      "/a.pdf",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invoices (owner_id, vendor_name, vendor_address, invoice_number, invoice_date, due_date, total_amount, tax_amount, currency, line_items, file_path) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id, created_at")).
		WithArgs(nil, "ACME", nil, "INV-1", inv.InvoiceDate, nil, 99.5, nil, "USD", []byte("[]"), "/a.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("uuid-1", created))

	require.NoError(t, repo.Save(context.Background(), inv))
	assert.Equal(t, "uuid-1", inv.ID)
	assert.Equal(t, created, inv.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := invoice.NewPostgresRepo(db)
	cols := []string{"id", "owner_id", "vendor_name", "vendor_address", "invoice_number", "invoice_date", "due_date", "total_amount", "tax_amount", "currency", "line_items", "file_path", "created_at"}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("ByOwner", func(t *testing.T) {
		rows := sqlmock.NewRows(cols).
			AddRow("1", "o1", "ACME", "1 Road", "INV-1", day, day, 10.0, 1.0, "USD", []byte(`[{"sku":"a"}]`), "/a.pdf", day).
			AddRow("2", nil, "Beta", nil, "INV-2", day, nil, 5.0, nil, "EUR", nil, "/b.pdf", day)
		mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE owner_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3")).
			WithArgs("o1", 0, 10).
			WillReturnRows(rows)

		got, err := repo.List(context.Background(), invoice.ListParams{OwnerID: "o1", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "1 Road", *got[0].VendorAddress)
		assert.Equal(t, "a", got[0].LineItems[0]["sku"])
		assert.Nil(t, got[1].DueDate)
		assert.Nil(t, got[1].TaxAmount)
		assert.Equal(t, "", got[1].OwnerID)
	})

	t.Run("All", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM invoices ORDER BY created_at DESC OFFSET $1 LIMIT $2")).
			WithArgs(20, 5).
			WillReturnRows(sqlmock.NewRows(cols))

		got, err := repo.List(context.Background(), invoice.ListParams{Skip: 20, Limit: 5})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM invoices")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := invoice.NewPostgresRepo(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
