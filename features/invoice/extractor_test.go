package invoice_test

import (
	"bytes"
	"context"
	"log/slog"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docrag/features/invoice"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, inv *invoice.Invoice) error {
	args := m.Called(ctx, inv)
	if args.Error(0) == nil {
		inv.ID = "inv-1"
	}
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context, p invoice.ListParams) ([]invoice.Invoice, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]invoice.Invoice), args.Error(1)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

const validJSON = `{
  "vendor_name": "ACME Corp",
  "vendor_address": "1 Road",
  "invoice_number": "INV-001",
  "invoice_date": "2024-03-01",
  "due_date": "2024-03-31",
  "total_amount": 120.0,
  "tax_amount": 10.0,
  "currency": "eur",
  "line_items": [{"description": "widgets", "amount": 110}]
}`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"valid", validJSON, ""},
		{"fenced", "```json\n" + validJSON + "\n```", ""},
		{"not json", "Sure! Here is the invoice.", "decode"},
		{"missing required", `{"vendor_name":"A","invoice_date":"2024-01-01"}`, "missing invoice_number, total_amount"},
		{"slashed date", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024/01/01","total_amount":1}`, "invoice_date must be YYYY-MM-DD"},
		{"short date", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-1-01","total_amount":1}`, "invoice_date must be YYYY-MM-DD"},
		{"impossible date", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-13-01","total_amount":1}`, "invoice_date"},
		{"bad due date", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-01-01","due_date":"soon","total_amount":1}`, "due_date must be YYYY-MM-DD"},
		{"four letter currency", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-01-01","total_amount":1,"currency":"EURO"}`, "currency must be a 3-letter code"},
		{"currency symbol", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-01-01","total_amount":1,"currency":"$"}`, "currency must be a 3-letter code"},
		{"amount as string", `{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-01-01","total_amount":"1.00"}`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := invoice.Parse(tt.raw)
			if tt.wantErr != "" {
				assert.ErrorIs(t, err, invoice.ErrInvalidInvoice)
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, inv)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ACME Corp", inv.VendorName)
			assert.Equal(t, "EUR", inv.Currency)
			assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)
			require.NotNil(t, inv.DueDate)
			assert.InDelta(t, 10.0, *inv.TaxAmount, 1e-9)
			assert.Len(t, inv.LineItems, 1)
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	inv, err := invoice.Parse(`{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-01-01","due_date":null,"total_amount":5}`)
	require.NoError(t, err)
	assert.Equal(t, "USD", inv.Currency)
	assert.Nil(t, inv.DueDate)
	assert.Nil(t, inv.TaxAmount)
	assert.NotNil(t, inv.LineItems)
}

func TestExtractor_ExtractAndSave(t *testing.T) {
	llm := new(MockCompleter)
	repo := new(MockRepo)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "Invoice #INV-001")
	})).Return(validJSON, nil)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(inv *invoice.Invoice) bool {
		return inv.FilePath == "/uploads/a.pdf" && inv.OwnerID == "owner-1"
	})).Return(nil)

	ex := invoice.NewExtractor(llm, repo)
	inv, err := ex.ExtractAndSave(context.Background(), "Invoice #INV-001 Total", "/uploads/a.pdf", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv.ID)
	repo.AssertNumberOfCalls(t, "Save", 1)
}

func TestExtractor_FailuresNeverSave(t *testing.T) {
	t.Run("llm error", func(t *testing.T) {
		llm := new(MockCompleter)
		repo := new(MockRepo)
		llm.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("timeout"))

		_, err := invoice.NewExtractor(llm, repo).ExtractAndSave(context.Background(), "x", "p", "")
		assert.ErrorContains(t, err, "timeout")
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("malformed response", func(t *testing.T) {
		llm := new(MockCompleter)
		repo := new(MockRepo)
		llm.On("Complete", mock.Anything, mock.Anything).Return("{", nil)

		_, err := invoice.NewExtractor(llm, repo).ExtractAndSave(context.Background(), "x", "p", "")
		assert.ErrorIs(t, err, invoice.ErrInvalidInvoice)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestExtractor_SaveErrors(t *testing.T) {
	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.Anything).Return(validJSON, nil)

	_, err := invoice.NewExtractor(llm, nil).ExtractAndSave(context.Background(), "x", "p", "")
	assert.ErrorIs(t, err, invoice.ErrNoRepository)

	repo := new(MockRepo)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("unique violation"))
	_, err = invoice.NewExtractor(llm, repo).ExtractAndSave(context.Background(), "x", "p", "")
	assert.ErrorIs(t, err, invoice.ErrSaveFailed)
	assert.ErrorContains(t, err, "save invoice: unique violation")
}

func TestExtractor_MalformedCurrencyNeverReachesSave(t *testing.T) {
	llm := new(MockCompleter)
	repo := new(MockRepo)
	llm.On("Complete", mock.Anything, mock.Anything).
		Return(`{"vendor_name":"A","invoice_number":"1","invoice_date":"2024-01-01","total_amount":1,"currency":"EURO"}`, nil)

	_, err := invoice.NewExtractor(llm, repo).ExtractAndSave(context.Background(), "x", "p", "")
	assert.ErrorIs(t, err, invoice.ErrInvalidInvoice)
	assert.NotErrorIs(t, err, invoice.ErrSaveFailed)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestExtractor_UsesInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.Anything).Return("{", nil)

	_, err := invoice.NewExtractor(llm, nil, invoice.WithLogger(logger)).Extract(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "invoice response rejected")
	assert.NotContains(t, buf.String(), "extracting invoice data")
}
