package invoice

import (
	"errors"
	"time"
)

var (
	ErrInvalidInvoice = errors.New("invalid invoice")
	ErrNoRepository   = errors.New("invoice repository not configured")
	ErrSaveFailed     = errors.New("save invoice")
)

const DateLayout = "2006-01-02"

type Invoice struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id,omitempty"`
	VendorName    string           `json:"vendor_name"`
	VendorAddress *string          `json:"vendor_address"`
	InvoiceNumber string           `json:"invoice_number"`
	InvoiceDate   time.Time        `json:"invoice_date"`
	DueDate       *time.Time       `json:"due_date"`
	TotalAmount   float64          `json:"total_amount"`
	TaxAmount     *float64         `json:"tax_amount"`
	Currency      string           `json:"currency"`
	LineItems     []map[string]any `json:"line_items"`
	FilePath      string           `json:"file_path"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Status is "paid" once the due date has passed.
func (i *Invoice) Status(now time.Time) string {
	if i.DueDate != nil && i.DueDate.Before(now) {
		return "paid"
	}
	return "unpaid"
}
