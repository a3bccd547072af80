package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Completer is the LLM collaborator: one prompt in, raw text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const promptTemplate = `You are an expert accounting assistant. Extract structured invoice data.
Respond with a single JSON object with these keys:
  "vendor_name": string, full name of the vendor or company (required)
  "vendor_address": string or null
  "invoice_number": string, unique invoice identifier (required)
  "invoice_date": string, YYYY-MM-DD (required)
  "due_date": string YYYY-MM-DD or null
  "total_amount": number, total including tax (required)
  "tax_amount": number or null
  "currency": string, ISO code such as USD or EUR
  "line_items": array of objects

RULES:
- Return ONLY valid JSON.
- Omit missing fields or set them to null.
- Dates: YYYY-MM-DD.
- total_amount includes tax.

Text:
%s`

type payload struct {
	VendorName    *string          `json:"vendor_name"`
	VendorAddress *string          `json:"vendor_address"`
	InvoiceNumber *string          `json:"invoice_number"`
	InvoiceDate   *string          `json:"invoice_date"`
	DueDate       *string          `json:"due_date"`
	TotalAmount   *float64         `json:"total_amount"`
	TaxAmount     *float64         `json:"tax_amount"`
	Currency      *string          `json:"currency"`
	LineItems     []map[string]any `json:"line_items"`
}

type Extractor struct {
	llm    Completer
	repo   Repository
	logger *slog.Logger
}

type ExtractorOption func(*Extractor)

func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewExtractor(llm Completer, repo Repository, opts ...ExtractorOption) *Extractor {
	e := &Extractor{llm: llm, repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, text string) (*Invoice, error) {
	e.logger.InfoContext(ctx, "extracting invoice data", "length", len(text))
	raw, err := e.llm.Complete(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}
	inv, err := Parse(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "invoice response rejected", "error", err)
		return nil, err
	}
	e.logger.InfoContext(ctx, "invoice extracted", "invoice_number", inv.InvoiceNumber, "vendor", inv.VendorName)
	return inv, nil
}

func (e *Extractor) Save(ctx context.Context, inv *Invoice) error {
	if e.repo == nil {
		return ErrNoRepository
	}
	if err := e.repo.Save(ctx, inv); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	e.logger.InfoContext(ctx, "invoice saved", "id", inv.ID, "invoice_number", inv.InvoiceNumber)
	return nil
}

// ExtractAndSave runs one extraction attempt and commits the result once.
func (e *Extractor) ExtractAndSave(ctx context.Context, text, filePath, ownerID string) (*Invoice, error) {
	inv, err := e.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	inv.FilePath = filePath
	inv.OwnerID = ownerID
	if err := e.Save(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Parse validates an LLM answer against the invoice schema. Code fences
// around the JSON are tolerated, anything else is a hard failure.
func Parse(raw string) (*Invoice, error) {
	body := stripFences(raw)

	var p payload
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidInvoice, err)
	}

	var missing []string
	if p.VendorName == nil || strings.TrimSpace(*p.VendorName) == "" {
		missing = append(missing, "vendor_name")
	}
	if p.InvoiceNumber == nil || strings.TrimSpace(*p.InvoiceNumber) == "" {
		missing = append(missing, "invoice_number")
	}
	if p.InvoiceDate == nil {
		missing = append(missing, "invoice_date")
	}
	if p.TotalAmount == nil {
		missing = append(missing, "total_amount")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidInvoice, strings.Join(missing, ", "))
	}

	invoiceDate, err := parseDate("invoice_date", *p.InvoiceDate)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		VendorName:    strings.TrimSpace(*p.VendorName),
		VendorAddress: p.VendorAddress,
		InvoiceNumber: strings.TrimSpace(*p.InvoiceNumber),
		InvoiceDate:   invoiceDate,
		TotalAmount:   *p.TotalAmount,
		TaxAmount:     p.TaxAmount,
		Currency:      "USD",
		LineItems:     p.LineItems,
	}
	if p.DueDate != nil && *p.DueDate != "" {
		due, err := parseDate("due_date", *p.DueDate)
		if err != nil {
			return nil, err
		}
		inv.DueDate = &due
	}
	if p.Currency != nil && strings.TrimSpace(*p.Currency) != "" {
		cur, err := parseCurrency(*p.Currency)
		if err != nil {
			return nil, err
		}
		inv.Currency = cur
	}
	if inv.LineItems == nil {
		inv.LineItems = []map[string]any{}
	}
	return inv, nil
}

func parseDate(field, v string) (time.Time, error) {
	if len(v) != 10 || v[4] != '-' || v[7] != '-' {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrInvalidInvoice, field, v)
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidInvoice, field, err)
	}
	return t, nil
}

// parseCurrency accepts a three-letter ISO 4217 style code, matching the
// width of the invoices.currency column.
func parseCurrency(v string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(v))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrInvalidInvoice, v)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrInvalidInvoice, v)
		}
	}
	return code, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
