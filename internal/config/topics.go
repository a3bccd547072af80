package config

const (
	// TopicInvoiceAudit is the default NSQ topic for invoice side-path audit events.
	TopicInvoiceAudit = "invoice.audit"
)
