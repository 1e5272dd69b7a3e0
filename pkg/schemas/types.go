package schemas

// ExtractionSchema is the default shape the extraction agent fills in for a document.
type ExtractionSchema struct {
	DocumentType string   `json:"document_type" jsonschema_description:"An overarching category for the type of document (e.g. invoice, purchase order, etc.)"`
	Summary      string   `json:"summary" jsonschema_description:"A 2-3 sentence summary describing the content of the document"`
	KeyPoints    []string `json:"key_points" jsonschema_description:"A list of key points or insights from the document"`
}

// InvoiceSchema is the invoice variant used by the reference project.
type InvoiceSchema struct {
	InvoiceDate     *string    `json:"invoice_date,omitempty" jsonschema_description:"The date of the invoice"`
	TotalWithTax    *float64   `json:"total_with_tax,omitempty" jsonschema_description:"The total amount including tax. Sometimes this is referred to as Invoice total after WHT, beware."`
	TotalWithoutTax *float64   `json:"total_without_tax,omitempty" jsonschema_description:"The total amount excluding tax"`
	Currency        *string    `json:"currency,omitempty" jsonschema_description:"The currency code (e.g., USD, EUR, GBP). Use the ISO 4217 currency code."`
	InvoiceID       *string    `json:"invoice_id,omitempty" jsonschema_description:"The invoice ID or number provided by the vendor"`
	VendorName      *string    `json:"vendor_name,omitempty" jsonschema_description:"The name of the vendor or supplier"`
	LineItems       []LineItem `json:"line_items,omitempty" jsonschema_description:"The line items of the invoice"`
}

// LineItem is one row of an invoice.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty" jsonschema_description:"The quantity of the line item"`
	UnitPrice   *float64 `json:"unit_price,omitempty" jsonschema_description:"The unit price of the line item"`
	Date        *string  `json:"date,omitempty" jsonschema_description:"The date of the line item"`
	TotalPrice  *float64 `json:"total_price,omitempty" jsonschema_description:"The total price of the line item"`
}
