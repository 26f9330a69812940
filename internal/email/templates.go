package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type taskCreatedEmailData struct {
	baseEmailData
	TaskTitle string
	Priority  string
	DueDate   string
}

type taskOverdueEmailData struct {
	baseEmailData
	TaskTitle string
	DueDate   string
}

type paymentReceiptEmailData struct {
	baseEmailData
	QuoteReference  string
	ReceiptRef      string
	AmountFormatted string
}

func renderEmailTemplate(name string, data any) (string, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// formatAmount renders cents as a money string, e.g. "EUR 1234.56".
func formatAmount(amountCents int64, currency string) string {
	sign := ""
	if amountCents < 0 {
		sign = "-"
		amountCents = -amountCents
	}
	whole := amountCents / 100
	frac := amountCents % 100
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, whole, frac)
}
