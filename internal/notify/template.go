package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

// DefaultTemplates render each notification kind as plain text.
var DefaultTemplates = map[Kind]string{
	KindPaymentApproved: `[Payment approved]
Invoice: {{.InvoiceID}}
Customer: {{.CustomerID}}
{{- if .ApplicationID}}
Application: {{.ApplicationID}}
{{- end}}
Amount: {{.Amount.StringFixed 2}}
Status: {{.Status}}
Paid at: {{.PaidAt.Format "2006-01-02 15:04 MST"}}`,
	KindSessionExpired: `[Bid session expired]
Application: {{.ApplicationID}}
Session: {{.SessionID}}
Deadline: {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}`,
	KindBidSelected: `[Installer selected]
Application: {{.ApplicationID}}
Bid: {{.BidID}}
Organization: {{.OrganizationID}}
Price: {{.Price.StringFixed 2}}
Other bids rejected: {{.RejectedBids}}`,
}

// Templates renders notification content per kind.
type Templates struct {
	byKind map[Kind]*template.Template
}

// NewTemplates parses overrides on top of DefaultTemplates.
func NewTemplates(overrides map[Kind]string) (*Templates, error) {
	out := &Templates{byKind: make(map[Kind]*template.Template, len(DefaultTemplates))}
	for kind, text := range DefaultTemplates {
		if custom, ok := overrides[kind]; ok && custom != "" {
			text = custom
		}
		parsed, err := template.New(string(kind)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("notify template %s: %w", kind, err)
		}
		out.byKind[kind] = parsed
	}
	return out, nil
}

// Render applies the template for kind to data.
func (t *Templates) Render(kind Kind, data any) (string, error) {
	if t == nil {
		return "", errors.New("notify template: nil")
	}
	tpl, ok := t.byKind[kind]
	if !ok {
		return "", fmt.Errorf("notify template: unknown kind %s", kind)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
