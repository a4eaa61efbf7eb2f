package memory

import (
	"context"
	"sort"
	"time"

	billing "solar-portal/internal/billing/domain"
)

type billingStore struct {
	db *DB
}

func (s billingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx billing.Tx) error) error {
	return s.db.withinTx(ctx, func(st *state) error {
		return fn(ctx, billingTx{st: st})
	})
}

type billingTx struct {
	st *state
}

func applicationRef(st *state, id string) *billing.ApplicationRef {
	app, ok := st.applications[id]
	if !ok {
		return nil
	}
	return &billing.ApplicationRef{ID: app.ID, CustomerID: app.CustomerID, InstallerOrganizationID: app.InstallerOrganizationID}
}

func (t billingTx) GetApplication(_ context.Context, id string) (*billing.ApplicationRef, error) {
	return applicationRef(t.st, id), nil
}

func (t billingTx) InsertReading(_ context.Context, reading *billing.MeterReading) error {
	if _, ok := t.st.readings[reading.ID]; ok {
		return errDuplicate
	}
	if _, ok := t.st.applications[reading.ApplicationID]; !ok {
		return billing.ErrApplicationNotFound
	}
	t.st.readings[reading.ID] = *reading
	return nil
}

func inPeriod(ts time.Time, period billing.Period) bool {
	return !ts.Before(period.Start()) && ts.Before(period.End())
}

func (t billingTx) SumReadings(_ context.Context, applicationID string, period billing.Period) (billing.ReadingTotals, error) {
	var totals billing.ReadingTotals
	for _, r := range t.st.readings {
		if r.ApplicationID == applicationID && inPeriod(r.ReadingDate, period) {
			totals = totals.Add(r)
		}
	}
	return totals, nil
}

func (t billingTx) BillingCandidates(_ context.Context, period billing.Period) ([]billing.Candidate, error) {
	seen := make(map[string]struct{})
	for _, r := range t.st.readings {
		if inPeriod(r.ReadingDate, period) {
			seen[r.ApplicationID] = struct{}{}
		}
	}
	out := make([]billing.Candidate, 0, len(seen))
	for appID := range seen {
		ref := applicationRef(t.st, appID)
		if ref == nil {
			continue
		}
		out = append(out, billing.Candidate{
			ApplicationID: appID,
			CustomerID:    ref.CustomerID,
			HasBill:       t.monthlyBill(appID, period) != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationID < out[j].ApplicationID })
	return out, nil
}

func (t billingTx) monthlyBill(applicationID string, period billing.Period) *billing.Invoice {
	for _, inv := range t.st.invoices {
		if inv.Type == billing.InvoiceMonthlyBill && inv.ApplicationID == applicationID &&
			inv.BillingPeriod != nil && *inv.BillingPeriod == period {
			return &inv
		}
	}
	return nil
}

func (t billingTx) InsertMonthlyBill(_ context.Context, inv *billing.Invoice) (bool, error) {
	if inv.BillingPeriod == nil {
		return false, billing.ErrInvalidPeriod
	}
	if t.monthlyBill(inv.ApplicationID, *inv.BillingPeriod) != nil {
		return false, nil
	}
	if _, ok := t.st.invoices[inv.ID]; ok {
		return false, errDuplicate
	}
	t.st.invoices[inv.ID] = *inv
	return true, nil
}

func (t billingTx) GetInvoice(_ context.Context, id string) (*billing.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (t billingTx) ListInvoices(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	out := []billing.Invoice{}
	for _, inv := range t.st.invoices {
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.InstallerID != "" && inv.InstallerID != filter.InstallerID {
			continue
		}
		if filter.ApplicationID != "" && inv.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.Type != "" && inv.Type != filter.Type {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.Period != nil && (inv.BillingPeriod == nil || *inv.BillingPeriod != *filter.Period) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t billingTx) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, inv := range t.st.invoices {
		if inv.MarkOverdue(now) {
			t.st.invoices[id] = inv
			n++
		}
	}
	return n, nil
}
