// Package memory is an in-process implementation of the bidding, billing and payment
// gateways over one shared state. Units of work are serialized and rolled back on error.
package memory

import (
	"context"
	"sort"
	"sync"

	bidding "solar-portal/internal/bidding/domain"
	billing "solar-portal/internal/billing/domain"
	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/apperr"
	"solar-portal/internal/platform/database"
)

var errDuplicate = apperr.New(apperr.Conflict, "duplicate key")

type state struct {
	applications map[string]bidding.Application
	sessions     map[string]bidding.Session
	sessionByApp map[string]string
	bids         map[string]bidding.Bid
	readings     map[string]billing.MeterReading
	invoices     map[string]billing.Invoice
	payments     map[string]payments.Transaction
}

func newState() *state {
	return &state{
		applications: make(map[string]bidding.Application),
		sessions:     make(map[string]bidding.Session),
		sessionByApp: make(map[string]string),
		bids:         make(map[string]bidding.Bid),
		readings:     make(map[string]billing.MeterReading),
		invoices:     make(map[string]billing.Invoice),
		payments:     make(map[string]payments.Transaction),
	}
}

// clone copies every table. Rows are values and are replaced, never mutated in place.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.applications {
		out.applications[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.sessionByApp {
		out.sessionByApp[k] = v
	}
	for k, v := range s.bids {
		out.bids[k] = v
	}
	for k, v := range s.readings {
		out.readings[k] = v
	}
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	return out
}

// DB holds the shared state.
type DB struct {
	mu    sync.Mutex
	state *state
}

// New constructs an empty DB.
func New() *DB {
	return &DB{state: newState()}
}

func (db *DB) withinTx(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return database.Classify(err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	snapshot := db.state.clone()
	if err := fn(db.state); err != nil {
		db.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		db.state = snapshot
		return database.Classify(err)
	}
	return nil
}

// PutApplication inserts or replaces an application.
func (db *DB) PutApplication(app bidding.Application) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.applications[app.ID] = app
}

// PutInvoice inserts or replaces an invoice.
func (db *DB) PutInvoice(inv billing.Invoice) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.invoices[inv.ID] = inv
}

// Invoices returns every invoice ordered by creation.
func (db *DB) Invoices() []billing.Invoice {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]billing.Invoice, 0, len(db.state.invoices))
	for _, inv := range db.state.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Bidding returns the bidding gateway.
func (db *DB) Bidding() bidding.Store { return biddingStore{db: db} }

// Billing returns the billing gateway.
func (db *DB) Billing() billing.Store { return billingStore{db: db} }

// Payments returns the payments gateway.
func (db *DB) Payments() payments.Store { return paymentsStore{db: db} }
