package bidding

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus is the state of one installer proposal.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
	BidExpired  BidStatus = "expired"
)

// BidFields are the installer supplied terms.
type BidFields struct {
	PackageID     string
	Price         decimal.Decimal
	Proposal      string
	Warranty      string
	EstimatedDays int
}

// Validate checks the terms before anything is written.
func (f BidFields) Validate() error {
	if !f.Price.Round(2).IsPositive() {
		return ErrInvalidPrice
	}
	if f.EstimatedDays <= 0 {
		return ErrInvalidEstimatedDays
	}
	if strings.TrimSpace(f.Proposal) == "" {
		return ErrEmptyProposal
	}
	if strings.TrimSpace(f.Warranty) == "" {
		return ErrEmptyWarranty
	}
	return nil
}

// Bid is an installer proposal within a session.
type Bid struct {
	ID             string
	ApplicationID  string
	SessionID      string
	InstallerID    string
	OrganizationID string
	PackageID      string
	Price          decimal.Decimal
	Proposal       string
	Warranty       string
	EstimatedDays  int
	Status         BidStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBid admits a pending bid into session at now.
func NewBid(id string, session *Session, installerID, organizationID string, fields BidFields, now time.Time) (*Bid, error) {
	if id == "" || installerID == "" {
		return nil, ErrEmptyID
	}
	if organizationID == "" {
		return nil, ErrEmptyOrganization
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if err := session.AcceptsBidsAt(now); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Bid{
		ID:             id,
		ApplicationID:  session.ApplicationID,
		SessionID:      session.ID,
		InstallerID:    installerID,
		OrganizationID: organizationID,
		PackageID:      fields.PackageID,
		Price:          fields.Price.Round(2),
		Proposal:       strings.TrimSpace(fields.Proposal),
		Warranty:       strings.TrimSpace(fields.Warranty),
		EstimatedDays:  fields.EstimatedDays,
		Status:         BidPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ValidOverride reports whether status is an allowed administrative override target.
func ValidOverride(status BidStatus) bool {
	return status == BidPending || status == BidRejected
}

// Overridable reports whether the bid may still be changed by an override.
func (b *Bid) Overridable() bool {
	return b.Status == BidPending || b.Status == BidRejected
}
