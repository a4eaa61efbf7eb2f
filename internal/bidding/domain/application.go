package bidding

import "time"

// ApplicationStatus is the customer application workflow state.
type ApplicationStatus string

const (
	ApplicationSubmitted             ApplicationStatus = "submitted"
	ApplicationUnderReview           ApplicationStatus = "under_review"
	ApplicationApproved              ApplicationStatus = "approved"
	ApplicationBidding               ApplicationStatus = "bidding"
	ApplicationInstallerSelected     ApplicationStatus = "installer_selected"
	ApplicationInstallationScheduled ApplicationStatus = "installation_scheduled"
	ApplicationInstalled             ApplicationStatus = "installed"
	ApplicationCompleted             ApplicationStatus = "completed"
	ApplicationRejected              ApplicationStatus = "rejected"
)

var applicationRank = map[ApplicationStatus]int{
	ApplicationSubmitted:             1,
	ApplicationUnderReview:           2,
	ApplicationApproved:              3,
	ApplicationBidding:               4,
	ApplicationInstallerSelected:     5,
	ApplicationInstallationScheduled: 6,
	ApplicationInstalled:             7,
	ApplicationCompleted:             8,
}

// Terminal reports whether no further transition is possible.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationCompleted || s == ApplicationRejected
}

// CanTransitionTo enforces the monotonic workflow. Rejection is reachable from any non-terminal state.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == ApplicationRejected {
		return true
	}
	from, ok := applicationRank[s]
	if !ok {
		return false
	}
	to, ok := applicationRank[next]
	return ok && to > from
}

// Application is a customer installation request as seen by the bidding core.
type Application struct {
	ID                      string
	Reference               string
	Status                  ApplicationStatus
	CustomerID              string
	InstallerOrganizationID string
	SelectedPackageID       string
	SiteVisitDate           *time.Time
	RejectionReason         string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// AcceptsBidding reports whether sessions may be opened or bid into.
func (a *Application) AcceptsBidding() error {
	if a.Status == ApplicationRejected {
		return ErrApplicationRejected
	}
	return nil
}

// SelectInstaller records the winning installer and advances the workflow when it is behind.
func (a *Application) SelectInstaller(organizationID, packageID string, now time.Time) error {
	if a.Status == ApplicationRejected {
		return ErrApplicationRejected
	}
	a.InstallerOrganizationID = organizationID
	a.SelectedPackageID = packageID
	if a.Status.CanTransitionTo(ApplicationInstallerSelected) {
		a.Status = ApplicationInstallerSelected
	}
	a.UpdatedAt = now.UTC()
	return nil
}

// Reject moves the application to rejected with a mandatory reason.
func (a *Application) Reject(reason string, now time.Time) error {
	if reason == "" {
		return ErrInvalidTransition
	}
	if !a.Status.CanTransitionTo(ApplicationRejected) {
		return ErrInvalidTransition
	}
	a.Status = ApplicationRejected
	a.RejectionReason = reason
	a.UpdatedAt = now.UTC()
	return nil
}
