package auth

// Action is an operation a principal attempts on a resource.
type Action string

const (
	ActionOpenSession     Action = "bid_session.open"
	ActionViewSession     Action = "bid_session.view"
	ActionSubmitBid       Action = "bid.submit"
	ActionListBids        Action = "bid.list"
	ActionSelectBid       Action = "bid.select"
	ActionUpdateBid       Action = "bid.update_status"
	ActionRunSweep        Action = "bid_session.sweep"
	ActionRunBilling      Action = "billing.generate"
	ActionViewUsage       Action = "billing.usage"
	ActionViewReport      Action = "billing.report"
	ActionViewInvoice     Action = "invoice.view"
	ActionListInvoices    Action = "invoice.list"
	ActionRegisterPayment Action = "payment.register"
	ActionConfirmPayment  Action = "payment.confirm"
)

// Resource carries the ownership facts a decision depends on.
type Resource struct {
	CustomerID     string
	OrganizationID string
	InstallerID    string
}

// Authorize is the single allow/deny decision for core operations.
// Officers are unrestricted. Ownership comes from the stored entity, never from request input.
func Authorize(p Principal, action Action, res Resource) error {
	if !p.Valid() {
		return ErrForbidden
	}
	if p.Role == RoleOfficer {
		return nil
	}
	if allowed(p, action, res) {
		return nil
	}
	return ErrForbidden
}

func allowed(p Principal, action Action, res Resource) bool {
	owner := p.Role == RoleCustomer && res.CustomerID != "" && res.CustomerID == p.ID
	member := p.Role == RoleInstaller && p.OrganizationID != "" && res.OrganizationID == p.OrganizationID

	switch action {
	case ActionOpenSession, ActionSelectBid, ActionUpdateBid, ActionRegisterPayment:
		return owner
	case ActionViewSession, ActionListBids:
		return owner || p.Role == RoleInstaller
	case ActionSubmitBid:
		return member
	case ActionViewUsage:
		return owner
	case ActionViewInvoice:
		return owner || (p.Role == RoleInstaller && res.InstallerID != "" && res.InstallerID == p.ID)
	case ActionListInvoices:
		return p.Role == RoleCustomer || p.Role == RoleInstaller
	default:
		return false
	}
}
