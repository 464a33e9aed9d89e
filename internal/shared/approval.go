package shared

// ApprovalStatus enumerates expense approval outcomes. The approval
// workflow itself lives outside the engine; statuses arrive already
// decided and are only read here.
type ApprovalStatus string

const (
	// ApprovalPending marks an expense awaiting a decision.
	ApprovalPending ApprovalStatus = "PENDING"
	// ApprovalApproved marks an approved expense.
	ApprovalApproved ApprovalStatus = "APPROVED"
	// ApprovalRejected marks a rejected expense.
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}
