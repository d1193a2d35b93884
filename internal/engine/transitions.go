package engine

import "certline/internal/domain"

// transitionTable is the fixed set of legal status edges. Every operation
// validates against it before mutating anything.
var transitionTable = map[domain.Status][]domain.Status{
	domain.StatusDraft:     {domain.StatusSubmitted},
	domain.StatusSubmitted: {domain.StatusDocumentReview, domain.StatusRejected},
	// the submitted edge is "more documents requested"
	domain.StatusDocumentReview:            {domain.StatusFieldInspectionScheduled, domain.StatusRejected, domain.StatusSubmitted},
	domain.StatusFieldInspectionScheduled:  {domain.StatusFieldInspectionInProgress, domain.StatusRejected},
	domain.StatusFieldInspectionInProgress: {domain.StatusFieldInspectionCompleted, domain.StatusRejected},
	domain.StatusFieldInspectionCompleted:  {domain.StatusComplianceReview, domain.StatusRejected},
	// the field_inspection_scheduled edge is re-inspection
	domain.StatusComplianceReview:  {domain.StatusPendingApproval, domain.StatusRejected, domain.StatusFieldInspectionScheduled},
	domain.StatusPendingApproval:   {domain.StatusApproved, domain.StatusRejected},
	domain.StatusApproved:          {domain.StatusCertificateIssued},
	domain.StatusCertificateIssued: {domain.StatusExpired},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to domain.Status) bool {
	for _, target := range transitionTable[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the legal targets from a status.
func AllowedTargets(from domain.Status) []domain.Status {
	targets := transitionTable[from]
	out := make([]domain.Status, len(targets))
	copy(out, targets)
	return out
}

// AllStatuses lists every status, for table-driven closure checks.
func AllStatuses() []domain.Status {
	return []domain.Status{
		domain.StatusDraft,
		domain.StatusSubmitted,
		domain.StatusDocumentReview,
		domain.StatusFieldInspectionScheduled,
		domain.StatusFieldInspectionInProgress,
		domain.StatusFieldInspectionCompleted,
		domain.StatusComplianceReview,
		domain.StatusPendingApproval,
		domain.StatusApproved,
		domain.StatusCertificateIssued,
		domain.StatusRejected,
		domain.StatusExpired,
	}
}

func ensureTransition(from, to domain.Status) error {
	if !CanTransition(from, to) {
		return InvalidTransitionError{From: from, To: to}
	}
	return nil
}
