package engine

import "certline/internal/domain"

// Compliance rubric check names. Each check weighs 20 points.
const (
	CheckDocumentsComplete = "documents_complete"
	CheckInspectionPassed  = "inspection_passed"
	CheckSOPImplemented    = "sop_implemented"
	CheckTraceabilityReady = "traceability_ready"
	CheckQualityControl    = "quality_control"
)

const checkWeight = 20

// EvaluateCompliance scores an application against the fixed rubric. It is
// deterministic and side-effect free: two calls on an unmodified application
// yield identical results. CheckedAt is left for the caller to stamp.
func EvaluateCompliance(a domain.Application, requiredDocs []string, passingScore int) domain.ComplianceResult {
	checks := map[string]bool{
		CheckDocumentsComplete: documentsComplete(a.Documents, requiredDocs),
		CheckInspectionPassed:  a.InspectionReport != nil && a.InspectionReport.Passed,
		CheckSOPImplemented:    a.InspectionReport != nil && a.InspectionReport.SOPImplemented,
		CheckTraceabilityReady: a.InspectionReport != nil && a.InspectionReport.TraceabilityReady,
		CheckQualityControl:    a.InspectionReport != nil && a.InspectionReport.QualityControl,
	}
	score := 0
	for _, ok := range checks {
		if ok {
			score += checkWeight
		}
	}
	return domain.ComplianceResult{
		Score:     score,
		Compliant: score >= passingScore,
		Checks:    checks,
	}
}

func documentsComplete(docs map[string]string, required []string) bool {
	for _, docType := range required {
		if ref, ok := docs[docType]; !ok || ref == "" {
			return false
		}
	}
	return true
}
