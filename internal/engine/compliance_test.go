package engine_test

import (
	"reflect"
	"testing"

	"certline/internal/domain"
	"certline/internal/engine"
)

var requiredDocs = []string{"land_rights", "farm_map", "water_source_certificate", "cultivation_sop"}

func TestEvaluateComplianceAllChecksPass(t *testing.T) {
	report := passingReport()
	a := domain.Application{
		Documents:        completeDocuments(),
		InspectionReport: &report,
	}
	res := engine.EvaluateCompliance(a, requiredDocs, 80)
	if res.Score != 100 || !res.Compliant {
		t.Fatalf("expected 100/compliant, got %d/%v", res.Score, res.Compliant)
	}
	for name, ok := range res.Checks {
		if !ok {
			t.Fatalf("check %s unexpectedly failed", name)
		}
	}
}

func TestEvaluateComplianceBoundary(t *testing.T) {
	// four of five checks pass: exactly the passing score
	report := passingReport()
	report.QualityControl = false
	a := domain.Application{
		Documents:        completeDocuments(),
		InspectionReport: &report,
	}
	res := engine.EvaluateCompliance(a, requiredDocs, 80)
	if res.Score != 80 || !res.Compliant {
		t.Fatalf("expected 80/compliant at boundary, got %d/%v", res.Score, res.Compliant)
	}

	report.TraceabilityReady = false
	res = engine.EvaluateCompliance(a, requiredDocs, 80)
	if res.Score != 60 || res.Compliant {
		t.Fatalf("expected 60/non-compliant, got %d/%v", res.Score, res.Compliant)
	}
}

func TestEvaluateComplianceMissingReport(t *testing.T) {
	a := domain.Application{Documents: completeDocuments()}
	res := engine.EvaluateCompliance(a, requiredDocs, 80)
	if res.Score != 20 {
		t.Fatalf("only documents_complete can pass without a report, got %d", res.Score)
	}
	if !res.Checks[engine.CheckDocumentsComplete] {
		t.Fatalf("documents_complete should pass")
	}
	if res.Checks[engine.CheckInspectionPassed] {
		t.Fatalf("inspection_passed must fail without a report")
	}
}

func TestEvaluateComplianceIncompleteDocuments(t *testing.T) {
	report := passingReport()
	docs := completeDocuments()
	docs["farm_map"] = "" // present but empty reference
	a := domain.Application{Documents: docs, InspectionReport: &report}
	res := engine.EvaluateCompliance(a, requiredDocs, 80)
	if res.Checks[engine.CheckDocumentsComplete] {
		t.Fatalf("empty document reference must fail documents_complete")
	}
	if res.Score != 80 {
		t.Fatalf("expected 80, got %d", res.Score)
	}
}

func TestEvaluateComplianceDeterministic(t *testing.T) {
	report := passingReport()
	report.SOPImplemented = false
	a := domain.Application{Documents: completeDocuments(), InspectionReport: &report}
	first := engine.EvaluateCompliance(a, requiredDocs, 80)
	second := engine.EvaluateCompliance(a, requiredDocs, 80)
	if first.Score != second.Score || first.Compliant != second.Compliant || !reflect.DeepEqual(first.Checks, second.Checks) {
		t.Fatalf("evaluation not deterministic: %+v vs %+v", first, second)
	}
}
