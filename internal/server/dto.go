package server

import "certline/internal/domain"

// Request payloads

type CreateApplicationRequest struct {
	FarmerID    string            `json:"farmer_id"`
	FarmName    string            `json:"farm_name"`
	CropType    *string           `json:"crop_type,omitempty"`
	FarmAddress *string           `json:"farm_address,omitempty"`
	Documents   map[string]string `json:"documents,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type UpdateDocumentsRequest struct {
	Documents map[string]string `json:"documents" jsonschema:"type=object,additionalProperties=true"`
}

type StartReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

type CompleteReviewRequest struct {
	Approved             bool     `json:"approved"`
	RequestMoreDocuments bool     `json:"request_more_documents,omitempty"`
	MissingDocuments     []string `json:"missing_documents,omitempty"`
	InspectorID          *string  `json:"inspector_id,omitempty"`
	InspectionDate       *string  `json:"inspection_date,omitempty" format:"date-time"`
	Reason               *string  `json:"reason,omitempty"`
	Note                 *string  `json:"note,omitempty"`
}

type StartInspectionRequest struct {
	InspectorID string `json:"inspector_id"`
}

type CompleteInspectionRequest struct {
	Score             float64 `json:"score"`
	Passed            bool    `json:"passed"`
	SOPImplemented    bool    `json:"sop_implemented"`
	TraceabilityReady bool    `json:"traceability_ready"`
	QualityControl    bool    `json:"quality_control"`
	Notes             *string `json:"notes,omitempty"`
}

type ReinspectRequest struct {
	InspectorID    string  `json:"inspector_id"`
	InspectionDate *string `json:"inspection_date,omitempty" format:"date-time"`
}

type ApproveRequest struct {
	Note *string `json:"note,omitempty"`
}

type ForwardApprovalRequest struct {
	Note *string `json:"note,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// Response payloads

type TransitionResponse struct {
	Application domain.Application `json:"application"`
	Warnings    []string           `json:"warnings,omitempty"`
}

type HistoryResponse struct {
	ApplicationID string                `json:"application_id"`
	Entries       []domain.HistoryEntry `json:"entries"`
}

type StatisticsResponse struct {
	Statuses []domain.StatusStat `json:"statuses"`
}

type CertificateVerifyResponse struct {
	Valid       bool                `json:"valid"`
	Certificate *domain.Certificate `json:"certificate,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
