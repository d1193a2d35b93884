package domain

// Status is the lifecycle state of a certification application.
type Status string

const (
	StatusDraft                     Status = "draft"
	StatusSubmitted                 Status = "submitted"
	StatusDocumentReview            Status = "document_review"
	StatusFieldInspectionScheduled  Status = "field_inspection_scheduled"
	StatusFieldInspectionInProgress Status = "field_inspection_in_progress"
	StatusFieldInspectionCompleted  Status = "field_inspection_completed"
	StatusComplianceReview          Status = "compliance_review"
	StatusPendingApproval           Status = "pending_approval"
	StatusApproved                  Status = "approved"
	StatusCertificateIssued         Status = "certificate_issued"
	StatusRejected                  Status = "rejected"
	StatusExpired                   Status = "expired"
)

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExpired
}

// Application is the certification request aggregate.
type Application struct {
	ID               string            `json:"id"`
	FarmerID         string            `json:"farmer_id"`
	FarmName         string            `json:"farm_name"`
	CropType         string            `json:"crop_type,omitempty"`
	FarmAddress      string            `json:"farm_address,omitempty"`
	Status           Status            `json:"status" enum:"draft,submitted,document_review,field_inspection_scheduled,field_inspection_in_progress,field_inspection_completed,compliance_review,pending_approval,approved,certificate_issued,rejected,expired"`
	Documents        map[string]string `json:"documents,omitempty" jsonschema:"type=object,additionalProperties=true"`
	ReviewerID       *string           `json:"reviewer_id,omitempty"`
	InspectorID      *string           `json:"inspector_id,omitempty"`
	InspectionDate   *string           `json:"inspection_date,omitempty" format:"date-time"`
	InspectionReport *InspectionReport `json:"inspection_report,omitempty"`
	ComplianceResult *ComplianceResult `json:"compliance_result,omitempty"`
	CertificateID    *string           `json:"certificate_id,omitempty"`
	Reinspections    int               `json:"reinspections,omitempty"`
	Version          int64             `json:"version"`
	CreatedAt        string            `json:"created_at" format:"date-time"`
	UpdatedAt        string            `json:"updated_at" format:"date-time"`
}

// InspectionReport is written once when a field inspection completes.
type InspectionReport struct {
	InspectorID       string  `json:"inspector_id"`
	Score             float64 `json:"score"`
	Passed            bool    `json:"passed"`
	SOPImplemented    bool    `json:"sop_implemented"`
	TraceabilityReady bool    `json:"traceability_ready"`
	QualityControl    bool    `json:"quality_control"`
	Notes             string  `json:"notes,omitempty"`
	CompletedAt       string  `json:"completed_at" format:"date-time"`
}

// ComplianceResult is written once the compliance evaluator runs.
type ComplianceResult struct {
	Score     int             `json:"score"`
	Compliant bool            `json:"compliant"`
	Checks    map[string]bool `json:"checks" jsonschema:"type=object,additionalProperties=true"`
	CheckedAt string          `json:"checked_at" format:"date-time"`
}

// HistoryEntry is one immutable audit record of a transition.
type HistoryEntry struct {
	ID            int64          `json:"id"`
	ApplicationID string         `json:"application_id"`
	FromStatus    Status         `json:"from_status"`
	ToStatus      Status         `json:"to_status"`
	ActorID       string         `json:"actor_id"`
	Note          string         `json:"note,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" jsonschema:"type=object,additionalProperties=true"`
	TS            string         `json:"ts" format:"date-time"`
}

// CertificateStatus is the lifecycle state of an issued certificate.
type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateExpired CertificateStatus = "expired"
)

// Certificate is issued exactly once per approved application.
type Certificate struct {
	CertificateNumber string            `json:"certificate_number"`
	ApplicationID     string            `json:"application_id"`
	FarmerID          string            `json:"farmer_id"`
	IssuedBy          string            `json:"issued_by"`
	IssuedAt          string            `json:"issued_at" format:"date-time"`
	ValidUntil        string            `json:"valid_until" format:"date-time"`
	Status            CertificateStatus `json:"status" enum:"active,expired"`
	VerificationToken string            `json:"verification_token,omitempty"`
}

// Event is one committed domain event. Transition events are typed by their
// "{from}->{to}" pair.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	ApplicationID string `json:"application_id,omitempty"`
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id,omitempty"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}

// Notification records one best-effort delivery attempt to the gateway.
type Notification struct {
	ID          int64  `json:"id"`
	EventType   string `json:"event_type"`
	RecipientID string `json:"recipient_id"`
	PayloadJSON string `json:"payload_json,omitempty"`
	Delivered   bool   `json:"delivered"`
	Error       string `json:"error,omitempty"`
	TS          string `json:"ts" format:"date-time"`
}

// StatusStat is one row of the workflow statistics aggregation.
type StatusStat struct {
	Status       Status  `json:"status"`
	Count        int     `json:"count"`
	AvgDwellSecs float64 `json:"avg_dwell_seconds"`
}
