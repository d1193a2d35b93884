package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/notify"
	"certline/internal/repo"
)

// Engine is the certification state machine core. All collaborators are
// injected at construction; tests override Now, Rand and Notify.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Notify notify.Gateway
	Now    func() time.Time
	Rand   func(n int) int
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Notify: notify.LogGateway{},
		Now:    time.Now,
		Rand:   rand.Intn,
	}
}

// Result is the outcome of a transition operation. Warnings carry non-fatal
// downstream failures (notification delivery) for a transition that already
// committed.
type Result struct {
	Application domain.Application `json:"application"`
	Warnings    []string           `json:"warnings,omitempty"`
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// applyTransition validates one edge, mutates status, appends the history row
// and the matching domain event inside tx. The event payload mirrors the
// history entry so observers need no translation layer.
func (e Engine) applyTransition(ctx context.Context, tx *sql.Tx, a *domain.Application, to domain.Status, actorID, note string, metadata map[string]any) error {
	if err := ensureTransition(a.Status, to); err != nil {
		return err
	}
	from := a.Status
	ts := e.nowString()
	a.Status = to
	a.UpdatedAt = ts
	entry := domain.HistoryEntry{
		ApplicationID: a.ID,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actorID,
		Note:          note,
		Metadata:      metadata,
		TS:            ts,
	}
	if err := e.Repo.AppendHistoryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	payload := events.EventPayload{
		"application_id": a.ID,
		"from":           string(from),
		"to":             string(to),
		"actor_id":       actorID,
	}
	if note != "" {
		payload["note"] = note
	}
	for k, v := range metadata {
		payload[k] = v
	}
	evtType := events.TransitionType(string(from), string(to))
	if err := e.Events.Append(ctx, tx, evtType, a.ID, "application", a.ID, actorID, payload); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// notifyFarmer delivers best-effort and records the attempt; a failure is
// surfaced as a warning, never an error.
func (e Engine) notifyFarmer(ctx context.Context, eventType, recipientID string, payload map[string]any, warnings *[]string) {
	err := e.Notify.Send(ctx, eventType, recipientID, payload)
	n := domain.Notification{
		EventType:   eventType,
		RecipientID: recipientID,
		Delivered:   err == nil,
		TS:          e.nowString(),
	}
	if payload != nil {
		n.PayloadJSON = jsonString(payload)
	}
	if err != nil {
		n.Error = err.Error()
		*warnings = append(*warnings, fmt.Sprintf("notification %s failed: %v", eventType, err))
	}
	if insErr := e.Repo.InsertNotification(ctx, n); insErr != nil {
		*warnings = append(*warnings, fmt.Sprintf("record notification %s failed: %v", eventType, insErr))
	}
}

// CreateOptions are parameters for creating an application.
type CreateOptions struct {
	FarmerID    string
	FarmName    string
	CropType    string
	FarmAddress string
	Documents   map[string]string
	ActorID     string
}

// CreateApplication allocates a new draft application and seeds its history.
func (e Engine) CreateApplication(ctx context.Context, opts CreateOptions) (domain.Application, error) {
	if opts.FarmerID == "" {
		return domain.Application{}, ValidationError{Field: "farmer_id", Reason: "is required"}
	}
	if opts.FarmName == "" {
		return domain.Application{}, ValidationError{Field: "farm_name", Reason: "is required"}
	}
	now := e.nowString()
	a := domain.Application{
		ID:          uuid.New().String(),
		FarmerID:    opts.FarmerID,
		FarmName:    opts.FarmName,
		CropType:    opts.CropType,
		FarmAddress: opts.FarmAddress,
		Documents:   opts.Documents,
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	actorID := opts.ActorID
	if actorID == "" {
		actorID = opts.FarmerID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertApplicationTx(ctx, tx, a); err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.Repo.AppendHistoryTx(ctx, tx, domain.HistoryEntry{
		ApplicationID: a.ID,
		FromStatus:    "",
		ToStatus:      domain.StatusDraft,
		ActorID:       actorID,
		Note:          "created",
		TS:            now,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.created", a.ID, "application", a.ID, actorID, events.EventPayload{
		"farmer_id": a.FarmerID,
		"farm_name": a.FarmName,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// UpdateDocuments replaces the document map while the application is still
// editable (draft, or back in submitted after more documents were requested).
func (e Engine) UpdateDocuments(ctx context.Context, id string, docs map[string]string, actorID string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return a, err
	}
	if a.Status != domain.StatusDraft && a.Status != domain.StatusSubmitted {
		return a, ValidationError{Field: "status", Reason: fmt.Sprintf("documents cannot change in state %s", a.Status)}
	}
	a.Documents = docs
	a.UpdatedAt = e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "documents.updated", a.ID, "application", a.ID, actorID, events.EventPayload{
		"document_types": documentTypes(docs),
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	a.Version++
	return a, nil
}

// SubmitApplication validates document completeness and moves draft -> submitted.
func (e Engine) SubmitApplication(ctx context.Context, id, actorID string) (Result, error) {
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusSubmitted); err != nil {
		return Result{}, err
	}
	if missing := e.missingDocuments(a.Documents); len(missing) > 0 {
		return Result{}, ValidationError{Field: "documents", Reason: fmt.Sprintf("missing required document types: %v", missing)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusSubmitted, actorID, "application submitted", nil); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	e.notifyFarmer(ctx, "application.submitted", a.FarmerID, map[string]any{"application_id": a.ID}, &res.Warnings)
	return res, nil
}

// StartDocumentReview assigns a reviewer and moves submitted -> document_review.
func (e Engine) StartDocumentReview(ctx context.Context, id, reviewerID string) (Result, error) {
	if reviewerID == "" {
		return Result{}, ValidationError{Field: "reviewer_id", Reason: "is required"}
	}
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusDocumentReview); err != nil {
		return Result{}, err
	}
	a.ReviewerID = &reviewerID
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusDocumentReview, reviewerID, "document review started", map[string]any{
		"reviewer_id": reviewerID,
	}); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	return Result{Application: a}, nil
}

// DocumentReviewResult is the outcome of a completed document review.
type DocumentReviewResult struct {
	Approved             bool
	RequestMoreDocuments bool
	MissingDocuments     []string
	InspectorID          string
	InspectionDate       string
	Reason               string
	Note                 string
}

// CompleteDocumentReview branches on the review outcome: schedule the field
// inspection, send the application back for more documents, or reject.
func (e Engine) CompleteDocumentReview(ctx context.Context, id string, result DocumentReviewResult, actorID string) (Result, error) {
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if a.Status != domain.StatusDocumentReview {
		return Result{}, InvalidTransitionError{From: a.Status, To: domain.StatusFieldInspectionScheduled}
	}
	switch {
	case result.Approved:
		if result.InspectorID == "" {
			return Result{}, ValidationError{Field: "inspector_id", Reason: "is required to schedule inspection"}
		}
		return e.scheduleInspection(ctx, a, result.InspectorID, result.InspectionDate, actorID, "documents approved, field inspection scheduled")
	case result.RequestMoreDocuments:
		return e.requestMoreDocuments(ctx, a, result.MissingDocuments, actorID, result.Note)
	default:
		return e.reject(ctx, a, result.Reason, actorID)
	}
}

// scheduleInspection drives the shared edge into field_inspection_scheduled,
// from document review or from compliance review (re-inspection).
func (e Engine) scheduleInspection(ctx context.Context, a domain.Application, inspectorID, inspectionDate, actorID, note string) (Result, error) {
	if err := ensureTransition(a.Status, domain.StatusFieldInspectionScheduled); err != nil {
		return Result{}, err
	}
	a.InspectorID = &inspectorID
	if inspectionDate != "" {
		a.InspectionDate = &inspectionDate
	}
	metadata := map[string]any{"inspector_id": inspectorID}
	if inspectionDate != "" {
		metadata["inspection_date"] = inspectionDate
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusFieldInspectionScheduled, actorID, note, metadata); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	e.notifyFarmer(ctx, "inspection.scheduled", a.FarmerID, map[string]any{
		"application_id": a.ID,
		"inspector_id":   inspectorID,
		"date":           inspectionDate,
	}, &res.Warnings)
	return res, nil
}

func (e Engine) requestMoreDocuments(ctx context.Context, a domain.Application, missing []string, actorID, note string) (Result, error) {
	if err := ensureTransition(a.Status, domain.StatusSubmitted); err != nil {
		return Result{}, err
	}
	if note == "" {
		note = "more documents requested"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusSubmitted, actorID, note, map[string]any{
		"missing_documents": missing,
	}); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	e.notifyFarmer(ctx, "documents.requested", a.FarmerID, map[string]any{
		"application_id":    a.ID,
		"missing_documents": missing,
	}, &res.Warnings)
	return res, nil
}

// StartFieldInspection moves field_inspection_scheduled -> in progress.
func (e Engine) StartFieldInspection(ctx context.Context, id, inspectorID string) (Result, error) {
	if inspectorID == "" {
		return Result{}, ValidationError{Field: "inspector_id", Reason: "is required"}
	}
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusFieldInspectionInProgress); err != nil {
		return Result{}, err
	}
	a.InspectorID = &inspectorID
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusFieldInspectionInProgress, inspectorID, "field inspection started", map[string]any{
		"inspector_id": inspectorID,
	}); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	return Result{Application: a}, nil
}

// CompleteFieldInspection stores the report and continues the chain: into
// compliance review on a pass, back to scheduling when re-inspection is
// allowed, or to rejection. The whole chain commits in one transaction.
func (e Engine) CompleteFieldInspection(ctx context.Context, id string, report domain.InspectionReport, actorID string) (Result, error) {
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusFieldInspectionCompleted); err != nil {
		return Result{}, err
	}
	if report.InspectorID == "" {
		report.InspectorID = actorID
	}
	if report.CompletedAt == "" {
		report.CompletedAt = e.nowString()
	}
	a.InspectionReport = &report

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	if err := e.applyTransition(ctx, tx, &a, domain.StatusFieldInspectionCompleted, actorID, "field inspection completed", map[string]any{
		"score":  report.Score,
		"passed": report.Passed,
	}); err != nil {
		return Result{}, err
	}

	var notification func(warnings *[]string)
	switch {
	case report.Passed:
		if err := e.runComplianceReview(ctx, tx, &a, actorID); err != nil {
			return Result{}, err
		}
	case e.Config.Inspection.AllowReinspection && a.Reinspections < e.Config.Inspection.MaxReinspections:
		// loop back through compliance review to the re-inspection edge
		if err := e.applyTransition(ctx, tx, &a, domain.StatusComplianceReview, actorID, "inspection failed, re-inspection pending", nil); err != nil {
			return Result{}, err
		}
		a.Reinspections++
		if err := e.applyTransition(ctx, tx, &a, domain.StatusFieldInspectionScheduled, actorID, "re-inspection scheduled", map[string]any{
			"inspector_id": report.InspectorID,
			"attempt":      a.Reinspections,
		}); err != nil {
			return Result{}, err
		}
		appID := a.ID
		farmerID := a.FarmerID
		notification = func(warnings *[]string) {
			e.notifyFarmer(ctx, "inspection.rescheduled", farmerID, map[string]any{"application_id": appID}, warnings)
		}
	default:
		reason := report.Notes
		if reason == "" {
			reason = fmt.Sprintf("field inspection failed with score %.0f", report.Score)
		}
		if err := e.applyTransition(ctx, tx, &a, domain.StatusRejected, actorID, "rejected", map[string]any{
			"reason": reason,
		}); err != nil {
			return Result{}, err
		}
		appID := a.ID
		farmerID := a.FarmerID
		notification = func(warnings *[]string) {
			e.notifyFarmer(ctx, "application.rejected", farmerID, map[string]any{"application_id": appID, "reason": reason}, warnings)
		}
	}

	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	if notification != nil {
		notification(&res.Warnings)
	}
	return res, nil
}

// runComplianceReview enters compliance_review, evaluates the rubric, and
// advances to pending_approval when compliant. Non-compliant applications
// stay in compliance_review for a human decision.
func (e Engine) runComplianceReview(ctx context.Context, tx *sql.Tx, a *domain.Application, actorID string) error {
	if err := e.applyTransition(ctx, tx, a, domain.StatusComplianceReview, actorID, "compliance review started", nil); err != nil {
		return err
	}
	result := EvaluateCompliance(*a, e.Config.Documents.Required, e.Config.Compliance.PassingScore)
	result.CheckedAt = e.nowString()
	a.ComplianceResult = &result
	if err := e.Events.Append(ctx, tx, "compliance.evaluated", a.ID, "application", a.ID, actorID, events.EventPayload{
		"score":     result.Score,
		"compliant": result.Compliant,
		"checks":    result.Checks,
	}); err != nil {
		return err
	}
	if !result.Compliant {
		return nil
	}
	return e.applyTransition(ctx, tx, a, domain.StatusPendingApproval, actorID, "compliance passed", map[string]any{
		"score": result.Score,
	})
}

// RequestReinspection drives the compliance_review -> field_inspection_scheduled
// edge after a human decides a non-compliant result warrants another visit.
func (e Engine) RequestReinspection(ctx context.Context, id, inspectorID, inspectionDate, actorID string) (Result, error) {
	if inspectorID == "" {
		return Result{}, ValidationError{Field: "inspector_id", Reason: "is required"}
	}
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if a.Status != domain.StatusComplianceReview {
		return Result{}, InvalidTransitionError{From: a.Status, To: domain.StatusFieldInspectionScheduled}
	}
	a.Reinspections++
	return e.scheduleInspection(ctx, a, inspectorID, inspectionDate, actorID, "re-inspection requested")
}

// ForwardToApproval drives compliance_review -> pending_approval on a human
// decision, e.g. after remediation evidence for a borderline result.
func (e Engine) ForwardToApproval(ctx context.Context, id, actorID, note string) (Result, error) {
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusPendingApproval); err != nil {
		return Result{}, err
	}
	if note == "" {
		note = "forwarded for approval"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusPendingApproval, actorID, note, nil); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	return Result{Application: a}, nil
}

// ApproveApplication moves pending_approval -> approved and immediately
// issues the certificate, landing in certificate_issued. One transaction.
func (e Engine) ApproveApplication(ctx context.Context, id, approverID, note string) (Result, error) {
	if approverID == "" {
		return Result{}, ValidationError{Field: "approver_id", Reason: "is required"}
	}
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusApproved); err != nil {
		return Result{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusApproved, approverID, note, nil); err != nil {
		return Result{}, err
	}
	cert, err := e.issueCertificateTx(ctx, tx, &a, approverID)
	if err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	e.notifyFarmer(ctx, "certificate.issued", a.FarmerID, map[string]any{
		"application_id":     a.ID,
		"certificate_number": cert.CertificateNumber,
		"valid_until":        cert.ValidUntil,
	}, &res.Warnings)
	return res, nil
}

// RejectApplication rejects from any state the transition table allows.
// The reason is mandatory and recorded.
func (e Engine) RejectApplication(ctx context.Context, id, reason, actorID string) (Result, error) {
	minLen := e.Config.Rejection.MinReasonLength
	if len(reason) < minLen {
		return Result{}, ValidationError{Field: "reason", Reason: fmt.Sprintf("must be at least %d characters", minLen)}
	}
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return e.reject(ctx, a, reason, actorID)
}

func (e Engine) reject(ctx context.Context, a domain.Application, reason, actorID string) (Result, error) {
	minLen := e.Config.Rejection.MinReasonLength
	if len(reason) < minLen {
		return Result{}, ValidationError{Field: "reason", Reason: fmt.Sprintf("must be at least %d characters", minLen)}
	}
	if err := ensureTransition(a.Status, domain.StatusRejected); err != nil {
		return Result{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	if err := e.applyTransition(ctx, tx, &a, domain.StatusRejected, actorID, "rejected", map[string]any{
		"reason": reason,
	}); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	e.notifyFarmer(ctx, "application.rejected", a.FarmerID, map[string]any{
		"application_id": a.ID,
		"reason":         reason,
	}, &res.Warnings)
	return res, nil
}

// ExpireApplication drives certificate_issued -> expired and marks the
// certificate record expired. The decision when to expire is external policy.
func (e Engine) ExpireApplication(ctx context.Context, id, actorID string) (Result, error) {
	a, err := e.Repo.GetApplication(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := ensureTransition(a.Status, domain.StatusExpired); err != nil {
		return Result{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	metadata := map[string]any{}
	if a.CertificateID != nil {
		metadata["certificate_number"] = *a.CertificateID
		if err := e.Repo.UpdateCertificateStatusTx(ctx, tx, *a.CertificateID, domain.CertificateExpired); err != nil {
			return Result{}, err
		}
	}
	if err := e.applyTransition(ctx, tx, &a, domain.StatusExpired, actorID, "certificate expired", metadata); err != nil {
		return Result{}, err
	}
	if err := e.Repo.UpdateApplicationTx(ctx, tx, a); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	a.Version++
	res := Result{Application: a}
	e.notifyFarmer(ctx, "certificate.expired", a.FarmerID, map[string]any{"application_id": a.ID}, &res.Warnings)
	return res, nil
}

func (e Engine) missingDocuments(docs map[string]string) []string {
	var missing []string
	for _, docType := range e.Config.Documents.Required {
		if ref, ok := docs[docType]; !ok || ref == "" {
			missing = append(missing, docType)
		}
	}
	return missing
}

func documentTypes(docs map[string]string) []string {
	types := make([]string, 0, len(docs))
	for t := range docs {
		types = append(types, t)
	}
	return types
}
