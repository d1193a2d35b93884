package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"certline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a compare-and-swap write lost to a concurrent
	// operation on the same application; callers should reload and retry.
	ErrConflict = errors.New("version conflict")
)

const applicationColumns = `id,farmer_id,farm_name,crop_type,farm_address,status,documents_json,reviewer_id,inspector_id,inspection_date,inspection_report_json,compliance_result_json,certificate_id,reinspections,version,created_at,updated_at`

func (r Repo) InsertApplicationTx(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	docsJSON, err := marshalDocuments(a.Documents)
	if err != nil {
		return err
	}
	reportJSON, err := marshalJSONPtr(a.InspectionReport)
	if err != nil {
		return err
	}
	resultJSON, err := marshalJSONPtr(a.ComplianceResult)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO applications(`+applicationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.FarmerID, a.FarmName, nullable(a.CropType), nullable(a.FarmAddress), string(a.Status),
		docsJSON, nullableStringPtr(a.ReviewerID), nullableStringPtr(a.InspectorID), nullableStringPtr(a.InspectionDate),
		reportJSON, resultJSON, nullableStringPtr(a.CertificateID), a.Reinspections, a.Version, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateApplicationTx writes the aggregate with compare-and-swap semantics
// keyed on the version read at load time. On success the stored version is
// a.Version+1; the caller owns bumping the in-memory copy.
func (r Repo) UpdateApplicationTx(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	docsJSON, err := marshalDocuments(a.Documents)
	if err != nil {
		return err
	}
	reportJSON, err := marshalJSONPtr(a.InspectionReport)
	if err != nil {
		return err
	}
	resultJSON, err := marshalJSONPtr(a.ComplianceResult)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE applications SET farmer_id=?, farm_name=?, crop_type=?, farm_address=?, status=?, documents_json=?, reviewer_id=?, inspector_id=?, inspection_date=?, inspection_report_json=?, compliance_result_json=?, certificate_id=?, reinspections=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		a.FarmerID, a.FarmName, nullable(a.CropType), nullable(a.FarmAddress), string(a.Status),
		docsJSON, nullableStringPtr(a.ReviewerID), nullableStringPtr(a.InspectorID), nullableStringPtr(a.InspectionDate),
		reportJSON, resultJSON, nullableStringPtr(a.CertificateID), a.Reinspections, a.UpdatedAt, a.ID, a.Version)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var exists int
		if scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id=?`, a.ID).Scan(&exists); scanErr == sql.ErrNoRows {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r Repo) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	return scanApplication(r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id))
}

func (r Repo) GetApplicationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Application, error) {
	return scanApplication(tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (domain.Application, error) {
	var a domain.Application
	var cropType, farmAddress, docs, reviewerID, inspectorID, inspectionDate, reportJSON, resultJSON, certificateID sql.NullString
	var status string
	err := row.Scan(&a.ID, &a.FarmerID, &a.FarmName, &cropType, &farmAddress, &status, &docs,
		&reviewerID, &inspectorID, &inspectionDate, &reportJSON, &resultJSON, &certificateID,
		&a.Reinspections, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Status = domain.Status(status)
	if cropType.Valid {
		a.CropType = cropType.String
	}
	if farmAddress.Valid {
		a.FarmAddress = farmAddress.String
	}
	if docs.Valid && docs.String != "" {
		if err := json.Unmarshal([]byte(docs.String), &a.Documents); err != nil {
			return a, fmt.Errorf("documents json: %w", err)
		}
	}
	if reviewerID.Valid {
		a.ReviewerID = &reviewerID.String
	}
	if inspectorID.Valid {
		a.InspectorID = &inspectorID.String
	}
	if inspectionDate.Valid {
		a.InspectionDate = &inspectionDate.String
	}
	if reportJSON.Valid && reportJSON.String != "" {
		var report domain.InspectionReport
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return a, fmt.Errorf("inspection report json: %w", err)
		}
		a.InspectionReport = &report
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.ComplianceResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return a, fmt.Errorf("compliance result json: %w", err)
		}
		a.ComplianceResult = &result
	}
	if certificateID.Valid {
		a.CertificateID = &certificateID.String
	}
	return a, nil
}

type ApplicationFilters struct {
	Status          string
	FarmerID        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListApplications(ctx context.Context, f ApplicationFilters) ([]domain.Application, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.FarmerID != "" {
		clauses = append(clauses, "farmer_id=?")
		args = append(args, f.FarmerID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + applicationColumns + ` FROM applications ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountApplicationsByStatus(ctx context.Context, f HistoryFilters) (map[domain.Status]int, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.FarmerID != "" {
		clauses = append(clauses, "farmer_id=?")
		args = append(args, f.FarmerID)
	}
	if f.CreatedAfter != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedAfter)
	}
	if f.CreatedBefore != "" {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.CreatedBefore)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM applications WHERE `+strings.Join(clauses, " AND ")+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[domain.Status(status)] = count
	}
	return res, rows.Err()
}

func (r Repo) AppendHistoryTx(ctx context.Context, tx *sql.Tx, h domain.HistoryEntry) error {
	var metadataJSON any
	if len(h.Metadata) > 0 {
		data, err := json.Marshal(h.Metadata)
		if err != nil {
			return fmt.Errorf("marshal history metadata: %w", err)
		}
		metadataJSON = string(data)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO application_history(application_id,from_status,to_status,actor_id,note,metadata_json,ts) VALUES (?,?,?,?,?,?,?)`,
		h.ApplicationID, string(h.FromStatus), string(h.ToStatus), h.ActorID, nullable(h.Note), metadataJSON, h.TS)
	return err
}

func (r Repo) ListHistory(ctx context.Context, applicationID string) ([]domain.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,application_id,from_status,to_status,actor_id,COALESCE(note,''),COALESCE(metadata_json,''),ts FROM application_history WHERE application_id=? ORDER BY id ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

type HistoryFilters struct {
	FarmerID      string
	CreatedAfter  string
	CreatedBefore string
}

// ListAllHistory returns every history entry ordered per application, used by
// the workflow statistics aggregation.
func (r Repo) ListAllHistory(ctx context.Context, f HistoryFilters) ([]domain.HistoryEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.FarmerID != "" {
		clauses = append(clauses, "a.farmer_id=?")
		args = append(args, f.FarmerID)
	}
	if f.CreatedAfter != "" {
		clauses = append(clauses, "a.created_at >= ?")
		args = append(args, f.CreatedAfter)
	}
	if f.CreatedBefore != "" {
		clauses = append(clauses, "a.created_at <= ?")
		args = append(args, f.CreatedBefore)
	}
	query := `SELECT h.id,h.application_id,h.from_status,h.to_status,h.actor_id,COALESCE(h.note,''),COALESCE(h.metadata_json,''),h.ts
FROM application_history h JOIN applications a ON a.id=h.application_id
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY h.application_id ASC, h.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func scanHistoryRows(rows *sql.Rows) ([]domain.HistoryEntry, error) {
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var from, to, metadata string
		if err := rows.Scan(&h.ID, &h.ApplicationID, &from, &to, &h.ActorID, &h.Note, &metadata, &h.TS); err != nil {
			return nil, err
		}
		h.FromStatus = domain.Status(from)
		h.ToStatus = domain.Status(to)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &h.Metadata); err != nil {
				return nil, fmt.Errorf("history metadata json: %w", err)
			}
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	delivered := 0
	if n.Delivered {
		delivered = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(event_type,recipient_id,payload_json,delivered,error,ts) VALUES (?,?,?,?,?,?)`,
		n.EventType, n.RecipientID, nullable(n.PayloadJSON), delivered, nullable(n.Error), n.TS)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	clauses := []string{"1=1"}
	var args []any
	if recipientID != "" {
		clauses = append(clauses, "recipient_id=?")
		args = append(args, recipientID)
	}
	query := `SELECT id,event_type,recipient_id,COALESCE(payload_json,''),delivered,COALESCE(error,''),ts FROM notifications WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var delivered int
		if err := rows.Scan(&n.ID, &n.EventType, &n.RecipientID, &n.PayloadJSON, &delivered, &n.Error, &n.TS); err != nil {
			return nil, err
		}
		n.Delivered = delivered != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

func marshalDocuments(docs map[string]string) (any, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("marshal documents: %w", err)
	}
	return string(data), nil
}

func marshalJSONPtr[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
