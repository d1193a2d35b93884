package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/migrate"
	"certline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, context.Background()
}

func insertApplication(t *testing.T, r repo.Repo, ctx context.Context, a domain.Application) {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.InsertApplicationTx(ctx, tx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func testApplication(id, farmerID string, status domain.Status) domain.Application {
	return domain.Application{
		ID:        id,
		FarmerID:  farmerID,
		FarmName:  "Farm " + id,
		Status:    status,
		Documents: map[string]string{"land_rights": "doc-1"},
		CreatedAt: "2026-03-01T00:0" + id[len(id)-1:] + ":00Z",
		UpdatedAt: "2026-03-01T00:00:00Z",
	}
}

func TestApplicationRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	reviewer := "reviewer-1"
	report := domain.InspectionReport{InspectorID: "inspector-1", Score: 85, Passed: true}
	a := testApplication("app-1", "farmer-1", domain.StatusDocumentReview)
	a.ReviewerID = &reviewer
	a.InspectionReport = &report
	insertApplication(t, r, ctx, a)

	got, err := r.GetApplication(ctx, "app-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusDocumentReview {
		t.Fatalf("status %s", got.Status)
	}
	if got.ReviewerID == nil || *got.ReviewerID != "reviewer-1" {
		t.Fatalf("reviewer lost: %+v", got.ReviewerID)
	}
	if got.InspectionReport == nil || got.InspectionReport.Score != 85 {
		t.Fatalf("report lost: %+v", got.InspectionReport)
	}
	if got.Documents["land_rights"] != "doc-1" {
		t.Fatalf("documents lost: %v", got.Documents)
	}
}

func TestGetApplicationNotFound(t *testing.T) {
	r, ctx := newTestRepo(t)
	_, err := r.GetApplication(ctx, "missing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateApplicationCAS(t *testing.T) {
	r, ctx := newTestRepo(t)
	insertApplication(t, r, ctx, testApplication("app-1", "farmer-1", domain.StatusDraft))

	first, _ := r.GetApplication(ctx, "app-1")
	second, _ := r.GetApplication(ctx, "app-1")

	update := func(a domain.Application) error {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := r.UpdateApplicationTx(ctx, tx, a); err != nil {
			return err
		}
		return tx.Commit()
	}

	first.Status = domain.StatusSubmitted
	if err := update(first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// same loaded version loses
	second.Status = domain.StatusRejected
	if err := update(second); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, _ := r.GetApplication(ctx, "app-1")
	if got.Status != domain.StatusSubmitted || got.Version != first.Version+1 {
		t.Fatalf("unexpected row after conflict: %s v%d", got.Status, got.Version)
	}

	// a missing row is not a conflict
	ghost := testApplication("ghost", "farmer-1", domain.StatusDraft)
	if err := update(ghost); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

func TestListApplicationsFiltersAndPagination(t *testing.T) {
	r, ctx := newTestRepo(t)
	for i := 1; i <= 5; i++ {
		status := domain.StatusDraft
		if i%2 == 0 {
			status = domain.StatusSubmitted
		}
		a := testApplication(fmt.Sprintf("app-%d", i), "farmer-1", status)
		insertApplication(t, r, ctx, a)
	}
	insertApplication(t, r, ctx, testApplication("app-6", "farmer-2", domain.StatusDraft))

	drafts, err := r.ListApplications(ctx, repo.ApplicationFilters{Status: string(domain.StatusDraft), FarmerID: "farmer-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts for farmer-1, got %d", len(drafts))
	}

	page, err := r.ListApplications(ctx, repo.ApplicationFilters{Limit: 2})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	last := page[len(page)-1]
	rest, err := r.ListApplications(ctx, repo.ApplicationFilters{CursorCreatedAt: last.CreatedAt, CursorID: last.ID})
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	for _, a := range rest {
		if a.ID == page[0].ID || a.ID == page[1].ID {
			t.Fatalf("cursor page repeated %s", a.ID)
		}
	}
	if len(page)+len(rest) != 6 {
		t.Fatalf("pages must cover all rows, got %d + %d", len(page), len(rest))
	}
}

func TestHistoryAppendAndList(t *testing.T) {
	r, ctx := newTestRepo(t)
	insertApplication(t, r, ctx, testApplication("app-1", "farmer-1", domain.StatusSubmitted))

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	entries := []domain.HistoryEntry{
		{ApplicationID: "app-1", FromStatus: "", ToStatus: domain.StatusDraft, ActorID: "farmer-1", Note: "created", TS: "2026-03-01T00:01:00Z"},
		{ApplicationID: "app-1", FromStatus: domain.StatusDraft, ToStatus: domain.StatusSubmitted, ActorID: "farmer-1", Metadata: map[string]any{"via": "api"}, TS: "2026-03-01T00:02:00Z"},
	}
	for _, h := range entries {
		if err := r.AppendHistoryTx(ctx, tx, h); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := r.ListHistory(ctx, "app-1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ToStatus != domain.StatusDraft || got[1].ToStatus != domain.StatusSubmitted {
		t.Fatalf("order wrong: %+v", got)
	}
	if got[1].Metadata["via"] != "api" {
		t.Fatalf("metadata lost: %+v", got[1].Metadata)
	}
}

func TestCertificateUniqueness(t *testing.T) {
	r, ctx := newTestRepo(t)
	insertApplication(t, r, ctx, testApplication("app-1", "farmer-1", domain.StatusApproved))

	cert := domain.Certificate{
		CertificateNumber: "GACP-2026-000001",
		ApplicationID:     "app-1",
		FarmerID:          "farmer-1",
		IssuedBy:          "director-1",
		IssuedAt:          "2026-03-01T00:00:00Z",
		ValidUntil:        "2029-03-01T00:00:00Z",
		Status:            domain.CertificateActive,
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if exists, err := r.CertificateNumberExistsTx(ctx, tx, cert.CertificateNumber); err != nil || exists {
		t.Fatalf("expected free number, got exists=%v err=%v", exists, err)
	}
	if err := r.InsertCertificateTx(ctx, tx, cert); err != nil {
		t.Fatalf("insert cert: %v", err)
	}
	if exists, _ := r.CertificateNumberExistsTx(ctx, tx, cert.CertificateNumber); !exists {
		t.Fatalf("expected taken number")
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetCertificateByApplication(ctx, "app-1")
	if err != nil || got.CertificateNumber != cert.CertificateNumber {
		t.Fatalf("get by application: %+v %v", got, err)
	}

	// second certificate for the same application violates the unique index
	tx2, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx2.Rollback()
	dup := cert
	dup.CertificateNumber = "GACP-2026-000002"
	if err := r.InsertCertificateTx(ctx, tx2, dup); err == nil {
		t.Fatalf("expected unique violation for second certificate on app-1")
	}
}

func TestEventCursors(t *testing.T) {
	r, ctx := newTestRepo(t)
	for i := 0; i < 5; i++ {
		_, err := r.DB.ExecContext(ctx, `INSERT INTO events(ts,type,application_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
			fmt.Sprintf("2026-03-01T00:0%d:00Z", i), "draft->submitted", "app-1", "application", "app-1", "tester", "{}")
		if err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}

	latest, err := r.LatestEvents(ctx, 2, 0, "", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 || latest[0].ID <= latest[1].ID {
		t.Fatalf("expected 2 descending events, got %+v", latest)
	}

	after, err := r.EventsAfter(ctx, 10, latest[1].ID)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(after) != 1 || after[0].ID != latest[0].ID {
		t.Fatalf("expected the single newer event, got %+v", after)
	}

	maxID, err := r.LatestEventID(ctx)
	if err != nil || maxID != latest[0].ID {
		t.Fatalf("latest id %d (%v), want %d", maxID, err, latest[0].ID)
	}
}

func TestNotificationsList(t *testing.T) {
	r, ctx := newTestRepo(t)
	for i := 0; i < 3; i++ {
		n := domain.Notification{
			EventType:   "application.submitted",
			RecipientID: "farmer-1",
			Delivered:   i != 1,
			TS:          fmt.Sprintf("2026-03-01T00:0%d:00Z", i),
		}
		if i == 1 {
			n.Error = "gateway unreachable"
		}
		if err := r.InsertNotification(ctx, n); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}
	got, err := r.ListNotifications(ctx, "farmer-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	all, err := r.ListNotifications(ctx, "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d (%v)", len(all), err)
	}
	var failed int
	for _, n := range all {
		if !n.Delivered {
			failed++
			if n.Error == "" {
				t.Fatalf("undelivered row should carry the error")
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected one failed delivery, got %d", failed)
	}
}
