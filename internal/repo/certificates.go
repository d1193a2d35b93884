package repo

import (
	"context"
	"database/sql"

	"certline/internal/domain"
)

const certificateColumns = `certificate_number,application_id,farmer_id,issued_by,issued_at,valid_until,status,COALESCE(verification_token,'')`

func (r Repo) InsertCertificateTx(ctx context.Context, tx *sql.Tx, c domain.Certificate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO certificates(certificate_number,application_id,farmer_id,issued_by,issued_at,valid_until,status,verification_token) VALUES (?,?,?,?,?,?,?,?)`,
		c.CertificateNumber, c.ApplicationID, c.FarmerID, c.IssuedBy, c.IssuedAt, c.ValidUntil, string(c.Status), nullable(c.VerificationToken))
	return err
}

// CertificateNumberExistsTx checks number uniqueness inside the issuing
// transaction so concurrent issuers cannot both claim the same number.
func (r Repo) CertificateNumberExistsTx(ctx context.Context, tx *sql.Tx, number string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM certificates WHERE certificate_number=?`, number).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) GetCertificate(ctx context.Context, number string) (domain.Certificate, error) {
	return scanCertificate(r.DB.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE certificate_number=?`, number))
}

func (r Repo) GetCertificateByApplication(ctx context.Context, applicationID string) (domain.Certificate, error) {
	return scanCertificate(r.DB.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE application_id=?`, applicationID))
}

func (r Repo) UpdateCertificateStatusTx(ctx context.Context, tx *sql.Tx, number string, status domain.CertificateStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE certificates SET status=? WHERE certificate_number=?`, string(status), number)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCertificate(row *sql.Row) (domain.Certificate, error) {
	var c domain.Certificate
	var status string
	err := row.Scan(&c.CertificateNumber, &c.ApplicationID, &c.FarmerID, &c.IssuedBy, &c.IssuedAt, &c.ValidUntil, &status, &c.VerificationToken)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Status = domain.CertificateStatus(status)
	return c, err
}
