package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"certline/internal/domain"
	"certline/internal/events"
)

// issueCertificateTx allocates a unique certificate number, persists the
// certificate, links it to the application, and drives the final
// approved -> certificate_issued hop. Runs inside the approval transaction.
func (e Engine) issueCertificateTx(ctx context.Context, tx *sql.Tx, a *domain.Application, issuedBy string) (domain.Certificate, error) {
	if a.CertificateID != nil {
		return domain.Certificate{}, ValidationError{Field: "certificate_id", Reason: "already set"}
	}
	issuedAt := e.now().UTC()
	number, err := e.allocateNumberTx(ctx, tx, issuedAt)
	if err != nil {
		return domain.Certificate{}, err
	}
	validUntil := issuedAt.AddDate(e.Config.Certificate.ValidityYears, 0, 0)
	cert := domain.Certificate{
		CertificateNumber: number,
		ApplicationID:     a.ID,
		FarmerID:          a.FarmerID,
		IssuedBy:          issuedBy,
		IssuedAt:          issuedAt.Format(time.RFC3339),
		ValidUntil:        validUntil.Format(time.RFC3339),
		Status:            domain.CertificateActive,
	}
	if e.Config.Certificate.SigningSecret != "" {
		token, err := e.signVerificationToken(cert, validUntil)
		if err != nil {
			return domain.Certificate{}, fmt.Errorf("sign verification token: %w", err)
		}
		cert.VerificationToken = token
	}
	if err := e.Repo.InsertCertificateTx(ctx, tx, cert); err != nil {
		return domain.Certificate{}, fmt.Errorf("insert certificate: %w", err)
	}
	a.CertificateID = &cert.CertificateNumber
	if err := e.applyTransition(ctx, tx, a, domain.StatusCertificateIssued, issuedBy, "certificate issued", map[string]any{
		"certificate_number": cert.CertificateNumber,
		"valid_until":        cert.ValidUntil,
	}); err != nil {
		return domain.Certificate{}, err
	}
	if err := e.Events.Append(ctx, tx, "certificate.issued", a.ID, "certificate", cert.CertificateNumber, issuedBy, events.EventPayload{
		"certificate_number": cert.CertificateNumber,
		"application_id":     a.ID,
		"valid_until":        cert.ValidUntil,
	}); err != nil {
		return domain.Certificate{}, err
	}
	return cert, nil
}

// allocateNumberTx generates PREFIX-YYYY-NNNNNN numbers, existence-checked
// inside the transaction, with a bounded retry budget.
func (e Engine) allocateNumberTx(ctx context.Context, tx *sql.Tx, issuedAt time.Time) (string, error) {
	attempts := e.Config.Certificate.NumberAttempts
	for i := 0; i < attempts; i++ {
		number := fmt.Sprintf("%s-%d-%06d", e.Config.Certificate.Prefix, issuedAt.Year(), e.Rand(1000000))
		exists, err := e.Repo.CertificateNumberExistsTx(ctx, tx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", AllocationError{Attempts: attempts}
}

type verificationClaims struct {
	CertificateNumber string `json:"certificate_number"`
	ApplicationID     string `json:"application_id"`
	FarmerID          string `json:"farmer_id"`
	jwt.RegisteredClaims
}

func (e Engine) signVerificationToken(cert domain.Certificate, validUntil time.Time) (string, error) {
	claims := verificationClaims{
		CertificateNumber: cert.CertificateNumber,
		ApplicationID:     cert.ApplicationID,
		FarmerID:          cert.FarmerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "certline",
			Subject:   cert.CertificateNumber,
			IssuedAt:  jwt.NewNumericDate(e.now().UTC()),
			ExpiresAt: jwt.NewNumericDate(validUntil),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(e.Config.Certificate.SigningSecret))
}

// VerifyCertificateToken checks a verification token's signature and expiry
// and returns the certificate it names.
func (e Engine) VerifyCertificateToken(ctx context.Context, tokenString string) (domain.Certificate, error) {
	if e.Config.Certificate.SigningSecret == "" {
		return domain.Certificate{}, ValidationError{Field: "signing_secret", Reason: "not configured"}
	}
	var claims verificationClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(e.Config.Certificate.SigningSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.Certificate{}, ValidationError{Field: "token", Reason: err.Error()}
	}
	return e.Repo.GetCertificate(ctx, claims.CertificateNumber)
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
