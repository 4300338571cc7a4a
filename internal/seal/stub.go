package seal

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pactum.org/internal/ids"
)

const stubIssuer = "pactum-stub-tsa"

// StubSealer mints locally signed tokens for development and demo
// deployments. Tokens carry qualified=false so downstream consumers can
// distinguish their evidentiary strength from QTSP-issued ones.
type StubSealer struct {
	secret []byte
	now    func() time.Time
}

var _ Sealer = (*StubSealer)(nil)

// NewStub creates a stub sealer signing with the given secret.
func NewStub(secret []byte) (*StubSealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("stub sealer secret is required")
	}
	return &StubSealer{secret: secret, now: time.Now}, nil
}

func (s *StubSealer) Provider() string { return "stub" }

type stubClaims struct {
	Hash      string `json:"hash"`
	Qualified bool   `json:"qualified"`
	jwt.RegisteredClaims
}

// Seal returns immediately with a token deterministically derived from the
// hash and the current wall clock.
func (s *StubSealer) Seal(ctx context.Context, contentHash string) (Seal, error) {
	if err := ctx.Err(); err != nil {
		return Seal{}, err
	}
	issued := s.now().UTC()
	claims := stubClaims{
		Hash:      contentHash,
		Qualified: false,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   stubIssuer,
			Subject:  contentHash,
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Seal{}, err
	}
	return Seal{
		ID:        ids.NewSeal(),
		Provider:  s.Provider(),
		Qualified: false,
		IssuedAt:  issued,
		Token:     []byte(signed),
		Status:    StatusIssued,
	}, nil
}
