package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Vasu1712/legalwise-backend/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewJWTVerifier("secret")
	want := models.User{ID: "L1", Role: models.RoleLawyer, Name: "Lena Lawyer"}

	token, err := v.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier("secret")
	user := models.User{ID: "C1", Role: models.RoleClient, Name: "Carla"}

	expired, _ := v.Issue(user, -time.Minute)
	wrongKey, _ := NewJWTVerifier("other").Issue(user, time.Hour)
	badRole, _ := v.Issue(models.User{ID: "X", Role: "judge"}, time.Hour)
	noSubject, _ := v.Issue(models.User{Role: models.RoleClient}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             "client",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "C1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-token",
		"expired":    expired,
		"wrong key":  wrongKey,
		"bad role":   badRole,
		"no subject": noSubject,
		"alg none":   none,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
