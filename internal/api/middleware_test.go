package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func protectedProbe(t *testing.T) (http.Handler, *uuid.UUID, *uuid.UUID) {
	t.Helper()
	var gotOrg, gotActor uuid.UUID
	handler := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org, ok := OrganizationFromContext(r.Context())
		if !ok {
			t.Error("expected organization in context")
		}
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Error("expected actor in context")
		}
		gotOrg, gotActor = org, actor
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &gotOrg, &gotActor
}

func TestAuthMiddleware_ValidTokenInjectsScope(t *testing.T) {
	orgID := uuid.New()
	actorID := uuid.New()
	token := signToken(t, jwt.MapClaims{
		"org_id": orgID.String(),
		"sub":    actorID.String(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	handler, gotOrg, gotActor := protectedProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if *gotOrg != orgID || *gotActor != actorID {
		t.Fatalf("expected claims in context, got org=%s actor=%s", gotOrg, gotActor)
	}
}

func TestAuthMiddleware_MissingHeaderIsUnauthorized(t *testing.T) {
	handler, _, _ := protectedProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_TokenWithoutOrganizationIsUnauthorized(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	handler, _, _ := protectedProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without org claim, got %d", rec.Code)
	}
}

func TestAuthMiddleware_WrongSecretIsUnauthorized(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"org_id": uuid.New().String(),
		"sub":    uuid.New().String(),
	})
	signed, err := token.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	handler, _, _ := protectedProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong signing key, got %d", rec.Code)
	}
}
