package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/token"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "faceattend-test"
)

func newAuthedRouter(t *testing.T, tokens token.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/", SessionAuth(testKey, testIssuer, tokens))
	authed.GET("/ping", func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject})
	})
	admin := authed.Group("/admin", RequireRole("admin"))
	admin.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func issueSession(t *testing.T, tokens token.Store, subject, role string) Session {
	t.Helper()
	sess, err := Issue(subject, role, testIssuer, testKey, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = tokens.Issue(context.Background(), token.IssueRequest{
		ID:            sess.TokenID,
		OwnerID:       subject,
		RawCredential: sess.Token,
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("store issue: %v", err)
	}
	return sess
}

func get(r *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionAuthAcceptsLiveSession(t *testing.T) {
	tokens := token.NewMemoryStore(nil)
	r := newAuthedRouter(t, tokens)
	sess := issueSession(t, tokens, "user-1", "employee")

	w := get(r, "/ping", sess.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	row, err := tokens.Get(context.Background(), sess.TokenID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.LastUsedAt == nil {
		t.Error("last_used_at not recorded after an authenticated request")
	}
}

func TestSessionAuthRejectsMissingAndMalformedTokens(t *testing.T) {
	tokens := token.NewMemoryStore(nil)
	r := newAuthedRouter(t, tokens)

	for _, bearer := range []string{"", "not-a-jwt"} {
		if w := get(r, "/ping", bearer); w.Code != http.StatusUnauthorized {
			t.Errorf("bearer %q: status = %d, want 401", bearer, w.Code)
		}
	}
}

func TestSessionAuthRejectsRevokedSession(t *testing.T) {
	tokens := token.NewMemoryStore(nil)
	r := newAuthedRouter(t, tokens)
	sess := issueSession(t, tokens, "user-1", "employee")

	if err := tokens.Revoke(context.Background(), sess.TokenID, "logout"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// The JWT itself is still signed and unexpired; only the store row decides.
	if w := get(r, "/ping", sess.Token); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 after revocation", w.Code)
	}
}

type failingStore struct {
	token.Store
}

func (failingStore) IsValid(context.Context, string) (bool, error) {
	return true, errors.New("store unavailable")
}

func TestSessionAuthFailsClosedOnStoreError(t *testing.T) {
	backing := token.NewMemoryStore(nil)
	r := newAuthedRouter(t, failingStore{backing})
	sess := issueSession(t, backing, "user-1", "employee")

	if w := get(r, "/ping", sess.Token); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when the validity check errors", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	tokens := token.NewMemoryStore(nil)
	r := newAuthedRouter(t, tokens)

	employee := issueSession(t, tokens, "user-1", "employee")
	admin := issueSession(t, tokens, "user-2", "admin")

	if w := get(r, "/admin/ping", employee.Token); w.Code != http.StatusForbidden {
		t.Errorf("employee on admin route: status = %d, want 403", w.Code)
	}
	if w := get(r, "/admin/ping", admin.Token); w.Code != http.StatusOK {
		t.Errorf("admin on admin route: status = %d, want 200", w.Code)
	}
}
