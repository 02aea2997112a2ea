package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-agent-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(t *testing.T, s *auth.Session, p Permission) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if s != nil {
			c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), *s))
		}
		c.Next()
	}, Require(p), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequire_CallReaders(t *testing.T) {
	for _, role := range []string{RoleOwner, RoleAdmin, RoleMember, RoleViewer, RoleSupport} {
		s := &auth.Session{UserID: "u", OrganizationID: "org-1", Role: role}
		if got := serveAs(t, s, PermReadCalls); got != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", role, got)
		}
	}
}

func TestRequire_TranscriptsNotGrantedToViewerOrSupport(t *testing.T) {
	for _, role := range []string{RoleViewer, RoleSupport} {
		s := &auth.Session{UserID: "u", OrganizationID: "org-1", Role: role}
		if got := serveAs(t, s, PermReadTranscripts); got != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", role, got)
		}
	}
}

func TestRequire_UnknownRoleForbidden(t *testing.T) {
	s := &auth.Session{UserID: "u", OrganizationID: "org-1", Role: "super_admin"}
	if got := serveAs(t, s, PermReadCalls); got != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", got)
	}
}

func TestRequire_NoSession(t *testing.T) {
	if got := serveAs(t, nil, PermReadCalls); got != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", got)
	}
	noOrg := &auth.Session{UserID: "u", Role: RoleOwner}
	if got := serveAs(t, noOrg, PermReadCalls); got != http.StatusUnauthorized {
		t.Fatalf("expected 401 without organization, got %d", got)
	}
}
