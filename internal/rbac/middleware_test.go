package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet-ledger/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithRole(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u", role)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serveWithRole(RoleSuperAdmin, RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AllowsListedRole(t *testing.T) {
	if code := serveWithRole(RoleFinance, RoleFinance, RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesPlainUser(t *testing.T) {
	if code := serveWithRole(RoleUser, RoleAdmin); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serveWithRole("", RoleAdmin); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsPrivileged(t *testing.T) {
	if IsPrivileged(RoleUser) {
		t.Fatalf("user must not be privileged")
	}
	for _, r := range []string{RoleFinance, RoleAdmin, RoleSuperAdmin} {
		if !IsPrivileged(r) {
			t.Fatalf("%s should be privileged", r)
		}
	}
}
