package sessiontoken

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newRouter(i *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(i, false))
	r.GET("/whoami", func(c *gin.Context) {
		id, _ := SessionID(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	return r
}

func TestMiddlewareIssuesAndReusesSession(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	router := newRouter(issuer)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	first := resp.Body.String()
	if first == "" {
		t.Fatal("expected a session id")
	}
	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected one http-only session cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Body.String() != first {
		t.Fatalf("expected session %s to be reused, got %s", first, resp.Body.String())
	}
	if len(resp.Result().Cookies()) != 0 {
		t.Fatal("expected no new cookie for an existing session")
	}
}

func TestMiddlewareReplacesForgedToken(t *testing.T) {
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "6f1c2b7e-9a55-4d3e-8f43-1f0a3c2d4e5f",
		Issuer:  issuer,
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}

	router := newRouter(NewIssuer("test-secret", time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: forged})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Body.String() == "6f1c2b7e-9a55-4d3e-8f43-1f0a3c2d4e5f" {
		t.Fatal("forged session id must not be accepted")
	}
	if len(resp.Result().Cookies()) != 1 {
		t.Fatal("expected a fresh cookie")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := issuer.Sign("6f1c2b7e-9a55-4d3e-8f43-1f0a3c2d4e5f")
	if err != nil {
		t.Fatal(err)
	}
	issuer.now = time.Now
	if _, err := issuer.Parse(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
