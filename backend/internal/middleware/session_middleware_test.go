package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/infra/token"

	"github.com/gin-gonic/gin"
)

func TestSessionMiddlewareSetsActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := token.NewJWTManager("mw-secret", time.Hour)
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	sess, err := tokens.Issue("ABC123", "Frau Muster")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.Use(NewSessionMiddleware(tokens, nil).Handle())
	r.GET("/who", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, actor.Code+"/"+actor.DisplayName)
	})
	r.GET("/owned", RequireActor(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		path   string
		header string
		status int
		body   string
	}{
		{"/who", "", http.StatusOK, "anonymous"},
		{"/who", "Bearer " + sess.Token, http.StatusOK, "ABC123/Frau Muster"},
		{"/who", "bearer " + sess.Token, http.StatusOK, "ABC123/Frau Muster"},
		{"/who", "Bearer broken", http.StatusOK, "anonymous"},
		{"/who", "Basic abc", http.StatusOK, "anonymous"},
		{"/owned", "", http.StatusUnauthorized, ""},
		{"/owned", "Bearer " + sess.Token, http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s %q: status %d", tc.path, tc.header, rec.Code)
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Fatalf("%s %q: body %q", tc.path, tc.header, rec.Body.String())
		}
	}
}
