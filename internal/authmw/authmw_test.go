package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestSharedSecret(t *testing.T) {
	t.Parallel()

	h := SharedSecret("secret-token-123")(okHandler)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer header", "/", "Bearer secret-token-123", http.StatusOK},
		{"query secret", "/?secret=secret-token-123", "", http.StatusOK},
		{"bearer wins over bad query", "/?secret=nope", "Bearer secret-token-123", http.StatusOK},
		{"wrong bearer", "/", "Bearer wrong", http.StatusUnauthorized},
		{"good query beside wrong bearer", "/?secret=secret-token-123", "Bearer wrong", http.StatusOK},
		{"bearer padded", "/", "Bearer  secret-token-123 ", http.StatusOK},
		{"query padded", "/?secret=%20secret-token-123%20", "", http.StatusOK},
		{"both wrong", "/?secret=nope", "Bearer wrong", http.StatusUnauthorized},
		{"whitespace bearer", "/", "Bearer    ", http.StatusUnauthorized},
		{"wrong query", "/?secret=wrong", "", http.StatusUnauthorized},
		{"prefix only", "/?secret=secret", "", http.StatusUnauthorized},
		{"basic auth", "/", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"lowercase bearer", "/", "bearer secret-token-123", http.StatusUnauthorized},
		{"nothing", "/", "", http.StatusUnauthorized},
		{"empty bearer", "/", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, tt.target, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSharedSecret_EmptySecretRejectsAll(t *testing.T) {
	t.Parallel()

	h := SharedSecret("")(okHandler)

	for _, target := range []string{"/", "/?secret="} {
		req := httptest.NewRequest(http.MethodPost, target, http.NoBody)
		req.Header.Set("Authorization", "Bearer ")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", target, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestSharedSecret_TrimsConfiguredSecret(t *testing.T) {
	t.Parallel()

	h := SharedSecret("  s3cret\n")(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/?secret=s3cret", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	blank := SharedSecret("   ")(okHandler)
	req = httptest.NewRequest(http.MethodPost, "/?secret=", http.NoBody)
	rec = httptest.NewRecorder()
	blank.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("blank secret: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSharedSecret_ErrorBody(t *testing.T) {
	t.Parallel()

	h := SharedSecret("s")(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != `{"error":"Unauthorized"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}
