package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const companyPage = `<html><head><title>会社概要 | Acme</title><style>.x{}</style></head>
<body><nav>Home</nav>
<table>
<tr><th>会社名</th><td>Acme株式会社</td></tr>
<tr><th>代表取締役</th><td>山田 太郎</td></tr>
</table>
<script>var tracking = 1;</script>
<footer>Copyright Acme</footer>
</body></html>`

func TestHTMLToText(t *testing.T) {
	text, err := HTMLToText(companyPage)
	require.NoError(t, err)

	assert.Contains(t, text, "会社概要 | Acme")
	assert.Contains(t, text, "代表取締役 | 山田 太郎")
	assert.Contains(t, text, "Copyright Acme")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, ".x{}")
}

func TestPageFetcher_FetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/about":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(companyPage))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("  CEO:   Jane  \n\n\n\nDone "))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewPageFetcher(FetcherConfig{}, zap.NewNop())

	text, err := f.FetchText(context.Background(), srv.URL+"/about")
	require.NoError(t, err)
	assert.Contains(t, text, "山田 太郎")

	text, err = f.FetchText(context.Background(), srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "CEO: Jane\n\nDone", text)

	_, err = f.FetchText(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestPageFetcher_RejectsNonHTTP(t *testing.T) {
	f := NewPageFetcher(FetcherConfig{}, zap.NewNop())
	for _, u := range []string{"file:///etc/passwd", "not a url", "https://"} {
		_, err := f.FetchText(context.Background(), u)
		assert.Error(t, err, u)
	}
}

func TestPageFetcher_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("あ", 50)))
	}))
	defer srv.Close()

	f := NewPageFetcher(FetcherConfig{MaxChars: 10}, zap.NewNop())
	text, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("あ", 10), text)
}
