package navigation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	var gotUA, gotXHR string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			gotUA = r.Header.Get("User-Agent")
			gotXHR = r.Header.Get("X-Requested-With")
			_, _ = w.Write([]byte(batchHTML("abc1")))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(srv.Client())
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		body, err := f.Fetch(ctx, srv.URL+"/ok")
		require.NoError(t, err)
		assert.Equal(t, batchHTML("abc1"), body)
		assert.Equal(t, DefaultUserAgent, gotUA)
		assert.Equal(t, "XMLHttpRequest", gotXHR)
	})

	t.Run("status", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/missing")
		assert.ErrorIs(t, err, ErrFetch)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("body limit", func(t *testing.T) {
		limited := &HTTPFetcher{Client: srv.Client(), MaxBodyBytes: 16}
		body, err := limited.Fetch(ctx, srv.URL+"/big")
		assert.ErrorIs(t, err, ErrFetch)
		assert.ErrorContains(t, err, "exceeds 16 bytes")
		assert.Empty(t, body)

		exact := &HTTPFetcher{Client: srv.Client(), MaxBodyBytes: 64}
		body, err = exact.Fetch(ctx, srv.URL+"/big")
		require.NoError(t, err)
		assert.Len(t, body, 64)
	})

	t.Run("timeout", func(t *testing.T) {
		slow := &HTTPFetcher{Client: srv.Client(), Timeout: 20 * time.Millisecond}
		_, err := slow.Fetch(ctx, srv.URL+"/slow")
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := f.Fetch(ctx, "://nope")
		assert.ErrorIs(t, err, ErrFetch)
	})
}
