package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamup/teamup/internal/api/handler"
	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/auth"
	"github.com/teamup/teamup/internal/notify"
)

// withCaller injects a fixed identity in place of the auth middleware.
func withCaller(id *auth.Identity, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id != nil {
			r = r.WithContext(middleware.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWSHandler_AttachesCaller(t *testing.T) {
	t.Parallel()

	caller := newCaller()
	hub := notify.NewHub(&mockManager{})
	srv := httptest.NewServer(withCaller(caller, handler.NewWSHandler(hub, nil)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return hub.RoomSize(notify.UserRoom(caller.UserID)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWSHandler_RequiresIdentity(t *testing.T) {
	t.Parallel()

	hub := notify.NewHub(&mockManager{})
	srv := httptest.NewServer(withCaller(nil, handler.NewWSHandler(hub, nil)))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandler_OriginAllowList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"trailing slash in config", []string{"https://app.example.com/"}, "https://APP.example.com", true},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hub := notify.NewHub(&mockManager{})
			srv := httptest.NewServer(withCaller(newCaller(), handler.NewWSHandler(hub, tt.allowed)))
			defer srv.Close()

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": []string{tt.origin}})
			if tt.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
