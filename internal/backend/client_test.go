package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloticlabs/arena-kiosk/internal/models"
)

// testKey builds an unsigned but well-formed JWT the way hosted
// backends mint anon keys.
func testKey(t *testing.T) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims := map[string]any{
		"role": "anon",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{URL: srv.URL, Key: testKey(t)})
	require.NoError(t, err)

	return client, srv
}

func TestNew(t *testing.T) {
	t.Run("rejects empty url", func(t *testing.T) {
		_, err := New(Config{Key: "x"})
		assert.Error(t, err)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := New(Config{URL: "https://project.example.com"})
		assert.Error(t, err)
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := New(Config{URL: "https://project.example.com", Key: "not-a-token"})
		assert.Error(t, err)
	})

	t.Run("accepts a well-formed key", func(t *testing.T) {
		client, err := New(Config{URL: "https://project.example.com", Key: testKey(t)})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestClientSelect(t *testing.T) {
	t.Run("encodes equality filters and decodes rows", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/rest/v1/qr_login_sessions", r.URL.Path)
			assert.Equal(t, "eq.abc123", r.URL.Query().Get("session_id"))
			assert.Equal(t, "*", r.URL.Query().Get("select"))
			assert.NotEmpty(t, r.Header.Get("apikey"))
			assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")

			fmt.Fprint(w, `[{"session_id":"abc123","status":"pending"}]`)
		}))

		var rows []models.LoginSession
		err := client.Select(context.Background(), "qr_login_sessions", Filters{"session_id": "abc123"}, &rows)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "abc123", rows[0].SessionID)
		assert.Equal(t, models.StatusPending, rows[0].Status())
	})

	t.Run("no matches is an empty slice, not an error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))

		var rows []models.LoginSession
		err := client.Select(context.Background(), "qr_login_sessions", Filters{"session_id": "gone"}, &rows)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("404 maps to ErrNotFound", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		var rows []models.LoginSession
		err := client.Select(context.Background(), "nope", Filters{}, &rows)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server error surfaces status and body", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"boom"}`)
		}))

		var rows []models.LoginSession
		err := client.Select(context.Background(), "qr_login_sessions", Filters{}, &rows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})
}

func TestClientUpdate(t *testing.T) {
	t.Run("returns matched row count", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/rest/v1/event_registrations", r.URL.Path)
			assert.Equal(t, "eq.5", r.URL.Query().Get("games_remaining"))
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

			var fields map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
			assert.EqualValues(t, 4, fields["games_remaining"])

			fmt.Fprint(w, `[{"games_remaining":4}]`)
		}))

		matched, err := client.Update(context.Background(), "event_registrations",
			Filters{"games_remaining": "5"},
			map[string]any{"games_remaining": 4})
		require.NoError(t, err)
		assert.Equal(t, 1, matched)
	})

	t.Run("a stale predicate matches zero rows", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))

		matched, err := client.Update(context.Background(), "event_registrations",
			Filters{"games_remaining": "5"},
			map[string]any{"games_remaining": 4})
		require.NoError(t, err)
		assert.Equal(t, 0, matched)
	})
}

func TestClientRpc(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/create_qr_session", r.URL.Path)

		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "abc123", args["p_session_id"])
		assert.EqualValues(t, 5, args["p_expiration_minutes"])
	}))

	err := client.Rpc(context.Background(), "create_qr_session", map[string]any{
		"p_session_id":         "abc123",
		"p_desktop_device_id":  "device",
		"p_expiration_minutes": 5,
	}, nil)
	require.NoError(t, err)
}

func TestClientPing(t *testing.T) {
	t.Run("reachable backend", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rest/v1/", r.URL.Path)
		}))

		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("unreachable backend reports ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse all connections

		client, err := New(Config{URL: srv.URL, Key: testKey(t), Timeout: time.Second})
		require.NoError(t, err)

		err = client.Ping(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
