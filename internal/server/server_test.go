package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newproject8/returnfeed-backend/internal/auth"
	"github.com/newproject8/returnfeed-backend/internal/config"
	"github.com/newproject8/returnfeed-backend/internal/relay"
)

const testSecret = "server-test-shared-secret"

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "development",
		Port:                "0",
		LogLevel:            "error",
		LogFormat:           "text",
		MaxConnections:      100,
		MaxConnectionsPerIP: 100,
		MessageRate:         100,
		MessageBurst:        100,
	}
}

// newTestServer spins up the full HTTP stack. verifier may be nil for the
// unauthenticated variant.
func newTestServer(t *testing.T, cfg *config.Config, verifier relay.TokenVerifier) *httptest.Server {
	t.Helper()

	clock := clockwork.NewRealClock()
	hub := relay.NewHub(verifier, clock)
	t.Cleanup(hub.Stop)

	srv := NewServer(cfg, hub, verifier, clock)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func sendJSON(t *testing.T, conn *ws.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, data))
}

func readJSON(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func TestHealthLiveness(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestHealthReadiness(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, float64(0), body["active_sessions"])
}

func TestMetricsExposed(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "relay_active_sessions")
}

func TestWebSocket_EndToEnd(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	conn, _, err := ws.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	sendJSON(t, conn, map[string]any{"type": "register", "sessionId": "studio1", "role": "pd"})
	ack := readJSON(t, conn)
	require.Equal(t, "session_registered", ack["type"])

	sendJSON(t, conn, map[string]any{
		"type": "tally_update", "program": "cam1", "preview": "cam2",
		"inputs": map[string]string{"cam1": "Camera 1"},
	})
	update := readJSON(t, conn)
	assert.Equal(t, "tally_update", update["type"])
	assert.Equal(t, "cam1", update["program"])
}

func TestWebSocket_GlobalConnectionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	ts := newTestServer(t, cfg, nil)

	first, _, err := ws.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := ws.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_HandshakeTokenRejected(t *testing.T) {
	ts := newTestServer(t, testConfig(), auth.NewVerifier(testSecret))

	conn, _, err := ws.DefaultDialer.Dial(wsURL(ts, "token=garbage"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The error message arrives first, then a policy-violation close
	resp := readJSON(t, conn)
	assert.Equal(t, "error", resp["type"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, ws.IsCloseError(err, ws.ClosePolicyViolation), "expected 1008 close, got %v", err)
}

func TestWebSocket_HandshakeTokenAccepted(t *testing.T) {
	ts := newTestServer(t, testConfig(), auth.NewVerifier(testSecret))

	claims := jwt.MapClaims{
		"userId": "user-1",
		"isPD":   true,
		"exp":    time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	conn, _, err := ws.DefaultDialer.Dial(wsURL(ts, "token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration still carries its own token
	sendJSON(t, conn, map[string]any{
		"type": "register", "sessionId": "studio1", "role": "pd", "token": token,
	})
	ack := readJSON(t, conn)
	assert.Equal(t, "session_registered", ack["type"])
	assert.Equal(t, "user-1", ack["userId"])
}
