package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/auth"
	"github.com/minitoshi/susbot/internal/config"
	"github.com/minitoshi/susbot/internal/matchmaking"
)

type testEnv struct {
	cfg      *config.Config
	registry *Registry
	queue    *matchmaking.Queue
	server   *Server
	http     *httptest.Server
}

// fastSettings shortens every timer so whole games run inside a test.
func fastSettings() engine.Settings {
	s := engine.DefaultSettings()
	s.StartingCountdown = 10 * time.Millisecond
	return s
}

func newTestEnv(t *testing.T, configure func(*config.Config, *RegistryOptions, *Options)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		CORSOrigin:  "*",
		JWTAudience: "susbot",
		DevMode:     true,
		Game:        fastSettings(),
	}
	regOpts := RegistryOptions{Settings: cfg.Game, Grace: time.Minute, ManualTicks: true}
	srvOpts := Options{Config: cfg}
	if configure != nil {
		configure(cfg, &regOpts, &srvOpts)
	}

	reg := NewRegistry(regOpts)
	queue := matchmaking.NewQueue(matchmaking.Options{MinPlayers: 5, MaxPlayers: 10, Wait: time.Hour}, reg.StartMatch)
	srvOpts.Registry = reg
	srvOpts.Queue = queue
	srvOpts.Verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience, cfg.DevMode)

	srv := New(srvOpts)
	srv.heartbeat = 20 * time.Millisecond
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Shutdown()
	})
	return &testEnv{cfg: cfg, registry: reg, queue: queue, server: srv, http: ts}
}

func devToken(id string) string {
	return auth.DevTokenPrefix + id + ":Agent " + id
}

func profiles(n int) []engine.Profile {
	out := make([]engine.Profile, n)
	for i := range out {
		out[i] = engine.Profile{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Agent p%d", i)}
	}
	return out
}

// do sends a request with an optional dev token and JSON body and decodes
// the JSON response into a generic map.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}
