package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/rota-relay/internal/broadcast"
	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/model"
	"github.com/rickgao/rota-relay/internal/relay"
	"github.com/rickgao/rota-relay/internal/router"
	"github.com/rickgao/rota-relay/internal/state"
)

type testEnv struct {
	server   *httptest.Server
	registry *connection.Registry
	state    *state.State
	router   router.Router
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	reg := connection.NewRegistry(nil)
	st := state.New(model.DemoRouteHistory())
	engine := broadcast.New(reg, st)
	rt := router.NewRouter(router.DefaultConfig(), reg, st, engine, relay.New(reg, nil), nil)

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("router start: %v", err)
	}

	srv := New(Config{Conn: connection.DefaultConnConfig()}, reg, rt, opts...)
	ts := httptest.NewServer(srv.Engine())

	t.Cleanup(func() {
		srv.CloseConnections()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rt.Stop(ctx)
	})

	return &testEnv{server: ts, registry: reg, state: st, router: rt}
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (e *testEnv) waitCount(t *testing.T, role connection.Role, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.registry.Count(role) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s connections = %d, want %d", role, e.registry.Count(role), want)
}

func readFrame(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Errorf("message type = %d, want text", mt)
	}
	return data
}

func readSnapshot(t *testing.T, ws *websocket.Conn) model.Snapshot {
	t.Helper()
	var snap model.Snapshot
	if err := json.Unmarshal(readFrame(t, ws), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

// expectSilence fails if ws receives anything within d.
func expectSilence(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(d))
	if _, data, err := ws.ReadMessage(); err == nil {
		t.Errorf("unexpected frame: %s", data)
	}
}

func TestRootLiveness(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != RootMessage {
		t.Errorf("GET / = %d %q", resp.StatusCode, body)
	}
}

func TestUnknownPathWithoutUpgrade(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/nada")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSiteReceivesSnapshotOnConnect(t *testing.T) {
	env := newTestEnv(t)

	site := env.dial(t, "/?from=SITE")
	snap := readSnapshot(t, site)

	if snap.Route.Location != model.DefaultLocation {
		t.Errorf("localizacao = %q, want %q", snap.Route.Location, model.DefaultLocation)
	}
	if len(snap.History) != 4 {
		t.Errorf("listaRotas has %d entries, want 4", len(snap.History))
	}
	env.waitCount(t, connection.RoleSite, 1)
}

func TestTelemetryBroadcastOnAnyPath(t *testing.T) {
	env := newTestEnv(t)

	site := env.dial(t, "/?from=site")
	readSnapshot(t, site)

	esp := env.dial(t, "/device/stream?from=esp")
	if err := esp.WriteMessage(websocket.TextMessage, []byte(`{"distancia": 2.5, "oculos": true}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap := readSnapshot(t, site)
	if snap.Route.Distance != 2.5 || !snap.Devices.Oculos {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCommandForwardedToDevice(t *testing.T) {
	env := newTestEnv(t)

	esp := env.dial(t, "/?from=esp")
	env.waitCount(t, connection.RoleESP, 1)

	site := env.dial(t, "/?from=site")
	readSnapshot(t, site)

	if err := site.WriteMessage(websocket.TextMessage, []byte(`{"acao":"iniciar_rota"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var cmd model.Command
	if err := json.Unmarshal(readFrame(t, esp), &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Action != model.ActionStartRoute {
		t.Errorf("acao = %q, want %q", cmd.Action, model.ActionStartRoute)
	}

	if snap := readSnapshot(t, site); !snap.Route.InProgress {
		t.Error("emAndamento = false after iniciar_rota")
	}
}

func TestRawRelay(t *testing.T) {
	env := newTestEnv(t)

	esp := env.dial(t, "/?from=esp")
	env.waitCount(t, connection.RoleESP, 1)
	site := env.dial(t, "/?from=site")
	readSnapshot(t, site)

	if err := esp.WriteMessage(websocket.TextMessage, []byte("GPS sem sinal")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, site); string(got) != "GPS sem sinal" {
		t.Errorf("site got %q", got)
	}

	// Binary frames are handled as text and relayed as text.
	if err := site.WriteMessage(websocket.BinaryMessage, []byte("ola")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, esp); string(got) != "ola" {
		t.Errorf("esp got %q", got)
	}

	expectSilence(t, esp, 100*time.Millisecond)
}

func TestUnknownRoleIsolated(t *testing.T) {
	env := newTestEnv(t)

	unknown := env.dial(t, "/")
	env.waitCount(t, connection.RoleUnknown, 1)

	esp := env.dial(t, "/?from=esp")
	env.waitCount(t, connection.RoleESP, 1)

	if err := unknown.WriteMessage(websocket.TextMessage, []byte(`{"distancia": 50}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := esp.WriteMessage(websocket.TextMessage, []byte(`{"velocidade": 3}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A site joining afterwards sees the esp update but not the unknown one.
	site := env.dial(t, "/?from=site")
	deadline := time.Now().Add(2 * time.Second)
	var snap model.Snapshot
	for time.Now().Before(deadline) {
		snap = env.state.Snapshot()
		if snap.Route.Speed == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap.Route.Speed != 3 {
		t.Fatalf("velocidade = %v, want 3", snap.Route.Speed)
	}
	if snap.Route.Distance != 0 {
		t.Errorf("distancia = %v, unknown peer mutated state", snap.Route.Distance)
	}
	readSnapshot(t, site)

	expectSilence(t, unknown, 100*time.Millisecond)
}

func TestDisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t)

	site := env.dial(t, "/?from=site")
	readSnapshot(t, site)
	env.waitCount(t, connection.RoleSite, 1)

	site.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	site.Close()

	env.waitCount(t, connection.RoleSite, 0)
}

func TestWSStats(t *testing.T) {
	env := newTestEnv(t)

	env.dial(t, "/?from=esp")
	env.dial(t, "/?from=site")
	env.dial(t, "/?from=site")
	env.dial(t, "/?from=tv")
	env.waitCount(t, connection.RoleSite, 2)
	env.waitCount(t, connection.RoleESP, 1)
	env.waitCount(t, connection.RoleUnknown, 1)

	resp, err := http.Get(env.server.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("GET /ws/stats: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Roles        map[string]int `json:"roles"`
		TotalClients int            `json:"total_clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.Roles["esp"] != 1 || body.Roles["site"] != 2 || body.Roles["unknown"] != 1 {
		t.Errorf("roles = %v", body.Roles)
	}
	if body.TotalClients != 4 {
		t.Errorf("total_clients = %d, want 4", body.TotalClients)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no database",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "database up",
			opts:       []Option{WithDatabase(pingerFunc(func(context.Context) error { return nil }))},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "database down",
			opts:       []Option{WithDatabase(pingerFunc(func(context.Context) error { return errors.New("refused") }))},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append(tt.opts, WithComponent("extra", func() any { return map[string]any{"ok": true} }))
			env := newTestEnv(t, opts...)

			resp, err := http.Get(env.server.URL + "/health")
			if err != nil {
				t.Fatalf("GET /health: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.wantCode)
			}

			var body struct {
				Status     string         `json:"status"`
				Version    map[string]any `json:"version"`
				Components map[string]any `json:"components"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Version["version"] == nil {
				t.Error("version missing")
			}
			if body.Components["extra"] == nil {
				t.Error("extra component missing")
			}
		})
	}
}
