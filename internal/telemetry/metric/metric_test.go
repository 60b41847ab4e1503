package metric

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/tinykv/internal/storage/memory"
)

type fakeServerStats struct {
	active int64
	total  uint64
}

func (f fakeServerStats) ActiveConnections() int64 { return f.active }
func (f fakeServerStats) TotalConnections() uint64 { return f.total }

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.registry == nil {
		t.Error("registry should be initialized")
	}
	if r.CommandsTotal == nil || r.CommandDuration == nil || r.ProtocolErrors == nil {
		t.Error("collectors should be initialized")
	}
}

func TestRegistry_NilIsNoop(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("nil registry panicked: %v", r)
		}
	}()

	var r *Registry
	r.ObserveCommand("get", StatusOK, time.Millisecond)
	r.ProtocolError("malformed")
	r.MustRegister()
}

func TestRegistry_ObserveCommand(t *testing.T) {
	r := NewRegistry()

	r.ObserveCommand("get", StatusOK, time.Microsecond)
	r.ObserveCommand("get", StatusOK, time.Microsecond)
	r.ObserveCommand("set", StatusError, 0)
	r.ProtocolError("limit")

	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("get", StatusOK)); got != 2 {
		t.Errorf("commands_total{get,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("set", StatusError)); got != 1 {
		t.Errorf("commands_total{set,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ProtocolErrors.WithLabelValues("limit")); got != 1 {
		t.Errorf("protocol_errors_total{limit} = %v, want 1", got)
	}
}

func TestCollector(t *testing.T) {
	store := memory.New()
	store.Set("a", "1")
	store.Get("a")
	store.Get("missing")

	c := NewCollector(store, fakeServerStats{active: 3, total: 7}, time.Now())

	r := NewRegistry()
	r.MustRegister(c)

	expected := `
# HELP tinykv_connections_active Currently connected clients.
# TYPE tinykv_connections_active gauge
tinykv_connections_active 3
# HELP tinykv_connections_total Total connections accepted since startup.
# TYPE tinykv_connections_total counter
tinykv_connections_total 7
# HELP tinykv_keys Entries physically held by the store, expired or not.
# TYPE tinykv_keys gauge
tinykv_keys 1
# HELP tinykv_keyspace_hits_total GETs that found a live entry.
# TYPE tinykv_keyspace_hits_total counter
tinykv_keyspace_hits_total 1
# HELP tinykv_keyspace_misses_total GETs that found no live entry.
# TYPE tinykv_keyspace_misses_total counter
tinykv_keyspace_misses_total 1
`
	err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"tinykv_connections_active",
		"tinykv_connections_total",
		"tinykv_keys",
		"tinykv_keyspace_hits_total",
		"tinykv_keyspace_misses_total",
	)
	if err != nil {
		t.Error(err)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveCommand("ping", StatusOK, time.Microsecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if want := `tinykv_commands_total{cmd="ping",status="ok"} 1`; !strings.Contains(string(body), want) {
		t.Errorf("body missing %s", want)
	}
}

func TestListen(t *testing.T) {
	r := NewRegistry()
	srv, err := Listen("127.0.0.1:0", r, nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
