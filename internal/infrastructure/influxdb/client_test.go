package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/influxdb"
	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
)

// fakeInflux is a minimal InfluxDB v2 HTTP API: /ping and /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu          sync.Mutex
	lines       []string
	writeStatus int
	pingStatus  int
	lastQuery   string
	lastAuth    string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()

	f := &fakeInflux{writeStatus: http.StatusNoContent, pingStatus: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(f.pingStatus)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
			f.lastQuery = r.URL.RawQuery
			f.lastAuth = r.Header.Get("Authorization")
			if f.writeStatus != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(f.writeStatus)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`)) //nolint:errcheck // Test server
				return
			}
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)

	return f
}

func (f *fakeInflux) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) set(fn func(f *fakeInflux)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// testConfig returns a configuration pointing at the fake server.
func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "greenhouse-dev-token",
		Org:           "greenhouse",
		Bucket:        "telemetry",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t))

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	url := f.URL
	f.Close()

	_, err := influxdb.Connect(testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t)
	f.set(func(f *fakeInflux) { f.pingStatus = http.StatusServiceUnavailable })

	_, err := influxdb.Connect(testConfig(f.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with default batch settings")
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	f.set(func(f *fakeInflux) { f.pingStatus = http.StatusServiceUnavailable })
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail when the server is unhealthy")
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	client := connect(t, newFakeInflux(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	_ = client.Close() //nolint:errcheck // Test

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteTelemetry(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteTelemetry("raspi-1", "greenhouse/telemetry/counter", 42, time.Unix(1700000000, 0))
	client.Flush()

	waitFor(t, func() bool { return len(f.Lines()) == 1 })

	want := "telemetry,device_id=raspi-1,topic=greenhouse/telemetry/counter counter=42i 1700000000000000000"
	if got := f.Lines()[0]; got != want {
		t.Errorf("line = %q, want %q", got, want)
	}

	f.set(func(f *fakeInflux) {
		if !strings.Contains(f.lastQuery, "bucket=telemetry") || !strings.Contains(f.lastQuery, "org=greenhouse") {
			t.Errorf("write query = %q, want org and bucket", f.lastQuery)
		}
		if f.lastAuth != "Token greenhouse-dev-token" {
			t.Errorf("Authorization = %q", f.lastAuth)
		}
	})
}

func TestWriteSessionEvent(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteSessionEvent(mqtt.Event{
		ID:       "evt-1",
		Kind:     mqtt.EventConnectFailed,
		ClientID: "dev1",
		Reason:   mqtt.ReasonNotAuthorized,
		Err:      errors.New("boom"),
		Time:     time.Unix(1700000000, 0),
	})
	client.Flush()

	waitFor(t, func() bool { return len(f.Lines()) == 1 })

	line := f.Lines()[0]
	for _, want := range []string{
		"session_events,client_id=dev1,kind=connect_failed ",
		"clean=false",
		`error="boom"`,
		"reason_code=5i",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q does not contain %q", line, want)
		}
	}
	if strings.Contains(line, "topic=") {
		t.Errorf("line %q should not carry an empty topic", line)
	}
}

func TestWriteSessionEvent_AsObserver(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	var observer mqtt.Observer = mqtt.ObserverFunc(client.WriteSessionEvent)
	observer.OnEvent(mqtt.Event{
		Kind:     mqtt.EventBirthPublished,
		ClientID: "dev1",
		Topic:    "presence/dev1",
	})
	client.Flush()

	waitFor(t, func() bool { return len(f.Lines()) == 1 })

	if line := f.Lines()[0]; !strings.Contains(line, `topic="presence/dev1"`) {
		t.Errorf("line %q does not carry the topic field", line)
	}
}

func TestWrite_ErrorCallback(t *testing.T) {
	f := newFakeInflux(t)
	f.set(func(f *fakeInflux) { f.writeStatus = http.StatusBadRequest })
	client := connect(t, f)

	var (
		mu       sync.Mutex
		writeErr error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteTelemetry("raspi-1", "greenhouse/telemetry/counter", 1, time.Now())
	client.Flush()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return writeErr != nil
	})

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(writeErr, influxdb.ErrWriteFailed) {
		t.Errorf("callback error = %v, want ErrWriteFailed", writeErr)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteTelemetry("close-test", "greenhouse/telemetry/counter", 7, time.Now())

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Buffered points are flushed on close
	waitFor(t, func() bool { return len(f.Lines()) == 1 })

	// Writes after close are dropped
	client.WriteTelemetry("close-test", "greenhouse/telemetry/counter", 8, time.Now())
	client.Flush()
	if n := len(f.Lines()); n != 1 {
		t.Errorf("got %d lines after close, want 1", n)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client

	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}
