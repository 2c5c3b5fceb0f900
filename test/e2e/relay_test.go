// Package e2e drives the fully wired bridge over HTTP and WebSocket only.
package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/link/fake"
	"github.com/radio-control/mavbridge/test/harness"
)

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Decoding %s: %v", url, err)
	}
	return resp.StatusCode
}

func dialWS(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// nextEvent reads events until one of type typ satisfies match.
func nextEvent(t *testing.T, conn *websocket.Conn, typ string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("Waiting for %s event: %v", typ, err)
		}
		if ev["type"] == typ && (match == nil || match(ev)) {
			return ev
		}
	}
}

func TestE2E_TelemetryAndCommandFlow(t *testing.T) {
	rover := fake.NewFakeLink()
	rover.Push(harness.RoverHeartbeat())
	server := harness.NewServer(t, harness.Options{Links: []*fake.FakeLink{rover}})

	harness.WaitFor(t, 2*time.Second, "vehicle connected", func() bool {
		return server.Vehicle.Snapshot().Connected
	})

	// Snapshot on demand
	var snap map[string]any
	if code := getJSON(t, server.URL+"/api/telemetry", &snap); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if snap["connected"] != true || snap["armed"] != true || snap["mode"] != "HOLD" {
		t.Errorf("Unexpected snapshot %v", snap)
	}

	// Health reflects the live link
	var health map[string]any
	if code := getJSON(t, server.URL+"/api/health", &health); code != http.StatusOK {
		t.Fatalf("Expected healthy, got %d: %v", code, health)
	}

	// Subscriber session: telemetry, then a command round trip
	conn := dialWS(t, server.URL)
	nextEvent(t, conn, "telemetry", func(ev map[string]any) bool {
		data, _ := ev["data"].(map[string]any)
		return data["connected"] == true
	})

	if err := conn.WriteJSON(map[string]any{"type": "command", "command": "set_mode", "params": map[string]any{"mode": "auto"}}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	res := nextEvent(t, conn, "command_result", nil)
	if res["ok"] != true {
		t.Fatalf("Expected set_mode to succeed, got %v", res)
	}

	calls := rover.Calls()
	if len(calls) == 0 || calls[len(calls)-1].Op != "set_mode" || calls[len(calls)-1].Mode != "AUTO" {
		t.Errorf("Expected SET_MODE AUTO on the link, got %+v", calls)
	}
	if mode := server.Vehicle.Snapshot().Mode; mode == nil || *mode != "AUTO" {
		t.Errorf("Expected optimistic mode AUTO, got %v", mode)
	}

	// The command reached both audit sinks
	data, err := os.ReadFile(server.Audit.GetFilePath())
	if err != nil {
		t.Fatalf("Reading audit log: %v", err)
	}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	var entry map[string]any
	for scanner.Scan() {
		_ = json.Unmarshal(scanner.Bytes(), &entry)
	}
	if entry["action"] != "set_mode" || entry["outcome"] != "SUCCESS" {
		t.Errorf("Unexpected audit entry %v", entry)
	}

	var history struct {
		Result string           `json:"result"`
		Data   []map[string]any `json:"data"`
	}
	getJSON(t, server.URL+"/api/history?kind=commands&limit=1", &history)
	if len(history.Data) != 1 || history.Data[0]["action"] != "set_mode" || history.Data[0]["ok"] != true {
		t.Errorf("Unexpected command history %+v", history)
	}
}

func TestE2E_CommandWithoutVehicle(t *testing.T) {
	server := harness.NewServer(t, harness.Options{})
	conn := dialWS(t, server.URL)

	if err := conn.WriteJSON(map[string]any{"type": "command", "command": "arm"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	res := nextEvent(t, conn, "command_result", nil)
	if res["ok"] != false || res["message"] != "not connected" {
		t.Errorf("Expected not connected, got %v", res)
	}

	var health map[string]any
	if code := getJSON(t, server.URL+"/api/health", &health); code != http.StatusServiceUnavailable {
		t.Errorf("Expected degraded health without a vehicle, got %d", code)
	}
}

func TestE2E_ReconnectAfterTransportFailure(t *testing.T) {
	first := fake.NewFakeLink()
	first.Push(harness.RoverHeartbeat())
	first.Fail(&link.Error{Kind: link.KindTransport, Op: "receive", Err: errors.New("serial device unplugged")})

	second := fake.NewFakeLink()
	second.Push(harness.RoverHeartbeat())

	server := harness.NewServer(t, harness.Options{Links: []*fake.FakeLink{first, second}})
	conn := dialWS(t, server.URL)

	ev := nextEvent(t, conn, "telemetry", func(ev map[string]any) bool {
		data, _ := ev["data"].(map[string]any)
		warnings, _ := data["warnings"].([]any)
		for _, w := range warnings {
			if s, _ := w.(string); strings.HasPrefix(s, "MAVLink reconnect: Transport: ") {
				return true
			}
		}
		return false
	})
	if ev == nil {
		t.Fatal("Expected reconnect warning")
	}

	harness.WaitFor(t, 3*time.Second, "second link live", func() bool {
		return server.Dials() >= 2 && server.Vehicle.Link() == link.IVehicleLink(second) && server.Vehicle.Snapshot().Connected
	})
	if !first.Closed() {
		t.Error("Expected failed link closed")
	}
}

func TestE2E_RecorderCapturesSnapshots(t *testing.T) {
	rover := fake.NewFakeLink()
	rover.Push(harness.RoverHeartbeat())
	server := harness.NewServer(t, harness.Options{Links: []*fake.FakeLink{rover}})

	harness.WaitFor(t, 3*time.Second, "connected snapshot recorded", func() bool {
		rows, err := server.Recorder.RecentSnapshots(context.Background(), 1)
		return err == nil && len(rows) == 1 && rows[0].Connected
	})
}
