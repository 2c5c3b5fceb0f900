// Package linktest provides transport-agnostic conformance testing for
// vehicle links.
//
// Every link.IVehicleLink implementation, real or fake, must pass
// RunConformance so the supervisor and executor can rely on the same
// receive, send and close semantics.
package linktest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/radio-control/mavbridge/internal/link"
)

// Capabilities describes the implementation under test.
type Capabilities struct {
	// KnownMode is a mode name SetMode must accept.
	KnownMode string
	// UnknownMode is a mode name SetMode must reject with UnsupportedMode.
	UnknownMode string
	// MaxPrimitiveLatency bounds every non-blocking primitive.
	MaxPrimitiveLatency time.Duration
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.Results = append(r.Results, result)
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
}

// RunConformance runs the complete conformance suite. newLink must return a
// fresh, open link on every call.
func RunConformance(t *testing.T, newLink func(t *testing.T) link.IVehicleLink, caps Capabilities) {
	t.Helper()
	if caps.MaxPrimitiveLatency <= 0 {
		caps.MaxPrimitiveLatency = 100 * time.Millisecond
	}

	startTime := time.Now()
	report := &ConformanceReport{OverallPassed: true}

	runReceiveTests(t, newLink, report)
	runPrimitiveTests(t, newLink, caps, report)
	runSetModeTests(t, newLink, caps, report)
	runClosedTests(t, newLink, report)

	report.Duration = time.Since(startTime)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Link conformance failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// check runs fn and records its outcome under name.
func check(report *ConformanceReport, name string, fn func() error) {
	start := time.Now()
	err := fn()
	result := ConformanceResult{TestName: name, Passed: err == nil, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
	}
	report.addResult(result)
}

// runReceiveTests checks that an idle link yields (nil, nil) on timeout and on
// cancellation instead of blocking or failing.
func runReceiveTests(t *testing.T, newLink func(t *testing.T) link.IVehicleLink, report *ConformanceReport) {
	l := newLink(t)
	defer l.Close()

	check(report, "ReceiveNext_Timeout", func() error {
		start := time.Now()
		msg, err := l.ReceiveNext(context.Background(), 20*time.Millisecond)
		if msg != nil || err != nil {
			return fmt.Errorf("expected (nil, nil), got (%v, %v)", msg, err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			return fmt.Errorf("timeout of 20ms took %v", elapsed)
		}
		return nil
	})

	check(report, "ReceiveNext_Cancelled", func() error {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		msg, err := l.ReceiveNext(ctx, time.Hour)
		if msg != nil || err != nil {
			return fmt.Errorf("expected (nil, nil), got (%v, %v)", msg, err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			return fmt.Errorf("cancelled receive took %v", elapsed)
		}
		return nil
	})
}

// runPrimitiveTests checks every outbound primitive succeeds promptly on an
// open link.
func runPrimitiveTests(t *testing.T, newLink func(t *testing.T) link.IVehicleLink, caps Capabilities, report *ConformanceReport) {
	l := newLink(t)
	defer l.Close()
	ctx := context.Background()
	steering, throttle := 1500, 1600

	primitives := []struct {
		name string
		fn   func() error
	}{
		{"Arm", func() error { return l.Arm(ctx) }},
		{"Disarm", func() error { return l.Disarm(ctx) }},
		{"RebootAutopilot", func() error { return l.RebootAutopilot(ctx) }},
		{"Ping", func() error { return l.Ping(ctx) }},
		{"OverrideRCChannels", func() error { return l.OverrideRCChannels(ctx, &steering, &throttle) }},
		{"OverrideRCChannels_Release", func() error { return l.OverrideRCChannels(ctx, nil, nil) }},
		{"SendCommandLong", func() error {
			return l.SendCommandLong(ctx, link.CommandLong{Command: 400, Params: [7]float32{1}})
		}},
	}

	for _, p := range primitives {
		check(report, p.name+"_Open", func() error {
			start := time.Now()
			if err := p.fn(); err != nil {
				return fmt.Errorf("%s failed: %v", p.name, err)
			}
			if elapsed := time.Since(start); elapsed > caps.MaxPrimitiveLatency {
				return fmt.Errorf("%s took %v, limit %v", p.name, elapsed, caps.MaxPrimitiveLatency)
			}
			return nil
		})
	}
}

// runSetModeTests checks mode names are resolved against the link's table.
func runSetModeTests(t *testing.T, newLink func(t *testing.T) link.IVehicleLink, caps Capabilities, report *ConformanceReport) {
	l := newLink(t)
	defer l.Close()
	ctx := context.Background()

	if caps.KnownMode != "" {
		check(report, "SetMode_Known", func() error {
			return l.SetMode(ctx, caps.KnownMode)
		})
	}
	if caps.UnknownMode != "" {
		check(report, "SetMode_Unknown", func() error {
			return expectKind(l.SetMode(ctx, caps.UnknownMode), link.KindUnsupportedMode)
		})
	}
	check(report, "SetMode_Empty", func() error {
		return expectKind(l.SetMode(ctx, ""), link.KindUnsupportedMode)
	})
}

// runClosedTests checks Close is idempotent and every primitive afterwards
// reports NotConnected.
func runClosedTests(t *testing.T, newLink func(t *testing.T) link.IVehicleLink, report *ConformanceReport) {
	l := newLink(t)
	ctx := context.Background()

	check(report, "Close_Idempotent", func() error {
		if err := l.Close(); err != nil {
			return fmt.Errorf("first Close failed: %v", err)
		}
		if err := l.Close(); err != nil {
			return fmt.Errorf("second Close failed: %v", err)
		}
		return nil
	})

	check(report, "ReceiveNext_Closed", func() error {
		msg, err := l.ReceiveNext(ctx, 10*time.Millisecond)
		if msg != nil {
			return fmt.Errorf("expected no message, got %v", msg)
		}
		return expectKind(err, link.KindNotConnected)
	})

	closed := map[string]func() error{
		"Arm":                func() error { return l.Arm(ctx) },
		"Disarm":             func() error { return l.Disarm(ctx) },
		"RebootAutopilot":    func() error { return l.RebootAutopilot(ctx) },
		"Ping":               func() error { return l.Ping(ctx) },
		"OverrideRCChannels": func() error { return l.OverrideRCChannels(ctx, nil, nil) },
		"SendCommandLong":    func() error { return l.SendCommandLong(ctx, link.CommandLong{Command: 400}) },
	}
	for name, fn := range closed {
		check(report, name+"_Closed", func() error {
			return expectKind(fn(), link.KindNotConnected)
		})
	}
}

func expectKind(err error, want link.Kind) error {
	if err == nil {
		return fmt.Errorf("expected %s error, got nil", want)
	}
	if got := link.KindOf(err); got != want {
		return fmt.Errorf("expected %s error, got %v", want, err)
	}
	return nil
}

// printConformanceReport logs the report through t.
func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Helper()
	t.Logf("Link conformance: %d/%d passed in %v", report.PassedTests, report.TotalTests, report.Duration)
	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			t.Logf("  %s %-32s %v  %s", status, result.TestName, result.Duration, result.Error)
		} else {
			t.Logf("  %s %-32s %v", status, result.TestName, result.Duration)
		}
	}
}
