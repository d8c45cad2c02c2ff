package stats

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestObserve_Counts(t *testing.T) {
	s := New()
	s.Observe(200, 5*time.Millisecond)
	s.Observe(200, 3*time.Millisecond)
	s.Observe(404, time.Millisecond)
	s.Observe(500, time.Millisecond)

	if n := s.Requests(); n != 4 {
		t.Errorf("Requests: got %d, want 4", n)
	}
	if n := s.Faults(); n != 1 {
		t.Errorf("Faults: got %d, want 1", n)
	}
	by := s.ByStatus()
	if by[200] != 2 || by[404] != 1 || by[500] != 1 {
		t.Errorf("ByStatus: got %v", by)
	}
}

func TestObserve_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Observe(200, 0)
		}()
	}
	wg.Wait()
	if n := s.Requests(); n != 100 {
		t.Errorf("Requests: got %d, want 100", n)
	}
	if n := s.ByStatus()[200]; n != 100 {
		t.Errorf("ByStatus[200]: got %d, want 100", n)
	}
}

func TestUptime(t *testing.T) {
	base := time.Now()
	s := New()
	if s.Uptime() != 0 {
		t.Fatal("Uptime before MarkStarted should be zero")
	}
	if s.Running() {
		t.Fatal("Running before MarkStarted should be false")
	}

	s.now = fixedClock(base)
	s.MarkStarted()
	s.now = fixedClock(base.Add(90 * time.Second))

	if up := s.Uptime(); up != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", up)
	}
	if !s.Running() {
		t.Error("Running after MarkStarted should be true")
	}
}

func TestReset(t *testing.T) {
	base := time.Now()
	s := New()
	s.now = fixedClock(base)
	s.MarkStarted()
	s.Observe(500, time.Second)

	s.now = fixedClock(base.Add(time.Hour))
	s.Reset()

	if s.Requests() != 0 || s.Faults() != 0 || len(s.ByStatus()) != 0 {
		t.Error("counters not zeroed by Reset")
	}
	if s.Uptime() != 0 {
		t.Errorf("Uptime after Reset: got %v, want 0", s.Uptime())
	}
}

func TestFormatUptime(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 4*time.Second, "3m 4s"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{26*time.Hour + 5*time.Minute, "1d 2h 5m"},
	} {
		if got := FormatUptime(tc.d); got != tc.want {
			t.Errorf("FormatUptime(%v): got %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestWriteMetrics_ParsesAsPrometheusText(t *testing.T) {
	s := New()
	s.MarkStarted()
	s.Observe(200, 10*time.Millisecond)
	s.Observe(200, 20*time.Millisecond)
	s.Observe(500, 0)

	var buf bytes.Buffer
	if err := s.WriteMetrics(&buf, Gauges{Subscribers: 3, LogRecords: 3, LogCapacity: 1000}); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	reqs := mfs["reqscope_requests_total"]
	if reqs == nil {
		t.Fatal("reqscope_requests_total missing")
	}
	got := map[string]float64{}
	for _, m := range reqs.GetMetric() {
		got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if got["200"] != 2 || got["500"] != 1 {
		t.Errorf("requests_total by status: got %v", got)
	}

	if v := mfs["reqscope_subscribers"].GetMetric()[0].GetGauge().GetValue(); v != 3 {
		t.Errorf("subscribers: got %v, want 3", v)
	}
	if v := mfs["reqscope_dispatch_faults_total"].GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("dispatch_faults_total: got %v, want 1", v)
	}
	if v := mfs["reqscope_request_duration_milliseconds_total"].GetMetric()[0].GetCounter().GetValue(); v != 30 {
		t.Errorf("request_duration_milliseconds_total: got %v, want 30", v)
	}
}

func TestWriteMetrics_NoRequestsSkipsEmptyFamily(t *testing.T) {
	var buf bytes.Buffer
	if err := New().WriteMetrics(&buf, Gauges{}); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("reqscope_requests_total")) {
		t.Error("requests_total should be omitted when no request was observed")
	}
}
