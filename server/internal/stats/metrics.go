package stats

import (
	"fmt"
	"io"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const namespace = "reqscope"

// Gauges carries point-in-time values owned by other components.
type Gauges struct {
	Subscribers int
	LogRecords  int
	LogCapacity int
}

// WriteMetrics writes all counters and g to w in Prometheus text format.
func (s *Stats) WriteMetrics(w io.Writer, g Gauges) error {
	byStatus := s.ByStatus()
	reqs := make([]*dto.Metric, 0, len(byStatus))
	for _, code := range sortedStatuses(byStatus) {
		reqs = append(reqs, &dto.Metric{
			Label: []*dto.LabelPair{{
				Name:  proto.String("status"),
				Value: proto.String(strconv.Itoa(code)),
			}},
			Counter: &dto.Counter{Value: proto.Float64(float64(byStatus[code]))},
		})
	}

	families := []*dto.MetricFamily{
		{
			Name:   proto.String(namespace + "_requests_total"),
			Help:   proto.String("Dispatched requests by response status."),
			Type:   dto.MetricType_COUNTER.Enum(),
			Metric: reqs,
		},
		counter("dispatch_faults_total", "Requests that ended with a 5xx status.", float64(s.Faults())),
		counter("request_duration_milliseconds_total", "Sum of dispatch latencies.", float64(s.latencyMs.Load())),
		gauge("subscribers", "Live WebSocket subscribers.", float64(g.Subscribers)),
		gauge("log_records", "Records currently held in the log buffer.", float64(g.LogRecords)),
		gauge("log_capacity", "Maximum records held in the log buffer.", float64(g.LogCapacity)),
		gauge("uptime_seconds", "Seconds since the server started.", s.Uptime().Seconds()),
	}

	for _, mf := range families {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("stats: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
