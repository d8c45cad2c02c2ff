package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/reqscope/pkg/types"
	"github.com/obsidianstack/reqscope/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Route      string     `json:"route"` // "METHOD /path"
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	RecordID   string     `json:"record_id"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against every request record and delivers
// webhook notifications when rules fire or resolve. An alert is tracked per
// rule and route: it fires on a matching record and resolves on the next
// record for the same route that does not match.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:METHOD /path"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	inflight sync.WaitGroup
}

// New creates an Engine from the server alert configuration. Rules whose
// condition does not parse are logged and skipped.
// An Engine with no rules is valid; Publish becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			slog.Warn("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: c})
	}
	return e
}

// Rules returns the number of rules that parsed.
func (e *Engine) Rules() int { return len(e.rules) }

// Publish evaluates every rule against rec. It implements types.Sink.
func (e *Engine) Publish(rec types.Record) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	route := rec.Method + " " + rec.Path
	for _, r := range e.rules {
		key := r.Name + ":" + route
		fires, value := r.cond.eval(rec)

		if fires {
			e.fire(r, key, route, rec, value, now)
		} else {
			e.resolve(r, key, route, now)
		}
	}
}

func (e *Engine) fire(r rule, key, route string, rec types.Record, value float64, now time.Time) {
	cooldown := r.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	e.mu.Lock()
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		e.mu.Unlock()
		return
	}
	sev := r.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d", r.Name, route, now.UnixNano()),
		RuleName: r.Name,
		Route:    route,
		Severity: sev,
		Value:    value,
		RecordID: rec.ID,
		Message: fmt.Sprintf("[%s] %s fired on %s: %s (status %d, %dms)",
			sev, r.Name, route, r.Condition, rec.Status, rec.ResponseTime),
		FiredAt: now,
		State:   "firing",
	}
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alert fired",
		"rule", r.Name,
		"route", route,
		"value", value,
		"severity", sev,
	)
	e.dispatch(&alertCopy)
}

func (e *Engine) resolve(r rule, key, route string, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[key]
	if !ok || a.State != "firing" {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alert resolved",
		"rule", r.Name,
		"route", route,
	)
	e.dispatch(&alertCopy)
}

// dispatch delivers a in the background so Publish never waits on webhooks.
func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}

// Wait blocks until all in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.inflight.Wait() }

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
