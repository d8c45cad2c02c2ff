package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// webhookEvent is the body POSTed to "http" targets.
type webhookEvent struct {
	Source   string `json:"source"`
	Event    string `json:"event"` // "alert.firing" | "alert.resolved"
	Route    string `json:"route"`
	RecordID string `json:"record_id"`
	Alert    *Alert `json:"alert"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	Text  string      `json:"text"`
	Facts []teamsFact `json:"facts"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// deliver posts a to every configured target. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body interface{}
		switch wh.Type {
		case "slack":
			body = slackBody(a)
		case "teams":
			body = teamsBody(a)
		case "http":
			body = webhookEvent{
				Source:   "reqscope",
				Event:    "alert." + a.State,
				Route:    a.Route,
				RecordID: a.RecordID,
				Alert:    a,
			}
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.postJSON(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"route", a.Route,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// facts lists the request details shared by the chat payloads.
func facts(a *Alert) [][2]string {
	out := [][2]string{
		{"Route", a.Route},
		{"Value", fmt.Sprintf("%g", a.Value)},
		{"Record", a.RecordID},
		{"Fired", a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		out = append(out, [2]string{"Resolved", a.ResolvedAt.UTC().Format(time.RFC3339)})
	}
	return out
}

func headline(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("resolved: %s on %s", a.RuleName, a.Route)
	}
	return fmt.Sprintf("%s %s on %s", severityLabel(a.Severity), a.RuleName, a.Route)
}

func slackBody(a *Alert) slackMessage {
	att := slackAttachment{Color: "#" + stateColor(a)}
	for _, f := range facts(a) {
		att.Fields = append(att.Fields, slackField{Title: f[0], Value: f[1], Short: f[0] != "Route"})
	}
	return slackMessage{
		Text:        fmt.Sprintf("*%s*\n%s", headline(a), a.Message),
		Attachments: []slackAttachment{att},
	}
}

func teamsBody(a *Alert) teamsCard {
	sec := teamsSection{Text: a.Message}
	for _, f := range facts(a) {
		sec.Facts = append(sec.Facts, teamsFact{Name: f[0], Value: f[1]})
	}
	return teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: stateColor(a),
		Summary:    a.RuleName,
		Title:      "reqscope " + headline(a),
		Sections:   []teamsSection{sec},
	}
}

func (e *Engine) postJSON(url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return e.post(url, body)
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// stateColor is green once resolved, otherwise keyed by severity.
func stateColor(a *Alert) string {
	if a.State == "resolved" {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
