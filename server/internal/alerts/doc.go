// Package alerts evaluates rules against every dispatched request and
// notifies webhooks (Teams, Slack or generic HTTP) when an alert fires or
// resolves. Engine plugs into the dispatcher as a types.Sink; GET /api/alerts
// reads Engine.Active.
package alerts
