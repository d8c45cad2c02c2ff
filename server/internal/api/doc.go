// Package api implements the management REST API.
//
// New(deps) returns a Handler that serves:
//
//	GET    /api/logs?limit=N             newest N records, newest first, + total
//	DELETE /api/logs                     clear the in-memory log
//	GET    /api/logs/history?since=&limit=  archived records; 404 without storage
//	GET    /api/routes                   route table in registration order
//	POST   /api/routes                   {path, method, handler} adds a named route
//	PUT    /api/routes                   {path, method, enabled} toggles a route
//	DELETE /api/routes?path=&method=     removes a route
//	GET    /api/server/status            running | stopped
//	GET    /api/server/stats             uptime, totals, subscribers, memory
//	GET    /api/server/config            effective configuration summary
//	POST   /api/server/start|stop        resume or pause dispatching
//	GET    /api/alerts                   firing and recently resolved alerts
//	GET    /metrics                      Prometheus text exposition
//
// Every /api/ endpoint sets CORS headers and answers OPTIONS with 200. Errors
// use the respond.ErrorBody envelope. Requests handled here are not recorded
// in the request log.
package api
