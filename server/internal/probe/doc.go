// Package probe exposes the standard gRPC health service
// (grpc.health.v1.Health) so load balancers and orchestrators can check the
// dispatcher without touching the HTTP surface.
//
// Two services are reported: "" (the whole server) and Service. Both are
// SERVING while the dispatcher accepts traffic and NOT_SERVING after
// POST /api/server/stop or during shutdown. Check and Watch go through the
// API-key interceptors from package auth.
package probe
