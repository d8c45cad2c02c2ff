// Package auth checks the shared API key on the gRPC and REST surfaces.
//
// APIKeyInterceptor and APIKeyStreamInterceptor read the key from the named
// gRPC metadata header and fail with codes.Unauthenticated when it is absent
// or wrong. RequireAPIKey does the same for mutating REST calls and answers
// 401 with the standard error body.
//
// When mode != "apikey" or key == "", everything passes through (useful for
// local development with auth disabled). Keys are compared in constant time.
package auth
