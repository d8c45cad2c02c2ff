// Package route holds the exact-match route table and the dispatcher that
// turns every inbound request into exactly one log record.
//
// Table keys are "METHOD:path" with the method upper-cased. There is no prefix
// or wildcard matching; a later Add with the same key replaces the earlier
// entry. Disabled entries stay listed but dispatch as 404.
//
// Dispatcher.Dispatch looks up the handler, invokes it, converts a returned
// error or a panic into a 500 outcome, and then pushes a types.Record into the
// log buffer and every configured sink, on matched, unmatched and faulted
// requests alike.
package route
