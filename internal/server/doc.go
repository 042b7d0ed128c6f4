// Package server is the accepting side of the tunnel.
//
// A Server binds one TLS listener, hands every accepted connection to a
// bounded worker pool, and runs one handler per connection. The handler
// owns its session: it registers it, answers keep-alives, decrypts payloads
// for the PayloadHandler, and tears the session down exactly once.
//
// Stop is cooperative. It closes every registered channel so blocked
// receives return, closes the listener, and waits for the accept loop and
// every handler to finish.
package server
