// Package client is the dialing side of the tunnel: connect and
// authenticate, encrypted send and receive, and the background keep-alive.
package client
