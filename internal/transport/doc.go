// Package transport adapts crypto/tls to the listen, accept, and dial
// surface the tunnel core consumes.
//
// Ownership boundary:
//   - listener with per-call accept timeout
//   - dialer with bounded connect and handshake
//   - tls.Config construction from session.Config (certificates, trust
//     verification mode, cipher suite allow-list)
//
// The TLS handshake and record layer themselves are crypto/tls's concern.
package transport
