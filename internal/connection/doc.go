// Package connection implements the relay's connection layer.
//
// It provides:
//   - Role resolution from the handshake URI (?from=esp|site)
//   - Conn, the server side of one WebSocket peer with a FIFO outbox
//   - Registry, the role-indexed set of live peers
//   - Client, a dialer used by the device simulator and end-to-end tests
//
// Roles are fixed when a peer connects. Peers that do not identify as
// esp or site are registered as unknown and never receive traffic.
package connection
