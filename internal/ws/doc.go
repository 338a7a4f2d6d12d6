// Package ws carries relay events over WebSocket.
//
// The package implements:
//   - Hub: the registry of live connections, addressed by connection id
//   - Client: one connection with a bounded send queue
//   - Handler: upgrades requests and runs the read and write pumps
//   - OriginPolicy: the browser origin allow-list
//
// Every frame is a JSON envelope {"event": name, "data": payload}. Each
// connection is read by a single goroutine, so events from one sender are
// dispatched in the order they were sent, and written by a single goroutine
// from a FIFO queue, so events to one receiver arrive in the order they were
// queued.
package ws
