// Package router implements the Message Router.
//
// Every connect, message and disconnect event is queued and handled by one
// goroutine, giving a total order over all state transitions:
//
//	connect    -> register peer; a new dashboard gets a state broadcast
//	message    -> classify and dispatch (see Route)
//	disconnect -> unregister peer
//
// Frames that are not valid JSON, or are a bare null, are relayed unchanged
// to the opposite role. Any other JSON value is consumed: dashboard commands
// mutate the route flag, device telemetry is merged into the shared state,
// and anything else is dropped. A device frame that is valid JSON but not an
// object still triggers a state broadcast.
package router
