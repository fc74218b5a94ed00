// Package buffer provides an unbounded, order-preserving queue.
//
// The relay uses it in two places:
//   - the Message Router's inbound event queue (many producers, one consumer)
//   - each connection's outbox (one producer, one writer goroutine)
//
// Producers never block, so a slow dashboard cannot stall the router.
package buffer
