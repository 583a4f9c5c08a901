// Package relay implements the tally distribution core: the connection
// directory, the session registry, and the broadcast engine.
//
// All shared state is owned by a single hub goroutine fed through a command
// channel (no mutexes). Writes to clients go through per-connection writer
// goroutines with buffered send channels, so no session can stall another.
package relay
