// Package feed maintains the upstream market data connection.
//
// Client owns one physical WebSocket connection. Connector wraps it
// into a single logical connection that survives disconnects: it
// reconnects with exponential backoff, replays subscriptions, and goes
// terminally failed only after exhausting its attempt budget. Poller
// is the REST variant for environments without a streaming endpoint.
package feed
