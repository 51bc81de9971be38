// Package relay implements the tracking and delivery core of the
// translated-chat relay: a subscription table mapping watched streams
// to their chat sessions and subscribers, a rate-limited poll
// scheduler that spreads page fetches across all tracked streams, a
// prefix matcher and batcher that turn raw chat pages into deliverable
// message blocks, and a per-subscriber dedup ledger that prevents
// double-posting when the upstream feed serves overlapping pages.
//
// The package is collaborator-agnostic: chat feeds are read through
// the ChatSource interface and outbound posts go through Destination
// capabilities, so the engine can be exercised end to end in tests
// with in-memory fakes. All tracking state is in-memory and lost on
// restart; subscribers re-subscribe after a redeploy.
package relay
