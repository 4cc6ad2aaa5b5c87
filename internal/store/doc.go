// Package store provides storage and pub/sub for install records.
//
// This package is internal to provisionwatch and keeps the state of every
// install the server has started. It implements a publish-subscribe pattern
// so that SSE and WebSocket clients see status changes as they happen.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Install]: Storage representation of one install
//
// Records live only as long as the process. Subscribers receive updates via
// channels with non-blocking sends (slow subscribers miss updates rather than
// block the workflow).
package store
