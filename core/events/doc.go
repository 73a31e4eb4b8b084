// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - DispatchEvent: a window moved through the solve state machine
//   - RunEvent: a multi-window run finished
package events
