// Package events fans magic link lifecycle events out to observers. The Bus
// implements types.EventPublisher and LoggingObserver records each event with
// identifiers and links masked.
package events
