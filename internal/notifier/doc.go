// Package notifier delivers rendered notifications to chats.
//
// Delivery is synchronous: the caller learns whether the platform accepted
// the message. There is no queue and no retry; a failed delivery is
// reported once and forgotten.
//
// # Throttling
//
// A shared token bucket keeps bursts (one webhook fanning out to many
// subscribers) under the platform's flood limits.
//
// # History
//
// For operator visibility (/status), the service keeps a small in-memory
// history of recent deliveries.
package notifier
