// Package dedup suppresses duplicate webhook deliveries. Clockify retries
// deliveries that time out or fail, so a handler with side effects (tagging
// an entry, posting to an external system) needs an idempotency window.
//
//	delivery ──▶ Key(workspace, event, payload) ──▶ Store.PutIfAbsent
//	                     │                                 │
//	                     ▼                                 ▼
//	          payload identifier or                 first ──▶ handle
//	          sha256 of raw body                    dup   ──▶ acknowledge
//
// The cache fails open: a broken store never blocks event processing.
package dedup
