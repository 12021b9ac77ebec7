// Package ratelimit provides fixed window attempt counters used to throttle
// magic link issuance. The window opens at the first hit for a key and the
// count resets once it elapses.
package ratelimit
