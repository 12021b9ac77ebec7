// Package query exposes read-side go-command queriers over magic link storage
// and the issuance rate limiter.
package query
