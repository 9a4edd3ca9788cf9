// Package auth issues and validates the HMAC-signed JWT bearer tokens that
// guard the operator endpoints of the status server.
package auth
