// Package api provides the HTTP status surface of a running application:
// health, task and periodical status, resource usage, the final results and
// an authenticated shutdown endpoint. Handlers depend on small interfaces so
// they can be tested without a live runtime.
package api
