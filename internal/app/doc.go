// Package app ties the task runtime together: it owns the registry, the
// execution driver, the run flag and the messenger, and registers the
// built-in monitors from configuration.
package app
