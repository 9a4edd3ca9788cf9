// Package probe samples resource usage of the running process and of the host
// it runs on, and provides task functions that publish those samples through
// a messenger.
package probe
