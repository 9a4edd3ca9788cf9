// Package task launches and supervises background work inside a single process.
//
// Work is declared as a Description of one of four kinds: init (one-shot setup),
// continuous (long-running), periodic (fixed frequency with drift compensation)
// and cleanup (run once at shutdown). Descriptions are collected in a Registry and
// executed by a Driver in strict phases: cleanup hooks are registered, init units
// run to completion, then continuous and periodic units run together until they
// return or the RunFlag is stopped. Every unit ends up as exactly one Record
// holding its result, its failure, or an unqueryable marker.
//
// A Monitor classifies the live units into running/done/failed and pushes the
// snapshot through a messenger.Messenger so external observers can follow a run.
package task
