// Package postgres provides the PostgreSQL implementation of the
// messenger.Messenger interface. Published messages travel over
// LISTEN/NOTIFY; latest values are kept in the messenger_kv table, whose
// schema is managed by the embedded goose migrations.
package postgres
