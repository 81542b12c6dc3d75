// Package sqlite implements storage.RelationalStore on SQLite through the
// pure-Go modernc.org/sqlite driver. It is the default relational half of
// the dual store and needs no external server.
package sqlite
