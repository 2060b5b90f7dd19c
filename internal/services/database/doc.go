// Package database is the facade over per-database replicas.
//
// Open subscribes to a database on the relay and returns once its first
// delivery has been applied. Writes are validated locally, sealed with the
// database key and sent to the relay; each one then waits until the log
// entry the relay assigned to it has been applied to the local replica, so
// a successful write is always visible in Items.
//
// Deliveries for one database run through that database's FIFO queue, one
// at a time, in arrival order.
package database
