// Package app wires application dependencies for the CLI.
//
// It loads Config, builds the local store, the session service and, through
// it, the relay connection and database service, exposing them via Wire and
// App for commands to use.
package app
