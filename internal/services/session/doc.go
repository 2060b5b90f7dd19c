// Package session signs a device in to the relay and keeps it signed in.
//
// A Service owns one relay connection per sign-in together with the
// database service bound to it. It finds the seed for the account (given,
// remembered, recovered from a password backup, or requested from another
// device), persists the session record according to the remember-me mode,
// and answers seed requests from the account's other devices after a human
// confirms them.
package session
