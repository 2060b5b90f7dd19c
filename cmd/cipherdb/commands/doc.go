// Package commands defines the cipherdb CLI.
//
// # Commands
//
//   - keygen        Generate a new seed for an account
//   - fingerprint   Print the account's key fingerprint
//   - link          Sign this device in by asking another device for the seed
//   - items         Print the items of a database
//   - insert        Insert an item
//   - update        Replace an item
//   - delete        Delete an item
//   - share         Offer a database to another user
//   - accept        Accept database offers from other users
//   - backup        Store a password-protected copy of the seed with the relay
//   - watch         Print a database every time it changes
//   - signout       Sign this device out
//
// # Implementation
//
// The root command loads the YAML config and applies flag overrides. Commands
// that talk to the relay sign in lazily through connect, which resumes the
// session remembered on this device unless --user and --session are given.
// Key-exchange prompts are answered on the terminal.
package commands
