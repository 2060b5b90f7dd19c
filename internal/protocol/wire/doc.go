// Package wire defines the JSON messages exchanged with the relay over the
// persistent connection.
//
// Outbound traffic is a Request envelope naming an Action with its params
// and a client-generated request id. Inbound traffic is decoded once, by
// Decode, into one of the Inbound variants:
//
//	Connection             salts, validation challenge and relay public key
//	Ping                   heartbeat; answered with a Pong
//	ApplyTransactions      bundle and ordered log slice for one database
//	ReceiveRequestForSeed  another device of this account wants the seed
//	ReceiveSeed            the seed, sealed for this device's request key
//	Response               reply to a Request, matched by request id
//	Unknown                anything else, kept for forward compatibility
package wire
