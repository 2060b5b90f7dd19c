package wire

import (
	"encoding/json"
	"fmt"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
)

// Route names an inbound broadcast.
type Route string

const (
	RouteConnection            Route = "Connection"
	RoutePing                  Route = "Ping"
	RouteApplyTransactions     Route = "ApplyTransactions"
	RouteReceiveRequestForSeed Route = "ReceiveRequestForSeed"
	RouteReceiveSeed           Route = "ReceiveSeed"
)

// Inbound is implemented by every decoded inbound message.
type Inbound interface{ route() Route }

// Connection opens every socket. The client derives its keys from Salts and
// proves possession by opening EncryptedValidationMessage with the key it
// shares with RelayPublicKey.
type Connection struct {
	Salts                      keys.Salts          `json:"keySalts"`
	EncryptedValidationMessage []byte              `json:"encryptedValidationMessage"`
	RelayPublicKey             domain.X25519Public `json:"ecdhPublicKey"`
	WrappedSigningKey          []byte              `json:"wrappedSigningKey,omitempty"`
	Username                   domain.Username     `json:"username,omitempty"`
	UserID                     string              `json:"userId,omitempty"`
}

// Ping is the relay heartbeat.
type Ping struct{}

// ApplyTransactions delivers log entries for one database. WrappedKey is
// present on the first delivery after OpenDatabase.
type ApplyTransactions struct {
	DbID        domain.DatabaseID    `json:"dbId"`
	DbNameHash  domain.NameHash      `json:"dbNameHash"`
	WrappedKey  []byte               `json:"dbKey,omitempty"`
	Bundle      *Bundle              `json:"bundle,omitempty"`
	Log         []domain.Transaction `json:"transactionLog"`
	BuildBundle bool                 `json:"buildBundle,omitempty"`
	ReadOnly    bool                 `json:"readOnly,omitempty"`
}

// ReceiveRequestForSeed is relayed from a device of the same account.
type ReceiveRequestForSeed struct {
	RequesterPublicKey domain.X25519Public `json:"requesterPublicKey"`
}

// ReceiveSeed carries the seed sealed by a confirming device.
type ReceiveSeed struct {
	SenderPublicKey domain.X25519Public `json:"senderPublicKey"`
	EncryptedSeed   []byte              `json:"encryptedSeed"`
}

// Response answers the Request with the same RequestID.
type Response struct {
	RequestID string          `json:"requestId"`
	Status    int             `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Failure   *errs.Failure   `json:"error,omitempty"`
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status/100 == 2 }

// Unknown is an inbound message with a route this client does not handle.
type Unknown struct {
	Route Route
	Raw   json.RawMessage
}

func (*Connection) route() Route            { return RouteConnection }
func (*Ping) route() Route                  { return RoutePing }
func (*ApplyTransactions) route() Route     { return RouteApplyTransactions }
func (*ReceiveRequestForSeed) route() Route { return RouteReceiveRequestForSeed }
func (*ReceiveSeed) route() Route           { return RouteReceiveSeed }
func (*Response) route() Route              { return "" }
func (u *Unknown) route() Route             { return u.Route }

// RouteOf returns the route of m, empty for responses.
func RouteOf(m Inbound) Route { return m.route() }

type head struct {
	Route     Route  `json:"route"`
	RequestID string `json:"requestId"`
}

// Decode parses one inbound frame into its variant.
func Decode(b []byte) (Inbound, error) {
	var h head
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("decode inbound: %w", err)
	}
	var m Inbound
	switch {
	case h.RequestID != "" && h.Route == "":
		m = &Response{}
	case h.Route == RouteConnection:
		m = &Connection{}
	case h.Route == RoutePing:
		return &Ping{}, nil
	case h.Route == RouteApplyTransactions:
		m = &ApplyTransactions{}
	case h.Route == RouteReceiveRequestForSeed:
		m = &ReceiveRequestForSeed{}
	case h.Route == RouteReceiveSeed:
		m = &ReceiveSeed{}
	default:
		return &Unknown{Route: h.Route, Raw: append(json.RawMessage(nil), b...)}, nil
	}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.Route, err)
	}
	return m, nil
}

// Encode marshals an outbound request.
func Encode(r Request) ([]byte, error) { return json.Marshal(r) }
