package types

import "encoding/json"

// Command names a log-entry mutation.
type Command string

const (
	CommandInsert   Command = "Insert"
	CommandUpdate   Command = "Update"
	CommandDelete   Command = "Delete"
	CommandBatch    Command = "BatchTransaction"
	CommandRollback Command = "Rollback"
)

// Transaction is one authoritative, sequence-numbered log entry as the relay
// broadcasts it. Record holds the sealed ItemRecord; batches carry their
// mutations in Operations instead.
type Transaction struct {
	Seq        uint64      `json:"seqNo"`
	Command    Command     `json:"command"`
	ItemKey    ItemKey     `json:"itemKey,omitempty"`
	Record     []byte      `json:"record,omitempty"`
	Operations []Operation `json:"operations,omitempty"`
}

// Operation is one mutation inside a BatchTransaction.
type Operation struct {
	Command Command `json:"command"`
	ItemKey ItemKey `json:"itemKey"`
	Record  []byte  `json:"record,omitempty"`
}

// ItemRecord is the plaintext sealed into Transaction.Record.
//
// Version is the item version this write produces: 1 for an insert and
// the caller's current version plus one for updates and deletes.
type ItemRecord struct {
	ID      string          `json:"id"`
	Item    json.RawMessage `json:"item,omitempty"`
	Version uint64          `json:"v"`
}

// Item is one entry of a replica's ordered item list.
type Item struct {
	ID      string          `json:"itemId"`
	Payload json.RawMessage `json:"item"`
}

// StoredItem is the replica's bookkeeping for one item.
//
// Seq and OpIndex are those of the entry that inserted the item; updates
// keep them. OpIndex is set only for items inserted by a batch, where it
// breaks ordering ties between items sharing a sequence number.
type StoredItem struct {
	Seq     uint64          `msgpack:"s"`
	OpIndex *int            `msgpack:"o,omitempty"`
	Payload json.RawMessage `msgpack:"p"`
	Version uint64          `msgpack:"v"`
}

// Snapshot is a compacted image of a database at Seq.
type Snapshot struct {
	Seq   uint64                `msgpack:"seq"`
	Items map[string]StoredItem `msgpack:"items"`
}
