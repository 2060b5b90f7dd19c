// Package bundle compacts a database snapshot for upload to the relay and
// restores snapshots the relay hands back.
//
// A snapshot is encoded with msgpack, compressed with zstd, split into
// chunks and each chunk sealed under the database key. A chunk's additional
// data binds it to its database, sequence number, position and the chunk
// count, so chunks cannot be reordered, dropped or mixed between bundles.
package bundle

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/wire"
)

// DefaultChunkSize bounds the compressed bytes per sealed chunk.
const DefaultChunkSize = 512 * 1024

// maxDecoded caps decompression so a hostile bundle cannot exhaust memory.
const maxDecoded = 256 << 20

// Build seals snapshot into a wire bundle for database id.
func Build(snap domain.Snapshot, key *keys.DatabaseKey, id domain.DatabaseID, chunkSize int) (*wire.Bundle, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	raw, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("bundle encode: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("bundle compress: %w", err)
	}
	packed := enc.EncodeAll(raw, nil)
	_ = enc.Close()

	count := (len(packed) + chunkSize - 1) / chunkSize
	if count == 0 {
		count = 1
	}
	b := &wire.Bundle{SeqNo: snap.Seq, Chunks: make([][]byte, 0, count)}
	for i := 0; i < count; i++ {
		part := packed[i*chunkSize : min((i+1)*chunkSize, len(packed))]
		sealed, err := key.Encrypt(part, chunkAAD(id, snap.Seq, i, count))
		if err != nil {
			return nil, err
		}
		b.Chunks = append(b.Chunks, sealed)
	}

	ids := make([]string, 0, len(snap.Items))
	for itemID := range snap.Items {
		ids = append(ids, itemID)
	}
	slices.Sort(ids)
	for _, itemID := range ids {
		b.ItemKeys = append(b.ItemKeys, key.ItemKey(itemID))
	}
	return b, nil
}

// Open verifies and decodes a bundle for database id.
func Open(b *wire.Bundle, key *keys.DatabaseKey, id domain.DatabaseID) (domain.Snapshot, error) {
	if b == nil || len(b.Chunks) == 0 {
		return domain.Snapshot{}, errs.New(errs.CodeRequestFailed, "empty bundle")
	}
	var packed bytes.Buffer
	for i, c := range b.Chunks {
		part, err := key.Decrypt(c, chunkAAD(id, b.SeqNo, i, len(b.Chunks)))
		if err != nil {
			return domain.Snapshot{}, errs.Wrap(errs.CodeKeyNotValid, err, "bundle chunk "+strconv.Itoa(i))
		}
		packed.Write(part)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("bundle decompress: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(packed.Bytes(), nil)
	if err != nil {
		return domain.Snapshot{}, errs.Wrap(errs.CodeRequestFailed, err, "bundle decompress")
	}
	var snap domain.Snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, errs.Wrap(errs.CodeRequestFailed, err, "bundle decode")
	}
	if snap.Seq != b.SeqNo {
		return domain.Snapshot{}, errs.Newf(errs.CodeRequestFailed, "bundle sequence %d does not match %d", snap.Seq, b.SeqNo)
	}
	if snap.Items == nil {
		snap.Items = map[string]domain.StoredItem{}
	}
	return snap, nil
}

func chunkAAD(id domain.DatabaseID, seq uint64, index, count int) []byte {
	return []byte(string(id) + "|" + strconv.FormatUint(seq, 10) + "|" + strconv.Itoa(index) + "|" + strconv.Itoa(count))
}
