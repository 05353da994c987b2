// Package persistence implements recovery and durability (§4.12, §6): a
// write-ahead log of inserted vertices and decision
// transitions, ledger snapshots, and the WAL replay a node feeds back into
// its Engine on restart.
//
// No reference database package was available for this tree (only the
// consensus/network/vms trees were pulled), so this package is grounded
// directly on the broader dependency set: github.com/cockroachdb/pebble
// is the on-disk KV store for the WAL and snapshot index, and
// github.com/DataDog/zstd compresses snapshot payloads, exactly as both
// are declared (non-indirect) in go.mod.
package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
	"time"

	"github.com/DataDog/zstd"
	"github.com/cockroachdb/pebble"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/ledger"
	"github.com/qudag/qudag/vertex"
)

// ErrCorruptWAL aborts startup with no partial replay, per §4.12: "Corrupted
// WAL aborts startup with a fatal error; no partial replay."
var ErrCorruptWAL = errors.New("persistence: write-ahead log is corrupt")

const (
	walPrefix      = "wal/"
	vertexPrefix   = "vertices/"
	accountPrefix  = "accounts/"
	controllerKey  = "controller"
	snapshotHeight = "snapshot/height"
)

// RecordKind tags a WAL entry so replay knows how to apply it.
type RecordKind byte

const (
	RecordVertexInserted RecordKind = iota
	RecordDecision
)

// Record is one WAL entry.
type Record struct {
	Kind     RecordKind
	VtxID    ids.VertexID
	VtxBytes []byte // populated for RecordVertexInserted
	Status   choices.Status
}

// Store wraps a pebble KV database as the WAL + snapshot backend.
type Store struct {
	db         *pebble.DB
	walSync    bool
	nextSeqBuf [8]byte
	seq        uint64
}

// Open opens (or creates) a pebble database at dir. walSync mirrors §6's
// persistence.wal_sync option: true fsyncs every WAL append.
func Open(dir string, walSync bool) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, walSync: walSync}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) writeOpts() *pebble.WriteOptions {
	if s.walSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// AppendVertexInserted durably records a newly-inserted vertex before it is
// handed to the consensus engine.
func (s *Store) AppendVertexInserted(vtxID ids.VertexID, vtxBytes []byte) error {
	key := s.walKey()
	var buf bytes.Buffer
	buf.WriteByte(byte(RecordVertexInserted))
	buf.Write(vtxID[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(vtxBytes)))
	buf.Write(lenBuf[:])
	buf.Write(vtxBytes)
	return s.db.Set(key, buf.Bytes(), s.writeOpts())
}

// AppendDecision durably records a vertex's decision transition.
func (s *Store) AppendDecision(vtxID ids.VertexID, status choices.Status) error {
	key := s.walKey()
	var buf bytes.Buffer
	buf.WriteByte(byte(RecordDecision))
	buf.Write(vtxID[:])
	buf.WriteByte(byte(status))
	return s.db.Set(key, buf.Bytes(), s.writeOpts())
}

func (s *Store) walKey() []byte {
	s.seq++
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], s.seq)
	return append([]byte(walPrefix), seqBuf[:]...)
}

// ReplayWAL reads every WAL record in sequence order and invokes apply for
// each. A malformed record aborts immediately with ErrCorruptWAL rather
// than skipping it, per §4.12's "no partial replay."
func (s *Store) ReplayWAL(apply func(Record) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(walPrefix),
		UpperBound: prefixUpperBound([]byte(walPrefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return ErrCorruptWAL
		}
		if err := apply(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func decodeRecord(raw []byte) (Record, error) {
	if len(raw) < 1+32 {
		return Record{}, ErrCorruptWAL
	}
	kind := RecordKind(raw[0])
	var vtxID ids.VertexID
	copy(vtxID[:], raw[1:33])
	rest := raw[33:]

	switch kind {
	case RecordVertexInserted:
		if len(rest) < 4 {
			return Record{}, ErrCorruptWAL
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(n) {
			return Record{}, ErrCorruptWAL
		}
		return Record{Kind: kind, VtxID: vtxID, VtxBytes: append([]byte(nil), rest[:n]...)}, nil
	case RecordDecision:
		if len(rest) < 1 {
			return Record{}, ErrCorruptWAL
		}
		return Record{Kind: kind, VtxID: vtxID, Status: choices.Status(rest[0])}, nil
	default:
		return Record{}, ErrCorruptWAL
	}
}

// Snapshot holds ledger state at height, compressed with zstd before being
// written, per §6's persisted-state layout. WriteSnapshot serializes
// Height, RootHash, FeeParamsEnc and each account's balance, nonce,
// verified flag, usage and window start; Undecided and accounts'
// TimeJoined are not serialized and come back empty from LatestSnapshot.
type Snapshot struct {
	Height      uint64
	RootHash    ids.ID
	Accounts    map[ids.AccountID]ledger.AccountState
	Undecided   []*vertex.Vertex
	FeeParamsEnc []byte
}

// WriteSnapshot serializes and zstd-compresses snap, storing it under the
// snapshot's height so restart can locate the latest one.
func (s *Store) WriteSnapshot(snap Snapshot) error {
	raw := encodeSnapshot(snap)
	compressed, err := zstd.Compress(nil, raw)
	if err != nil {
		return err
	}

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], snap.Height)
	key := append([]byte("snapshot/"), heightBuf[:]...)
	if err := s.db.Set(key, compressed, s.writeOpts()); err != nil {
		return err
	}
	return s.db.Set([]byte(snapshotHeight), heightBuf[:], s.writeOpts())
}

// LatestSnapshot loads the most recently written snapshot, or (Snapshot{},
// false, nil) if none exists yet.
func (s *Store) LatestSnapshot() (Snapshot, bool, error) {
	heightBytes, closer, err := s.db.Get([]byte(snapshotHeight))
	if errors.Is(err, pebble.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	height := append([]byte(nil), heightBytes...)
	closer.Close()

	key := append([]byte("snapshot/"), height...)
	compressed, closer2, err := s.db.Get(key)
	if err != nil {
		return Snapshot{}, false, err
	}
	raw, err := zstd.Decompress(nil, compressed)
	closer2.Close()
	if err != nil {
		return Snapshot{}, false, err
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// encodeSnapshot and decodeSnapshot use a simple length-prefixed,
// deterministically (sorted-by-key) ordered encoding so two nodes that
// replayed the same accepted history produce byte-identical snapshots.
func encodeSnapshot(snap Snapshot) []byte {
	var buf bytes.Buffer
	var u64 [8]byte

	binary.BigEndian.PutUint64(u64[:], snap.Height)
	buf.Write(u64[:])
	buf.Write(snap.RootHash[:])

	accountIDs := make([]ids.AccountID, 0, len(snap.Accounts))
	for id := range snap.Accounts {
		accountIDs = append(accountIDs, id)
	}
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i].Less(accountIDs[j]) })

	binary.BigEndian.PutUint32(u64[:4], uint32(len(accountIDs)))
	buf.Write(u64[:4])
	for _, id := range accountIDs {
		a := snap.Accounts[id]
		buf.Write(id[:])
		buf.Write(a.Balance.Bytes())
		binary.BigEndian.PutUint64(u64[:], a.NextNonce)
		buf.Write(u64[:])
		if a.Verified {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		binary.BigEndian.PutUint64(u64[:], a.MonthlyUsage)
		buf.Write(u64[:])
		binary.BigEndian.PutUint64(u64[:], uint64(a.UsageWindowStart.UnixNano()))
		buf.Write(u64[:])
	}

	binary.BigEndian.PutUint32(u64[:4], uint32(len(snap.FeeParamsEnc)))
	buf.Write(u64[:4])
	buf.Write(snap.FeeParamsEnc)

	return buf.Bytes()
}

func decodeSnapshot(raw []byte) (Snapshot, error) {
	if len(raw) < 8+32 {
		return Snapshot{}, ErrCorruptWAL
	}
	snap := Snapshot{Accounts: make(map[ids.AccountID]ledger.AccountState)}
	snap.Height = binary.BigEndian.Uint64(raw[:8])
	raw = raw[8:]
	copy(snap.RootHash[:], raw[:32])
	raw = raw[32:]

	if len(raw) < 4 {
		return Snapshot{}, ErrCorruptWAL
	}
	n := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]

	for i := uint32(0); i < n; i++ {
		const recLen = 32 + 16 + 8 + 1 + 8 + 8
		if len(raw) < recLen {
			return Snapshot{}, ErrCorruptWAL
		}
		var id ids.AccountID
		copy(id[:], raw[:32])
		raw = raw[32:]
		bal, err := decodeU128(raw[:16])
		if err != nil {
			return Snapshot{}, ErrCorruptWAL
		}
		raw = raw[16:]
		nonce := binary.BigEndian.Uint64(raw[:8])
		raw = raw[8:]
		verified := raw[0] != 0
		raw = raw[1:]
		usage := binary.BigEndian.Uint64(raw[:8])
		raw = raw[8:]
		winStartNanos := binary.BigEndian.Uint64(raw[:8])
		raw = raw[8:]
		snap.Accounts[id] = ledger.AccountState{
			Balance: bal, NextNonce: nonce, Verified: verified,
			MonthlyUsage: usage, UsageWindowStart: unixNano(winStartNanos),
		}
	}

	if len(raw) < 4 {
		return Snapshot{}, ErrCorruptWAL
	}
	paramsLen := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	if uint64(len(raw)) < uint64(paramsLen) {
		return Snapshot{}, ErrCorruptWAL
	}
	snap.FeeParamsEnc = append([]byte(nil), raw[:paramsLen]...)
	return snap, nil
}

func decodeU128(b []byte) (amount.Uint128, error) {
	return amount.U128FromBytes(b)
}

func unixNano(n uint64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(n)).UTC()
}

func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
