// Package config collects the typed configuration structs for every
// component, following vms/platformvm/config/config.go's plain
// documented-struct style rather than a flag/env-parsing layer — loading
// configuration from a CLI or environment is an external collaborator, so
// this package only fixes the shape and the defaults from §6's
// "Configuration" table.
package config

import (
	"time"

	"github.com/qudag/qudag/consensus"
	"github.com/qudag/qudag/fees"
)

// Immutability mirrors §6's "immutability." block.
type Immutability struct {
	Enabled      bool
	GraceSeconds uint64
}

// DefaultImmutability returns the documented defaults.
func DefaultImmutability() Immutability {
	return Immutability{Enabled: false, GraceSeconds: 86_400}
}

// Persistence mirrors §6's "persistence." block.
type Persistence struct {
	SnapshotIntervalVertices uint64
	WALSync                  bool
}

// DefaultPersistence returns the documented defaults.
func DefaultPersistence() Persistence {
	return Persistence{SnapshotIntervalVertices: 10_000, WALSync: true}
}

// Mempool configures admission control (§4.10).
type Mempool struct {
	PerPeerCapacity   int
	RateLimitPerSecond float64
	RateLimitBurst    int
}

// DefaultMempool returns reasonable defaults not pinned by §6 (the spec
// gives "e.g." values only for capacity; rate limiting is this module's own
// addition layered on top via golang.org/x/time/rate).
func DefaultMempool() Mempool {
	return Mempool{PerPeerCapacity: 1024, RateLimitPerSecond: 200, RateLimitBurst: 400}
}

// Node is the top-level configuration a single node process is constructed
// from.
type Node struct {
	Consensus     consensus.Parameters
	Fees          fees.Params
	Immutability  Immutability
	Persistence   Persistence
	Mempool       Mempool
	DataDir       string
	GovernanceEnabled bool
	GovernanceKey []byte
	// AuthorityPubKey authorizes Mint/ConfigureFees/DeployImmutable
	// mutations; a genesis-declared value, not loaded from CLI/env here.
	AuthorityPubKey []byte
}

// Default returns a fully-populated Node config using every component's
// documented defaults, suitable for tests and the in-process harness.
func Default() Node {
	return Node{
		Consensus:    consensus.DefaultParameters(),
		Fees:         fees.DefaultParams(),
		Immutability: DefaultImmutability(),
		Persistence:  DefaultPersistence(),
		Mempool:      DefaultMempool(),
		DataDir:      "./qudag-data",
	}
}

// QueryTimeout is exposed at the top level for convenience since it's the
// one consensus.Parameters field most often overridden directly by tests
// wanting faster rounds.
func (n Node) QueryTimeout() time.Duration {
	return n.Consensus.QueryTimeout
}
