// Package node wires every subsystem into a single running instance,
// constructing one node's collaborators and handing back something a
// caller can drive. This package takes an in-memory config.Node rather than
// parsing flags/viper config: CLI and environment loading are external
// collaborators, so this module starts from an already-resolved
// config.Node.
package node

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/config"
	"github.com/qudag/qudag/consensus"
	"github.com/qudag/qudag/gossip"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/immutability"
	"github.com/qudag/qudag/ledger"
	"github.com/qudag/qudag/logging"
	"github.com/qudag/qudag/mempool"
	"github.com/qudag/qudag/metrics"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/persistence"
	"github.com/qudag/qudag/primitives"
	"github.com/qudag/qudag/registry"
	"github.com/qudag/qudag/tipselect"
	"github.com/qudag/qudag/validators"
	"github.com/qudag/qudag/vertex"
)

// Node bundles one instance's subsystems (minus tipselect's free functions
// and the gossip transport, which are supplied/shared externally).
type Node struct {
	ID ids.NodeID

	Store      vertex.Store
	Registry   *consensus.ConflictRegistry
	Validators *validators.Set
	Engine     *consensus.Engine
	Ledger     *ledger.Ledger
	Controller *immutability.Controller
	Mempool    *mempool.Mempool
	Persist    *persistence.Store

	Hasher   primitives.Hasher
	Verifier primitives.Verifier
	Signer   primitives.Signer

	cfg config.Node
	log logging.Logger
}

// New constructs every component for one node identity, without opening
// persistence (call OpenPersistence separately so tests can skip disk I/O
// entirely). reg is the prometheus.Registerer the engine's Latency metrics
// attach to (injected per-node, never the global default registry).
func New(id ids.NodeID, cfg config.Node, reg prometheus.Registerer, net gossip.Querier, log logging.Logger) (*Node, error) {
	if log == nil {
		log = logging.NewNop()
	}
	hasher := primitives.Blake2bHasher{}
	signer := primitives.NaClSigner{}

	store := vertex.NewMemStore()
	conflicts := consensus.NewConflictRegistry()
	vdrs := validators.NewSet()
	controller := immutability.New(cfg.GovernanceEnabled, cfg.GovernanceKey)
	lg := ledger.New(cfg.Fees, controller, registry.AcceptAllVerifier{}, authoritySigVerifier(signer, cfg.AuthorityPubKey), signer, hasher, log)

	lat, err := metrics.NewLatency("qudag", "consensus", reg, time.Now)
	if err != nil {
		return nil, err
	}
	engine, err := consensus.NewEngine(store, conflicts, vdrs, net, cfg.Consensus, log.With(zap.Stringer("node", id)), lat)
	if err != nil {
		return nil, err
	}

	mp := mempool.New(nonceSourceFunc(lg), balanceSourceFunc(lg), signer, cfg.Mempool.PerPeerCapacity, cfg.Mempool.RateLimitPerSecond, cfg.Mempool.RateLimitBurst)

	return &Node{
		ID: id, Store: store, Registry: conflicts, Validators: vdrs, Engine: engine,
		Ledger: lg, Controller: controller, Mempool: mp,
		Hasher: hasher, Verifier: signer, Signer: signer,
		cfg: cfg, log: log,
	}, nil
}

// authoritySigVerifier adapts a primitives.Verifier and a genesis-declared
// authority public key into the ledger.AuthoritySigVerifier shape used to
// gate Mint/ConfigureFees/DeployImmutable authority signatures. pubKey
// resolution beyond the genesis-declared value is an external keystore
// collaborator, out of scope here.
func authoritySigVerifier(v primitives.Verifier, pubKey []byte) ledger.AuthoritySigVerifier {
	return func(sig, payload []byte) bool {
		if len(pubKey) == 0 {
			return false
		}
		ok, err := v.Verify(pubKey, payload, sig)
		return err == nil && ok
	}
}

// OpenPersistence opens the node's on-disk pebble store under cfg.DataDir
// and replays its WAL, reinserting each logged vertex through Engine.Add
// with consecutive_successes 0. WAL records hold only the encoded vertex,
// so Preference is derived afresh from the conflict registry (the first
// member registered under a key is preferred) and CumulativeConfidence
// starts again at 0; neither value survives a restart. A stored snapshot is
// located and logged but not applied.
func (n *Node) OpenPersistence(ctx context.Context) error {
	store, err := persistence.Open(n.cfg.DataDir, n.cfg.Persistence.WALSync)
	if err != nil {
		return err
	}
	n.Persist = store

	snap, ok, err := store.LatestSnapshot()
	if err != nil {
		return err
	}
	if ok {
		n.log.Info("loaded snapshot", zap.Uint64("height", snap.Height))
	}

	return store.ReplayWAL(func(rec persistence.Record) error {
		switch rec.Kind {
		case persistence.RecordVertexInserted:
			v, err := vertex.Decode(n.Hasher, rec.VtxBytes)
			if err != nil {
				return err
			}
			v.Confidence.ConsecutiveSuccesses = 0
			key, err := v.Payload.ConflictKey()
			if err != nil {
				return err
			}
			return n.Engine.Add(v, key.String())
		case persistence.RecordDecision:
			return n.Store.MarkDecision(rec.VtxID, rec.Status)
		default:
			return errors.New("node: unknown WAL record kind")
		}
	})
}

// SubmitTransfer runs tip selection, builds, signs, and admits a Transfer
// vertex, returning its id once it has entered the mempool.
func (n *Node) SubmitTransfer(sk []byte, pubKey []byte, t *mutation.Transfer, now time.Time) (ids.VertexID, error) {
	payload := &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: t}
	key, err := payload.ConflictKey()
	if err != nil {
		return ids.ID{}, err
	}

	parents, err := tipselect.Select(n.Store, n.Registry, key.String(), n.cfg.Consensus.MaxParents)
	if err != nil {
		return ids.ID{}, err
	}

	v := &vertex.Vertex{
		Parents:      parents,
		Payload:      payload,
		CreationTime: now,
	}
	copy(v.Creator[:], pubKey)

	headerAndBody, err := vertex.EncodeHeaderAndBody(v)
	if err != nil {
		return ids.ID{}, err
	}
	sig, err := n.Signer.Sign(sk, headerAndBody)
	if err != nil {
		return ids.ID{}, err
	}
	v.CreatorSignature = sig

	id, err := vertex.ComputeID(n.Hasher, v)
	if err != nil {
		return ids.ID{}, err
	}
	v.ID = id

	encoded, err := vertex.Encode(v)
	if err != nil {
		return ids.ID{}, err
	}
	if err := n.Mempool.Admit(n.ID, v, encoded, pubKey); err != nil {
		return ids.ID{}, err
	}
	return id, nil
}

// AdmitToConsensus moves a mempool-admitted vertex into the DAG store and
// voting population, applying its mutation to the ledger once (and if)
// it is Accepted by a caller-driven round loop via RunRoundAndApply.
func (n *Node) AdmitToConsensus(v *vertex.Vertex) error {
	key, err := v.Payload.ConflictKey()
	if err != nil {
		return err
	}
	if n.Persist != nil {
		encoded, err := vertex.Encode(v)
		if err != nil {
			return err
		}
		if err := n.Persist.AppendVertexInserted(v.ID, encoded); err != nil {
			return err
		}
	}
	if err := n.Engine.Add(v, key.String()); err != nil {
		return err
	}
	n.Mempool.MarkVotingStarted(v.ID)
	return nil
}

// RunRoundAndApply runs one consensus round and applies every vertex it
// accepted to the ledger, ordered by (height, VertexId) within that round's
// batch.
func (n *Node) RunRoundAndApply(ctx context.Context, now time.Time) error {
	if err := n.Engine.RunRound(ctx); err != nil {
		return err
	}
	return n.applyAccepted(now, n.Engine.DrainAccepted())
}

// applyAccepted applies each accepted vertex's mutation to the ledger in
// (height, VertexId) order, per §4.6 and §5's "strictly serialized by
// acceptance order" rule.
func (n *Node) applyAccepted(now time.Time, candidates []ids.VertexID) error {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, aok := n.Store.Get(candidates[i])
		b, bok := n.Store.Get(candidates[j])
		if aok && bok && a.Height != b.Height {
			return a.Height < b.Height
		}
		return candidates[i].Less(candidates[j])
	})
	for _, id := range candidates {
		v, ok := n.Store.Get(id)
		if !ok || v.Confidence.Decision != choices.Accepted {
			continue
		}
		if err := n.Ledger.Apply(id, v.Payload, now); err != nil {
			n.log.Warn("ledger apply failed (applied-with-failure)", zap.Stringer("vertex", id), zap.Error(err))
		}
		if n.Persist != nil {
			if err := n.Persist.AppendDecision(id, choices.Accepted); err != nil {
				return err
			}
		}
	}
	return nil
}

func nonceSourceFunc(l *ledger.Ledger) mempool.NonceSource {
	return nonceSourceAdapter{l}
}

type nonceSourceAdapter struct{ l *ledger.Ledger }

func (a nonceSourceAdapter) NextNonce(account ids.AccountID) uint64 {
	state, ok := a.l.Account(account)
	if !ok {
		return 0
	}
	return state.NextNonce
}

func balanceSourceFunc(l *ledger.Ledger) mempool.BalanceSource {
	return balanceSourceAdapter{l}
}

type balanceSourceAdapter struct{ l *ledger.Ledger }

func (a balanceSourceAdapter) ConfirmedBalance(account ids.AccountID) amount.Uint128 {
	state, ok := a.l.Account(account)
	if !ok {
		return amount.ZeroU128()
	}
	return state.Balance
}
