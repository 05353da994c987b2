package consensus

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/gossip"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/logging"
	"github.com/qudag/qudag/metrics"
	"github.com/qudag/qudag/sampler"
	"github.com/qudag/qudag/validators"
	"github.com/qudag/qudag/vertex"
)

// ErrVertexNotFound is returned when an engine operation names a vertex
// absent from the DAG store.
var ErrVertexNotFound = errors.New("consensus: vertex not present in store")

// Engine is the QR-Avalanche voting engine (§4.4). It runs repeated-sampling
// rounds over every undecided vertex, updates each vertex's Confidence in
// place, and hands finalized conflict sets to the ConflictRegistry.
//
// Grounded on snow/consensus/avalanche/topological.go's Initialize/Add/
// RecordPoll shape and snow/engine/avalanche/issuer.go's per-vertex
// query-issuance flow, but implements §4.4's literal per-vertex round
// algorithm rather than topological.go's whole-DAG Kahn-traversal batching:
// one round of k-sampling per undecided vertex, not a single
// in-degree-ordered sweep.
type Engine struct {
	store    vertex.Store
	registry *ConflictRegistry
	vdrs     *validators.Set
	net      gossip.Querier
	params   Parameters
	log      logging.Logger
	lat      *metrics.Latency

	undecidedMu sync.Mutex
	undecided   ids.Set[ids.VertexID]

	locksMu sync.Mutex
	locks   map[ids.VertexID]*sync.Mutex

	// semsMu/sems bound concurrent outstanding queries per peer to
	// params.MaxInFlightQueriesPerPeer, lazily constructed the same way
	// locks is.
	semsMu sync.Mutex
	sems   map[ids.NodeID]*semaphore.Weighted

	// prefCache memoizes StronglyPreferred results within a round. It is
	// invalidated wholesale whenever any vertex's Preference flips or any
	// vertex is decided, since either can change an ancestor's answer;
	// tracking the precise reverse-dependency set isn't worth it at the
	// scale this engine targets.
	prefCacheMu sync.Mutex
	prefCache   map[ids.VertexID]bool

	acceptedMu sync.Mutex
	accepted   []ids.VertexID
}

// NewEngine wires an Engine against its DAG store, conflict registry, and
// validator/network collaborators. reg is the prometheus.Registerer the
// embedded Latency metrics register against (injected, not global).
func NewEngine(
	store vertex.Store,
	registry *ConflictRegistry,
	vdrs *validators.Set,
	net gossip.Querier,
	params Parameters,
	log logging.Logger,
	lat *metrics.Latency,
) (*Engine, error) {
	if err := params.Valid(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{
		store:     store,
		registry:  registry,
		vdrs:      vdrs,
		net:       net,
		params:    params,
		log:       log,
		lat:       lat,
		undecided: ids.NewSet[ids.VertexID](64),
		locks:     make(map[ids.VertexID]*sync.Mutex),
		sems:      make(map[ids.NodeID]*semaphore.Weighted),
		prefCache: make(map[ids.VertexID]bool),
	}, nil
}

func (e *Engine) vertexLock(id ids.VertexID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

func (e *Engine) peerSem(id ids.NodeID) *semaphore.Weighted {
	e.semsMu.Lock()
	defer e.semsMu.Unlock()
	s, ok := e.sems[id]
	if !ok {
		s = semaphore.NewWeighted(int64(e.params.MaxInFlightQueriesPerPeer))
		e.sems[id] = s
	}
	return s
}

func (e *Engine) invalidatePrefCache() {
	e.prefCacheMu.Lock()
	e.prefCache = make(map[ids.VertexID]bool)
	e.prefCacheMu.Unlock()
}

// Add inserts vtx into the DAG store, registers it in the given conflict
// set, sets its initial Preference, and enrolls it in the voting population
// (§4.4: "On issuance, a vertex joins the round-robin voting population").
func (e *Engine) Add(vtx *vertex.Vertex, conflictKey string) error {
	preferred, err := e.registry.Register(conflictKey, vtx.ID)
	if err != nil {
		return err
	}
	vtx.Confidence.Preference = preferred

	if err := e.store.Insert(vtx); err != nil {
		return err
	}
	if preferred {
		e.registry.SetPreferred(conflictKey, vtx.ID)
	}

	e.undecidedMu.Lock()
	e.undecided.Add(vtx.ID)
	e.undecidedMu.Unlock()

	e.invalidatePrefCache()
	if e.lat != nil {
		e.lat.Issued(vtx.ID)
	}
	e.log.Debug("vertex issued", zap.Stringer("vertex", vtx.ID), zap.Bool("preferred", preferred))
	return nil
}

// Preferred reports whether id is currently the preferred member of its
// conflict set.
func (e *Engine) Preferred(id ids.VertexID) (bool, error) {
	v, ok := e.store.Get(id)
	if !ok {
		return false, ErrVertexNotFound
	}
	return v.Confidence.Preference, nil
}

// StronglyPreferred implements the GLOSSARY definition: a vertex is
// strongly preferred iff it is Accepted, or it is Undecided, preferred in
// its own conflict set, and every one of its parents is itself Accepted or
// strongly preferred. Rejected vertices are never strongly preferred.
func (e *Engine) StronglyPreferred(id ids.VertexID) (bool, error) {
	v, ok := e.store.Get(id)
	if !ok {
		return false, ErrVertexNotFound
	}
	return e.stronglyPreferred(v), nil
}

func (e *Engine) stronglyPreferred(v *vertex.Vertex) bool {
	if v.Confidence.Decision == choices.Accepted {
		return true
	}
	if v.Confidence.Decision == choices.Rejected {
		return false
	}
	if !v.Confidence.Preference {
		return false
	}

	e.prefCacheMu.Lock()
	if cached, ok := e.prefCache[v.ID]; ok {
		e.prefCacheMu.Unlock()
		return cached
	}
	e.prefCacheMu.Unlock()

	result := true
	for _, p := range v.Parents {
		if p == vertex.GenesisID {
			continue
		}
		parent, ok := e.store.Get(p)
		if !ok {
			result = false
			break
		}
		if !e.stronglyPreferred(parent) {
			result = false
			break
		}
	}

	e.prefCacheMu.Lock()
	e.prefCache[v.ID] = result
	e.prefCacheMu.Unlock()
	return result
}

// RespondToQuery implements gossip.Responder for the local node: reply
// prefer iff the vertex is known locally and strongly preferred (§4.4
// "Query response rule"). Unknown vertices are answered false rather than
// blocking on a fetch, matching the non-blocking query-response contract in
// §6.
func (e *Engine) RespondToQuery(id ids.VertexID) bool {
	v, ok := e.store.Get(id)
	if !ok {
		return false
	}
	return e.stronglyPreferred(v)
}

// undecidedSnapshot copies the current undecided population for one round's
// iteration, so concurrent Add/commit calls don't race the range.
func (e *Engine) undecidedSnapshot() []ids.VertexID {
	e.undecidedMu.Lock()
	defer e.undecidedMu.Unlock()
	out := e.undecided.List()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// RunRound executes one k-sampling round for every currently-undecided
// vertex (§4.4). It is exposed as a single synchronous call rather than an
// internal goroutine loop so callers (a scheduler, or a test harness
// driving several simulated nodes in lockstep) fully control pacing and
// ordering; §5's "one voting-round scheduler" owns the job of calling this
// repeatedly. The validator set is snapshotted once per call and every
// vertex of the round samples from that snapshot.
func (e *Engine) RunRound(ctx context.Context) error {
	vdrs := e.vdrs.Snapshot()
	for _, id := range e.undecidedSnapshot() {
		if err := e.runVertexRound(ctx, id, vdrs); err != nil && !errors.Is(err, ErrVertexNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) runVertexRound(ctx context.Context, id ids.VertexID, vdrs []ids.NodeID) error {
	lock := e.vertexLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := e.store.Get(id)
	if !ok {
		return ErrVertexNotFound
	}
	if v.Confidence.Decision != choices.Undecided {
		e.undecidedMu.Lock()
		e.undecided.Remove(id)
		e.undecidedMu.Unlock()
		return nil
	}

	peers, err := sampler.UniformWithoutReplacement(vdrs, e.params.K)
	if errors.Is(err, sampler.ErrNotEnoughItems) {
		// §4.4 failure semantics: too small a validator set to sample from
		// discards the round without touching Confidence.
		e.log.Warn("round discarded: insufficient validators", zap.Stringer("vertex", id))
		return nil
	}
	if err != nil {
		return err
	}

	roundCtx, cancel := context.WithTimeout(ctx, e.params.QueryTimeout)
	defer cancel()
	nonce := uuid.New()

	type result struct {
		prefer bool
	}
	results := make(chan result, len(peers))
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer ids.NodeID) {
			defer wg.Done()
			sem := e.peerSem(peer)
			if err := sem.Acquire(roundCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			resp, err := e.net.Query(roundCtx, peer, id, nonce)
			if err != nil {
				return
			}
			results <- result{prefer: resp.Prefer}
		}(peer)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	responded, preferCount := 0, 0
	for r := range results {
		responded++
		if r.prefer {
			preferCount++
		}
	}

	// A round with too few responses to possibly have reached quorum is
	// discarded outright: neither a success nor a reset, since it carries no
	// information about the network's actual preference.
	if responded < e.params.Alpha {
		e.log.Debug("round discarded: insufficient responses",
			zap.Stringer("vertex", id), zap.Int("responded", responded))
		return nil
	}

	key, ok := e.registry.KeyOf(id)
	if !ok {
		return ErrUnknownVertex
	}

	if preferCount >= e.params.Alpha {
		v.Confidence.Chit = true
		if current, ok := e.registry.PreferredOf(key); ok && current == id {
			v.Confidence.ConsecutiveSuccesses++
			v.Confidence.CumulativeConfidence++
		} else {
			if ok {
				if old, found := e.store.Get(current); found {
					old.Confidence.Preference = false
				}
			}
			v.Confidence.Preference = true
			v.Confidence.ConsecutiveSuccesses = 1
			e.registry.SetPreferred(key, id)
			e.invalidatePrefCache()
		}
	} else {
		v.Confidence.Chit = false
		v.Confidence.ConsecutiveSuccesses = 0
	}

	if v.Confidence.ConsecutiveSuccesses >= e.params.Beta {
		return e.commit(id, key)
	}
	return nil
}

// commit finalizes id as the Accepted member of key's conflict set and
// rejects every live sibling, mirroring topological.go's acceptance path
// through to the store and the undecided population.
func (e *Engine) commit(id ids.VertexID, key string) error {
	rejected, err := e.registry.Finalize(id)
	if err != nil {
		return err
	}
	if err := e.store.MarkDecision(id, choices.Accepted); err != nil {
		return err
	}
	e.undecidedMu.Lock()
	e.undecided.Remove(id)
	e.undecidedMu.Unlock()
	if e.lat != nil {
		e.lat.Accepted(id)
	}
	e.acceptedMu.Lock()
	e.accepted = append(e.accepted, id)
	e.acceptedMu.Unlock()
	e.log.Info("vertex accepted", zap.Stringer("vertex", id))

	for _, sib := range rejected {
		if err := e.store.MarkDecision(sib, choices.Rejected); err != nil && !errors.Is(err, vertex.ErrIllegalTransition) {
			return err
		}
		e.undecidedMu.Lock()
		e.undecided.Remove(sib)
		e.undecidedMu.Unlock()
		if e.lat != nil {
			e.lat.Rejected(sib)
		}
		e.log.Debug("vertex rejected (sibling of accepted)", zap.Stringer("vertex", sib), zap.Stringer("winner", id))
	}

	e.invalidatePrefCache()
	return nil
}

// DrainAccepted returns every vertex accepted since the last call and
// clears the buffer, for a caller-driven applier loop (§5's "one applier
// committing accepted mutations to the ledger") to consume in acceptance
// order.
func (e *Engine) DrainAccepted() []ids.VertexID {
	e.acceptedMu.Lock()
	defer e.acceptedMu.Unlock()
	out := e.accepted
	e.accepted = nil
	return out
}

// NumUndecided reports the size of the current undecided population, a
// liveness signal for callers (§4.4, mirroring topological.go's
// NumProcessing health-check signal); the engine has no health-check
// method of its own.
func (e *Engine) NumUndecided() int {
	e.undecidedMu.Lock()
	defer e.undecidedMu.Unlock()
	return e.undecided.Len()
}

var _ gossip.Responder = (*Engine)(nil)
