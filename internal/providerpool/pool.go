// Package providerpool implements provider-node selection and direct
// fallback execution (C7): weighted-random pick among non-backed-off nodes,
// provider affinity, and exponential back-off bookkeeping per node.
package providerpool

import (
	"math/rand"
	"sync"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

// Pool holds the configured provider nodes and their back-off state.
//
// The total weight is not cached: weightedPick sums the weights of the
// current eligible candidates on every pick, and a draw that runs past the
// total (floating-point drift) falls to the last candidate.
type Pool struct {
	mu      sync.Mutex
	nodes   []rpctypes.ProviderNode
	backoff *backoffTracker
	rng     *rand.Rand
}

// New returns a pool over nodes.
func New(nodes []rpctypes.ProviderNode) *Pool {
	return &Pool{
		nodes:   nodes,
		backoff: newBackoffTracker(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RecordFailure advances the back-off of the node at url. Back-off is
// keyed per endpoint URL, not per provider id (spec §3 BackoffState):
// provider ids are optional and several nodes may share one, but each URL
// fails independently.
func (p *Pool) RecordFailure(url string, now time.Time) {
	p.backoff.RecordFailure(url, now)
}

// RecordSuccess clears the back-off of the node at url.
func (p *Pool) RecordSuccess(url string) {
	p.backoff.RecordSuccess(url)
}

// ErrNoEligibleProvider is returned by Pick when every configured node is
// currently backed off.
type ErrNoEligibleProvider struct{}

func (ErrNoEligibleProvider) Error() string { return "providerpool: no eligible provider node" }

// Pick selects one node weighted-randomly among those not currently backed
// off. When affinityProviderID is non-empty and at least one eligible node
// carries that id, selection is restricted to nodes with that id first
// (spec §7's provider-affinity filter: keep repeat calls on the same node
// when possible, e.g. to reuse a provider's own internal caching).
func (p *Pool) Pick(now time.Time, affinityProviderID string) (rpctypes.ProviderNode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	eligible := p.eligibleNodesLocked(now)
	if len(eligible) == 0 {
		return rpctypes.ProviderNode{}, ErrNoEligibleProvider{}
	}

	if affinityProviderID != "" {
		var affine []rpctypes.ProviderNode
		for _, n := range eligible {
			if n.ProviderID == affinityProviderID {
				affine = append(affine, n)
			}
		}
		if len(affine) > 0 {
			eligible = affine
		}
	}

	return weightedPick(p.rng, eligible), nil
}

func (p *Pool) eligibleNodesLocked(now time.Time) []rpctypes.ProviderNode {
	out := make([]rpctypes.ProviderNode, 0, len(p.nodes))
	for _, n := range p.nodes {
		if p.backoff.Eligible(n.URL, now) {
			out = append(out, n)
		}
	}
	return out
}

func weightedPick(rng *rand.Rand, nodes []rpctypes.ProviderNode) rpctypes.ProviderNode {
	var total float64
	for _, n := range nodes {
		w := n.Weighting
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total <= 0 {
		return nodes[rng.Intn(len(nodes))]
	}
	target := rng.Float64() * total
	var acc float64
	for _, n := range nodes {
		w := n.Weighting
		if w <= 0 {
			w = 1
		}
		acc += w
		if target < acc {
			return n
		}
	}
	// Floating point drift can leave target just past the running total;
	// self-heal by returning the last node rather than panicking/looping.
	return nodes[len(nodes)-1]
}

// NodeStatus is a point-in-time snapshot of one configured node's back-off
// eligibility, used by introspection/CLI surfaces.
type NodeStatus struct {
	URL        string
	ProviderID string
	Weighting  float64
	Eligible   bool
}

// Snapshot returns the current eligibility of every configured node without
// mutating any state.
func (p *Pool) Snapshot(now time.Time) []NodeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]NodeStatus, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = NodeStatus{
			URL:        n.URL,
			ProviderID: n.ProviderID,
			Weighting:  n.Weighting,
			Eligible:   p.backoff.Eligible(n.URL, now),
		}
	}
	return out
}

// PickExcluding is Pick restricted to nodes other than the one at
// excludeURL, used by the engine's one-level failover recursion (spec §8:
// retry once on a different node, never loop indefinitely). Exclusion is by
// URL, like back-off: the node that just failed is the endpoint, whatever
// its (optional) provider id says.
//
// If every node is currently backing off, it falls through a three-tier
// ladder rather than failing outright (spec §4.6.6): prefer a non-backed-off
// node other than the excluded one; failing that, any node other than the
// excluded one regardless of back-off; failing that, reuse the excluded
// node itself. This only gives up when the pool has no nodes at all,
// guaranteeing forward progress.
func (p *Pool) PickExcluding(now time.Time, excludeURL string) (rpctypes.ProviderNode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.nodes) == 0 {
		return rpctypes.ProviderNode{}, ErrNoEligibleProvider{}
	}

	eligible := p.eligibleNodesLocked(now)
	if tier := excluding(eligible, excludeURL); len(tier) > 0 {
		return weightedPick(p.rng, tier), nil
	}
	if tier := excluding(p.nodes, excludeURL); len(tier) > 0 {
		return weightedPick(p.rng, tier), nil
	}
	return weightedPick(p.rng, p.nodes), nil
}

func excluding(nodes []rpctypes.ProviderNode, excludeURL string) []rpctypes.ProviderNode {
	out := nodes[:0:0]
	for _, n := range nodes {
		if n.URL != excludeURL {
			out = append(out, n)
		}
	}
	return out
}
