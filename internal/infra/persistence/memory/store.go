// Package memory provides an in-memory implementation of the research
// persistence store used for tests, ephemeral environments, and as the
// transactional engine behind the durable backends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"capresearch/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Capability aliases domain.Capability for in-memory persistence operations.
	Capability = domain.Capability
	// Domain aliases domain.Domain.
	Domain = domain.Domain
	// Attribute aliases domain.Attribute.
	Attribute = domain.Attribute
	// VendorScore aliases domain.VendorScore.
	VendorScore = domain.VendorScore
	// CapabilityTracker aliases domain.CapabilityTracker.
	CapabilityTracker = domain.CapabilityTracker
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	capabilities map[string]Capability
	domains      map[string]Domain
	attributes   map[string]Attribute
	scores       map[string]VendorScore
	// trackers are keyed by capability name.
	trackers map[string]CapabilityTracker
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Capabilities map[string]Capability        `json:"capabilities"`
	Domains      map[string]Domain            `json:"domains"`
	Attributes   map[string]Attribute         `json:"attributes"`
	VendorScores map[string]VendorScore       `json:"vendor_scores"`
	Trackers     map[string]CapabilityTracker `json:"trackers"`
}

func newMemoryState() memoryState {
	return memoryState{
		capabilities: make(map[string]Capability),
		domains:      make(map[string]Domain),
		attributes:   make(map[string]Attribute),
		scores:       make(map[string]VendorScore),
		trackers:     make(map[string]CapabilityTracker),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.capabilities {
		cloned.capabilities[k] = v
	}
	for k, v := range s.domains {
		cloned.domains[k] = v
	}
	for k, v := range s.attributes {
		cloned.attributes[k] = v
	}
	for k, v := range s.scores {
		cloned.scores[k] = cloneVendorScore(v)
	}
	for k, v := range s.trackers {
		cloned.trackers[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Capabilities: c.capabilities,
		Domains:      c.domains,
		Attributes:   c.attributes,
		VendorScores: c.scores,
		Trackers:     c.trackers,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Capabilities {
		if v.Status == "" {
			v.Status = domain.StatusNew
		}
		state.capabilities[k] = v
	}
	for k, v := range s.Domains {
		state.domains[k] = v
	}
	for k, v := range s.Attributes {
		state.attributes[k] = v
	}
	for k, v := range s.VendorScores {
		state.scores[k] = cloneVendorScore(v)
	}
	for k, v := range s.Trackers {
		if v.CapabilityName == "" {
			v.CapabilityName = k
		}
		state.trackers[v.CapabilityName] = v
	}
	return state
}

func cloneVendorScore(s VendorScore) VendorScore {
	if s.Observation != nil {
		obs := make([]domain.Observation, len(s.Observation))
		copy(obs, s.Observation)
		s.Observation = obs
	}
	if s.EvidenceURL != nil {
		urls := make([]string, len(s.EvidenceURL))
		copy(urls, s.EvidenceURL)
		s.EvidenceURL = urls
	}
	return s
}

// Store is an in-memory implementation of the research persistence store.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn against a copy of the state. The copy replaces
// the committed state only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, nil)
}

// RunInTransactionWithCommit is RunInTransaction with a commit hook. commit
// receives the candidate state after the rules pass and before it replaces
// the committed state; an error from commit discards the transaction.
func (s *Store) RunInTransactionWithCommit(ctx context.Context, fn func(tx Transaction) error, commit func(context.Context, Snapshot) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if commit != nil {
		if err := commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListCapabilities returns all capabilities ordered by name.
func (v transactionView) ListCapabilities() []Capability {
	out := make([]Capability, 0, len(v.state.capabilities))
	for _, c := range v.state.capabilities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v transactionView) FindCapability(id string) (Capability, bool) {
	c, ok := v.state.capabilities[id]
	return c, ok
}

func (v transactionView) FindCapabilityByName(name string) (Capability, bool) {
	for _, c := range v.state.capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}

// ListDomains returns the domains of one capability ordered by name.
func (v transactionView) ListDomains(capabilityID string) []Domain {
	var out []Domain
	for _, d := range v.state.domains {
		if d.CapabilityID == capabilityID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DomainName < out[j].DomainName })
	return out
}

// ListAttributes returns the attributes of one capability ordered by domain, then name.
func (v transactionView) ListAttributes(capabilityID string) []Attribute {
	var out []Attribute
	for _, a := range v.state.attributes {
		if a.CapabilityID == capabilityID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DomainName != out[j].DomainName {
			return out[i].DomainName < out[j].DomainName
		}
		return out[i].AttributeName < out[j].AttributeName
	})
	return out
}

func (v transactionView) FindAttribute(id string) (Attribute, bool) {
	a, ok := v.state.attributes[id]
	return a, ok
}

// ListVendorScores returns the scores of one capability ordered by attribute, then vendor.
func (v transactionView) ListVendorScores(capabilityID string) []VendorScore {
	var out []VendorScore
	for _, s := range v.state.scores {
		if s.CapabilityID == capabilityID {
			out = append(out, cloneVendorScore(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttributeName != out[j].AttributeName {
			return out[i].AttributeName < out[j].AttributeName
		}
		return out[i].Vendor < out[j].Vendor
	})
	return out
}

func (v transactionView) FindVendorScore(id string) (VendorScore, bool) {
	s, ok := v.state.scores[id]
	if !ok {
		return VendorScore{}, false
	}
	return cloneVendorScore(s), true
}

func (v transactionView) FindTracker(capabilityName string) (CapabilityTracker, bool) {
	t, ok := v.state.trackers[capabilityName]
	return t, ok
}
