package device

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotPending is returned when resolving a UUID with no pending entry.
	ErrNotPending = errors.New("device not pending")

	// ErrNotApproved is returned when no issued credential awaits a connection.
	ErrNotApproved = errors.New("device not approved")
)

// State reports which registry map holds a UUID.
type State int

const (
	StateNone State = iota
	StateInitiated
	StatePending
	StateApproved
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StatePending:
		return "pending"
	case StateApproved:
		return "approved"
	case StateActive:
		return "active"
	default:
		return "none"
	}
}

// Decision is delivered exactly once to the request waiting on a pending entry.
type Decision struct {
	Approved bool
	Identity Identity
}

// Sink is the send side of an active control connection.
type Sink interface {
	Close() error
}

// PendingInfo is a read-only view of a pending device.
type PendingInfo struct {
	UUID      uuid.UUID `json:"uuid"`
	Name      string    `json:"name"`
	Agent     Agent     `json:"agent"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveInfo is a read-only view of a connected device.
type ActiveInfo struct {
	UUID        uuid.UUID `json:"uuid"`
	Name        string    `json:"name"`
	Agent       Agent     `json:"agent"`
	ConnectedAt time.Time `json:"connected_at"`
}

type initiatedEntry struct {
	identity  Identity
	createdAt time.Time
}

type pendingEntry struct {
	identity  Identity
	createdAt time.Time
	decision  chan Decision
}

type approvedEntry struct {
	identity   Identity
	approvedAt time.Time
	claimed    bool
}

type activeEntry struct {
	identity    Identity
	connectedAt time.Time
	sink        Sink
}

// RegistryConfig holds configuration for the registry.
type RegistryConfig struct {
	// InitiatedTTL expires registrations that never request approval.
	// Default: 5 minutes
	InitiatedTTL time.Duration

	// ApprovedTTL expires issued credentials that never connect.
	// Default: 5 minutes
	ApprovedTTL time.Duration

	// Publisher receives refresh notifications. May be nil.
	Publisher Publisher

	// TimeNow is used for timestamps. If nil, time.Now is used.
	TimeNow func() time.Time
}

// Registry tracks every known device through pairing. One mutex guards all
// four maps so a UUID moving between them is never observed in two maps or
// in none.
type Registry struct {
	mu        sync.Mutex
	initiated map[uuid.UUID]*initiatedEntry
	pending   map[uuid.UUID]*pendingEntry
	approved  map[uuid.UUID]*approvedEntry
	active    map[uuid.UUID]*activeEntry

	initiatedTTL time.Duration
	approvedTTL  time.Duration
	publisher    Publisher
	now          func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.InitiatedTTL <= 0 {
		cfg.InitiatedTTL = 5 * time.Minute
	}
	if cfg.ApprovedTTL <= 0 {
		cfg.ApprovedTTL = 5 * time.Minute
	}
	if cfg.TimeNow == nil {
		cfg.TimeNow = time.Now
	}
	return &Registry{
		initiated:    make(map[uuid.UUID]*initiatedEntry),
		pending:      make(map[uuid.UUID]*pendingEntry),
		approved:     make(map[uuid.UUID]*approvedEntry),
		active:       make(map[uuid.UUID]*activeEntry),
		initiatedTTL: cfg.InitiatedTTL,
		approvedTTL:  cfg.ApprovedTTL,
		publisher:    cfg.Publisher,
		now:          cfg.TimeNow,
	}
}

// AddInitiated records a freshly registered device. A repeated UUID
// overwrites the previous entry.
func (r *Registry) AddInitiated(id Identity) {
	r.mu.Lock()
	r.initiated[id.UUID] = &initiatedEntry{identity: id, createdAt: r.now()}
	r.mu.Unlock()
}

// PromoteToPending moves an initiated device to pending and returns the
// channel its decision will arrive on. Returns false for unknown UUIDs.
func (r *Registry) PromoteToPending(id uuid.UUID) (<-chan Decision, bool) {
	r.mu.Lock()
	entry, ok := r.initiated[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.initiated, id)
	decision := make(chan Decision, 1)
	r.pending[id] = &pendingEntry{
		identity:  entry.identity,
		createdAt: r.now(),
		decision:  decision,
	}
	r.mu.Unlock()

	r.publish(Event{Kind: EventRefreshPending})
	return decision, true
}

// ResolvePending removes the pending entry and delivers the decision to its
// waiter. On approval the device moves to approved in the same critical
// section. Returns ErrNotPending if the UUID is not pending.
func (r *Registry) ResolvePending(id uuid.UUID, approve bool) error {
	r.mu.Lock()
	entry, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotPending
	}
	delete(r.pending, id)
	if approve {
		r.approved[id] = &approvedEntry{identity: entry.identity, approvedAt: r.now()}
	}
	// Sent under the lock so a waiter that has just removed the entry still
	// finds the decision when it drains. Capacity 1 and a single sender, so
	// this never blocks.
	entry.decision <- Decision{Approved: approve, Identity: entry.identity}
	r.mu.Unlock()
	return nil
}

// Approve resolves a pending device positively. Returns false if it was not pending.
func (r *Registry) Approve(id uuid.UUID) bool {
	return r.ResolvePending(id, true) == nil
}

// Reject resolves a pending device negatively. Returns false if it was not pending.
func (r *Registry) Reject(id uuid.UUID) bool {
	return r.ResolvePending(id, false) == nil
}

// RemovePending drops a pending entry if present and always notifies local
// UIs. Safe to call any number of times.
func (r *Registry) RemovePending(id uuid.UUID) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()

	r.publish(Event{Kind: EventRefreshPending})
}

// DiscardApproved drops an approved entry whose credential was never
// delivered, or whose claimed connection failed to open.
func (r *Registry) DiscardApproved(id uuid.UUID) {
	r.mu.Lock()
	delete(r.approved, id)
	r.mu.Unlock()
}

// ClaimApproved reserves the approved entry for a UUID so each issued
// credential opens at most one control connection. The entry stays in the
// approved map until AddActive moves it, or DiscardApproved drops it if the
// connection never opens.
func (r *Registry) ClaimApproved(id uuid.UUID) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.approved[id]
	if !ok || entry.claimed {
		return Identity{}, ErrNotApproved
	}
	entry.claimed = true
	return entry.identity, nil
}

// AddActive records a connected device and announces it. A claimed approved
// entry for the same UUID is moved in the same critical section.
func (r *Registry) AddActive(id Identity, sink Sink) {
	r.mu.Lock()
	delete(r.approved, id.UUID)
	previous := r.active[id.UUID]
	r.active[id.UUID] = &activeEntry{identity: id, connectedAt: r.now(), sink: sink}
	r.mu.Unlock()

	if previous != nil && previous.sink != nil && previous.sink != sink {
		previous.sink.Close()
	}
	idCopy := id
	r.publish(Event{Kind: EventConnected, Identity: &idCopy})
}

// RemoveActive forgets a connected device and notifies local UIs.
func (r *Registry) RemoveActive(id uuid.UUID) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()

	r.publish(Event{Kind: EventRefreshActive})
}

// ListPending returns pending devices ordered by creation time, oldest first.
func (r *Registry) ListPending() []PendingInfo {
	r.mu.Lock()
	list := make([]PendingInfo, 0, len(r.pending))
	for _, entry := range r.pending {
		list = append(list, PendingInfo{
			UUID:      entry.identity.UUID,
			Name:      entry.identity.Name,
			Agent:     entry.identity.Agent,
			Code:      entry.identity.Code,
			CreatedAt: entry.createdAt,
		})
	}
	r.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].UUID.String() < list[j].UUID.String()
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// ListActive returns connected devices ordered by connection time.
func (r *Registry) ListActive() []ActiveInfo {
	r.mu.Lock()
	list := make([]ActiveInfo, 0, len(r.active))
	for _, entry := range r.active {
		list = append(list, ActiveInfo{
			UUID:        entry.identity.UUID,
			Name:        entry.identity.Name,
			Agent:       entry.identity.Agent,
			ConnectedAt: entry.connectedAt,
		})
	}
	r.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ConnectedAt.Before(list[j].ConnectedAt)
	})
	return list
}

// State reports which map currently holds id.
func (r *Registry) State(id uuid.UUID) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.initiated[id] != nil:
		return StateInitiated
	case r.pending[id] != nil:
		return StatePending
	case r.approved[id] != nil:
		return StateApproved
	case r.active[id] != nil:
		return StateActive
	default:
		return StateNone
	}
}

// Sweep drops initiated and approved entries older than their TTLs and
// returns how many were removed. Pending entries are bounded by their
// waiter's timeout instead.
func (r *Registry) Sweep() int {
	now := r.now()
	removed := 0

	r.mu.Lock()
	for id, entry := range r.initiated {
		if now.Sub(entry.createdAt) > r.initiatedTTL {
			delete(r.initiated, id)
			removed++
		}
	}
	for id, entry := range r.approved {
		if now.Sub(entry.approvedAt) > r.approvedTTL {
			delete(r.approved, id)
			removed++
		}
	}
	r.mu.Unlock()

	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Printf("device: expired %d stale registrations", n)
			}
		}
	}
}

// CloseActive closes every active sink. Sessions remove themselves as their
// connections shut down.
func (r *Registry) CloseActive() {
	r.mu.Lock()
	sinks := make([]Sink, 0, len(r.active))
	for _, entry := range r.active {
		if entry.sink != nil {
			sinks = append(sinks, entry.sink)
		}
	}
	r.mu.Unlock()

	for _, sink := range sinks {
		sink.Close()
	}
}

func (r *Registry) publish(e Event) {
	if r.publisher != nil {
		r.publisher.Publish(e)
	}
}
