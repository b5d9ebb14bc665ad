// Package engine is the Scheduler/Engine orchestrator: the top-level
// object an embedder (render loop, UI loop, network loop) drives. It
// owns the ordered guest list, the ECS Store, the Message Router, and
// the host-facing API (§4.6, §6.2), and is the only place in this
// repository that ties those pieces into the frame loop described in
// §2's data-flow paragraph.
package engine

import (
	"log"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"hostengine/internal/core/ecs"
	"hostengine/internal/core/ecs/query"
	"hostengine/internal/core/guest"
	"hostengine/internal/core/guest/lua"
	"hostengine/internal/core/message"
)

// Stage re-exports guest.Stage: the closed {PreUpdate, Update, PostUpdate}
// enum is part of the host<->guest contract (a SystemDescriptor carries
// one), so guest already owns its definition; engine only needs a
// convenient local name for its host-facing Dispatch signature.
type Stage = guest.Stage

const (
	PreUpdate  = guest.PreUpdate
	Update     = guest.Update
	PostUpdate = guest.PostUpdate
)

// indexBinder is implemented by adapters (currently only *lua.Adapter)
// that need to know their slot in the guest list, e.g. to namespace a
// guest-side entity id allocator. Adapters that don't care simply don't
// implement it.
type indexBinder interface {
	BindGuestIndex(int)
}

type guestState struct {
	adapter  guest.Adapter
	name     string
	systems  []guest.SystemDescriptor
	inbox    map[message.ChannelId][]message.MessageData
	poisoned bool
}

// Engine is one independent instance of the host runtime. Nothing about
// it is process-global: a process can host many Engines, each with its
// own guests, ECS, and routing tables (§9's "no process-wide
// singletons").
type Engine struct {
	mu sync.Mutex

	guests      []*guestState
	store       *ecs.Store
	registry    *query.Registry
	router      *message.Router
	isServer    bool
	initialized bool
	metrics     *metricsSet
}

// New loads every guest module at modulePaths through the Lua sandbox
// adapter and constructs an Engine. No guest code runs yet — that's
// Init's job. If any module fails to load, the whole construction fails
// and no Engine is returned, per §7's LoadError policy.
func New(modulePaths []string, isServer bool) (*Engine, error) {
	adapters := make([]guest.Adapter, 0, len(modulePaths))
	for _, path := range modulePaths {
		a, err := lua.Load(path)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return NewWithAdapters(adapters, isServer)
}

// NewWithAdapters builds an Engine directly from already-loaded adapters,
// skipping filesystem access. Used by embedders that ship guest scripts
// as compiled-in fixtures, and by this package's own tests.
func NewWithAdapters(adapters []guest.Adapter, isServer bool) (*Engine, error) {
	e := &Engine{
		store:    ecs.NewStore(),
		registry: query.NewRegistry(),
		router:   message.NewRouter(),
		isServer: isServer,
		metrics:  newMetricsSet(),
	}

	for i, a := range adapters {
		if binder, ok := a.(indexBinder); ok {
			binder.BindGuestIndex(i)
		}
		e.guests = append(e.guests, &guestState{
			adapter: a,
			name:    a.Name(),
			inbox:   make(map[message.ChannelId][]message.MessageData),
		})
	}

	return e, nil
}

// Init runs the init turn (System == nil) on every guest, in order,
// exactly once. It records each guest's declared systems, wires its
// subscriptions into the router, applies its init-turn commands, and —
// once every guest has had its turn — runs one propagation pass. Returns
// the first error encountered (a GuestFault or a command-application
// error); guests other than the one that failed still run their init
// turn, matching §5's "other guests remain valid" cancellation scope.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return errors.New("engine: Init called more than once")
	}
	e.initialized = true

	var firstErr error
	outboxes := make([][]message.MessageData, len(e.guests))

	for i, g := range e.guests {
		rb := guest.ReceiveBuf{
			System:   nil,
			Inbox:    drainInbox(g),
			Ecs:      nil,
			IsServer: e.isServer,
		}

		sb, err := g.adapter.Dispatch(rb)
		if err != nil {
			fault := guest.NewGuestFault(i, g.name, err)
			e.poison(i, fault)
			if firstErr == nil {
				firstErr = fault
			}
			continue
		}

		g.systems = sb.Systems
		for _, sys := range sb.Systems {
			for _, ch := range sys.Subscriptions {
				e.router.Subscribe(ch, i)
			}
		}

		if err := applyCommands(e.store, sb.Commands); err != nil && firstErr == nil {
			firstErr = err
		}
		outboxes[i] = sb.Outbox
	}

	e.propagate(outboxes)
	return firstErr
}

// Dispatch runs every guest's systems declared for stage, in guest-index
// order and, within a guest, declaration order, then runs one
// propagation pass. A guest's query is re-run (and its current inbox
// drained) once per matching system, so a guest with two systems on the
// same stage sees its full inbox on the first and whatever arrived since
// (normally nothing, since propagation only happens at the end of a
// dispatch/init call) on the second.
func (e *Engine) Dispatch(stage Stage) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	outboxes := make([][]message.MessageData, len(e.guests))

	for i, g := range e.guests {
		if g.poisoned {
			continue
		}
		for sysIdx, sys := range g.systems {
			if sys.Stage != stage {
				continue
			}

			if _, err := e.registry.Mask(queryComponentIDs(sys.Query)...); err != nil {
				// Capacity exceeded: a query-shape problem, not a guest
				// fault — abort only this system's turn (§7).
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "guest %d system %d", i, sysIdx)
				}
				continue
			}

			ecsData, err := query.Run(e.store, sys.Query)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			e.metrics.queriesRun.Inc()

			system := sysIdx
			rb := guest.ReceiveBuf{
				System:   &system,
				Inbox:    drainInbox(g),
				Ecs:      ecsData,
				IsServer: e.isServer,
			}

			timer := e.metrics.startDispatch()
			sb, err := g.adapter.Dispatch(rb)
			timer.observe(stage)
			if err != nil {
				fault := guest.NewGuestFault(i, g.name, err)
				e.poison(i, fault)
				if firstErr == nil {
					firstErr = fault
				}
				break // this guest is poisoned; skip its remaining systems
			}

			if err := ecsData.WriteBack(); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if err := applyCommands(e.store, sb.Commands); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			outboxes[i] = append(outboxes[i], sb.Outbox...)
		}
	}

	e.propagate(outboxes)
	return firstErr
}

// propagate drains outboxes (indexed by sender guest index, in emission
// order within each) through the router, delivering into subscriber
// guests' inboxes and the host external inbox, in ascending guest-index
// then emission order as §4.5 requires.
func (e *Engine) propagate(outboxes [][]message.MessageData) {
	e.router.BeginPass()
	for senderIdx, msgs := range outboxes {
		for _, msg := range msgs {
			warned := e.router.Route(msg, func(subscriberIdx int, m message.MessageData) {
				if subscriberIdx < 0 || subscriberIdx >= len(e.guests) {
					return
				}
				target := e.guests[subscriberIdx]
				if target.poisoned {
					return
				}
				target.inbox[m.Channel] = append(target.inbox[m.Channel], m)
				e.metrics.messagesRouted.Inc()
			})
			if warned {
				log.Printf("engine: routing warning: channel %q (from guest %d) has no subscribers", msg.Channel.ID, senderIdx)
			}
		}
	}
}

// poison marks guest i as faulted: its subsequent systems are skipped on
// every later Dispatch, per §7's "skip, not unload" policy. Its
// subscription-index entries are intentionally left in place — an
// accepted open question, not a bug (see DESIGN.md).
func (e *Engine) poison(i int, cause error) {
	e.guests[i].poisoned = true
	e.metrics.guestsPoisoned.Inc()
	log.Printf("engine: guest %d (%s) poisoned: %v", i, e.guests[i].name, cause)
}

// queryComponentIDs extracts a system's query component ids, for
// registering against the engine's Registry — the Registry's job is
// bounding how many distinct component ids the engine will ever track,
// not driving the intersection itself (query.Run reads the store's
// columns directly).
func queryComponentIDs(terms []query.Term) []ecs.ComponentID {
	ids := make([]ecs.ComponentID, len(terms))
	for i, t := range terms {
		ids[i] = t.Component
	}
	return ids
}

// drainInbox returns g's accumulated inbox and resets it to empty. Both
// the returned map and the guest's own become storage for distinct
// values — the caller never hands the guest a reference to engine state.
func drainInbox(g *guestState) map[message.ChannelId][]message.MessageData {
	out := g.inbox
	g.inbox = make(map[message.ChannelId][]message.MessageData)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Subscribe registers the host as a recipient of channel's messages.
func (e *Engine) Subscribe(channel message.ChannelId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.router.SubscribeHost(channel)
}

// Inbox drains and returns every message the host's external inbox has
// accumulated for channel since the last call.
func (e *Engine) Inbox(channel message.ChannelId) []message.MessageData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.router.HostInbox(channel)
}

// Send broadcasts payload on channel immediately, exactly as if a guest
// had emitted it: it is routed through §4.5 right away, not deferred to
// the next propagation pass.
func (e *Engine) Send(channel message.ChannelId, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := message.MessageData{Channel: channel, Payload: payload}
	warned := e.router.Route(msg, func(subscriberIdx int, m message.MessageData) {
		if subscriberIdx < 0 || subscriberIdx >= len(e.guests) {
			return
		}
		target := e.guests[subscriberIdx]
		if target.poisoned {
			return
		}
		target.inbox[m.Channel] = append(target.inbox[m.Channel], m)
	})
	if warned {
		log.Printf("engine: routing warning: channel %q (host send) has no subscribers", channel.ID)
	}
}

// ECS gives host-side code (rendering, UI, network glue) mutable access
// to the ECS Store.
func (e *Engine) ECS() *ecs.Store {
	return e.store
}

// Metrics returns this Engine's private Prometheus registry, so an
// embedder can mount it behind promhttp.HandlerFor if it wants dispatch
// duration, routing, and poisoning counters exposed.
func (e *Engine) Metrics() *prometheus.Registry {
	return e.metrics.registry
}

// NetworkOutboxDrain returns and clears every message queued for the
// remote transport since the last call.
func (e *Engine) NetworkOutboxDrain() []message.MessageData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.router.NetworkOutboxDrain()
}

// closer is implemented by adapters (currently only *lua.Adapter) that
// hold a resource worth releasing explicitly rather than waiting on the
// garbage collector, e.g. a guest's Lua VM.
type closer interface {
	Close()
}

// Close releases every guest adapter's underlying resources, e.g. each
// guest's Lua VM. Adapters that don't implement closer are skipped. Safe
// to call once an embedder's frame loop has stopped driving Dispatch.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, g := range e.guests {
		if c, ok := g.adapter.(closer); ok {
			c.Close()
		}
	}
}

// NetworkInboxPush injects an inbound remote message, routing it exactly
// as if it were a local message on its channel.
func (e *Engine) NetworkInboxPush(msg message.MessageData) {
	e.mu.Lock()
	defer e.mu.Unlock()

	warned := e.router.RouteInbound(msg, func(subscriberIdx int, m message.MessageData) {
		if subscriberIdx < 0 || subscriberIdx >= len(e.guests) {
			return
		}
		target := e.guests[subscriberIdx]
		if target.poisoned {
			return
		}
		target.inbox[m.Channel] = append(target.inbox[m.Channel], m)
	})
	if warned {
		log.Printf("engine: routing warning: inbound channel %q has no subscribers", msg.Channel.ID)
	}
}
