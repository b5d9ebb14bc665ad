package message

import (
	"sync"
)

// Router owns the subscription index, the host's external inbox, and the
// outbound network queue, and applies the fan-out rules of §4.5: a Local
// message is cloned into every subscribed guest's inbox (in subscription
// order) and, if the host subscribed to the channel, into the host
// external inbox; a Remote message goes to the network outbox untouched.
// A Local message delivered to nobody produces a RoutingWarning, logged
// at most once per channel per propagation pass.
type Router struct {
	mu sync.Mutex

	// subs preserves ascending guest-index order per channel, matching
	// the ascending-guest-index fan-out requirement.
	subs map[ChannelId][]int

	hostSubs  map[ChannelId]bool
	hostInbox map[ChannelId][]MessageData

	networkOutbox []MessageData

	warnedThisPass map[ChannelId]bool
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		subs:           make(map[ChannelId][]int),
		hostSubs:       make(map[ChannelId]bool),
		hostInbox:      make(map[ChannelId][]MessageData),
		warnedThisPass: make(map[ChannelId]bool),
	}
}

// Subscribe registers guestIndex as a recipient of channel. Subscribing
// the same guest to the same channel twice is idempotent.
func (r *Router) Subscribe(channel ChannelId, guestIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subs[channel] {
		if existing == guestIndex {
			return
		}
	}
	r.subs[channel] = append(r.subs[channel], guestIndex)
}

// SubscribeHost registers the host as a recipient of channel.
func (r *Router) SubscribeHost(channel ChannelId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostSubs[channel] = true
}

// HostInbox drains and returns every message the host external inbox has
// accumulated for channel.
func (r *Router) HostInbox(channel ChannelId) []MessageData {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.hostInbox[channel]
	delete(r.hostInbox, channel)
	return msgs
}

// BeginPass clears the per-channel warning dedup so a fresh propagation
// pass can emit one warning per channel again.
func (r *Router) BeginPass() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnedThisPass = make(map[ChannelId]bool)
}

// Route delivers msg according to its channel's locality. deliver is
// called once per subscribed guest index, in subscription order, for
// Local messages; it is never called for Remote messages. Returns true if
// this call produced a RoutingWarning (a Local message with no
// recipients at all, not yet warned about this pass).
func (r *Router) Route(msg MessageData, deliver func(guestIndex int, msg MessageData)) (warned bool) {
	if msg.Channel.Locality == Remote {
		r.mu.Lock()
		r.networkOutbox = append(r.networkOutbox, msg.Clone())
		r.mu.Unlock()
		return false
	}
	return r.routeLocal(msg, deliver)
}

// RouteInbound handles network_inbox_push: msg is routed as if it were a
// local message on its channel, regardless of the Locality tag it
// happens to carry.
func (r *Router) RouteInbound(msg MessageData, deliver func(guestIndex int, msg MessageData)) (warned bool) {
	return r.routeLocal(msg, deliver)
}

func (r *Router) routeLocal(msg MessageData, deliver func(guestIndex int, msg MessageData)) bool {
	r.mu.Lock()
	subscribers := append([]int(nil), r.subs[msg.Channel]...)
	hostSubscribed := r.hostSubs[msg.Channel]
	r.mu.Unlock()

	for _, guestIndex := range subscribers {
		deliver(guestIndex, msg.Clone())
	}

	delivered := len(subscribers) > 0
	if hostSubscribed {
		r.mu.Lock()
		r.hostInbox[msg.Channel] = append(r.hostInbox[msg.Channel], msg.Clone())
		r.mu.Unlock()
		delivered = true
	}

	if delivered {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warnedThisPass[msg.Channel] {
		return false
	}
	r.warnedThisPass[msg.Channel] = true
	return true
}

// NetworkOutboxDrain returns and clears every message queued for the
// remote transport.
func (r *Router) NetworkOutboxDrain() []MessageData {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.networkOutbox
	r.networkOutbox = nil
	return out
}
