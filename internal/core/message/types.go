// Package message defines the typed message streams guests and the host
// communicate over, and the router that fans them out.
package message

// Locality distinguishes a channel that only ever moves messages within
// this host process from one whose messages cross the network boundary.
type Locality int

const (
	// Local messages are delivered to subscribing guests and/or the host
	// external inbox within this process.
	Local Locality = iota
	// Remote messages are handed to the network outbox for the transport
	// layer (out of scope here) to frame and send.
	Remote
)

func (l Locality) String() string {
	if l == Remote {
		return "remote"
	}
	return "local"
}

// ChannelId names a message stream. Two ChannelIds with the same ID but
// different Locality are different channels — a guest subscribing to the
// Local "chat" channel never sees a Remote "chat" message.
type ChannelId struct {
	ID       string
	Locality Locality
}

// MessageData is one message in flight: the channel it travels on, its
// opaque payload, and — meaningful only on the server, for Remote
// channels — which client originated or should receive it.
type MessageData struct {
	Channel  ChannelId
	Payload  []byte
	ClientID *string
}

// Clone returns a deep copy of m, safe to hand to a second recipient
// without aliasing the first's payload.
func (m MessageData) Clone() MessageData {
	out := m
	out.Payload = append([]byte(nil), m.Payload...)
	if m.ClientID != nil {
		id := *m.ClientID
		out.ClientID = &id
	}
	return out
}
