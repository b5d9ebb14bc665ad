// Package guest defines the host<->guest contract: the shapes that cross
// the sandbox boundary (ReceiveBuf, SendBuf, commands, system
// descriptors) and the adapter interface the engine drives every guest
// through. Nothing here knows which sandbox engine backs an Adapter —
// internal/core/guest/lua provides the one this repository ships.
package guest

import (
	"hostengine/internal/core/ecs"
	"hostengine/internal/core/ecs/query"
	"hostengine/internal/core/message"
)

// Stage is one phase of a logical frame. The set is closed; the host
// driver loop only needs the values to form a stable total order.
type Stage int

const (
	PreUpdate Stage = iota
	Update
	PostUpdate
)

func (s Stage) String() string {
	switch s {
	case PreUpdate:
		return "pre_update"
	case Update:
		return "update"
	case PostUpdate:
		return "post_update"
	default:
		return "unknown_stage"
	}
}

// SystemDescriptor is one unit of work a guest declares during its init
// turn: which stage it runs in, the query it needs, and the channels it
// wants delivered into its inbox.
type SystemDescriptor struct {
	Stage         Stage
	Query         []query.Term
	Subscriptions []message.ChannelId
}

// ReceiveBuf is what the host hands a guest on every dispatch. System is
// nil on the init turn and holds the index of the declared system being
// run on every later turn.
type ReceiveBuf struct {
	System   *int
	Inbox    map[message.ChannelId][]message.MessageData
	Ecs      *query.EcsData
	IsServer bool
}

// CommandKind enumerates the ECS mutations a guest can emit.
type CommandKind int

const (
	CommandCreate CommandKind = iota
	CommandDelete
	CommandAddComponent
	CommandRemoveComponent
)

func (k CommandKind) String() string {
	switch k {
	case CommandCreate:
		return "create"
	case CommandDelete:
		return "delete"
	case CommandAddComponent:
		return "add_component"
	case CommandRemoveComponent:
		return "remove_component"
	default:
		return "unknown_command"
	}
}

// Command is one ECS mutation emitted by a guest. Which fields are
// meaningful depends on Kind: Create/Delete only use Entity; AddComponent
// and RemoveComponent also use Component, and AddComponent uses Bytes.
type Command struct {
	Kind      CommandKind
	Entity    ecs.EntityID
	Component ecs.ComponentID
	Bytes     []byte
}

// SendBuf is what a guest hands back to the host on every dispatch.
// Systems is populated only on the init turn.
type SendBuf struct {
	Systems  []SystemDescriptor
	Commands []Command
	Outbox   []message.MessageData
}
