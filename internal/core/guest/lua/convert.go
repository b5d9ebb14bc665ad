// Conversion between the Go-side ReceiveBuf/SendBuf/Command/SystemDescriptor
// shapes and the Lua tables a guest script actually reads and returns.
// Grounded on the teacher's convertGoToLua/convertLuaToGo in
// internal/core/ecs/lua/lua_bridge.go, generalized from "convert an
// arbitrary struct via reflection" to "convert exactly the host<->guest
// protocol shapes", since those shapes are fixed by §4.4/§4.7 rather than
// guest-defined.
package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"github.com/pkg/errors"

	"hostengine/internal/core/ecs"
	"hostengine/internal/core/ecs/query"
	"hostengine/internal/core/guest"
	"hostengine/internal/core/message"
)

func channelToLua(L *lua.LState, c message.ChannelId) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(c.ID))
	t.RawSetString("remote", lua.LBool(c.Locality == message.Remote))
	return t
}

func channelFromLua(t *lua.LTable) (message.ChannelId, error) {
	id, ok := t.RawGetString("id").(lua.LString)
	if !ok {
		return message.ChannelId{}, errors.New("channel.id must be a string")
	}
	loc := message.Local
	if remote, ok := t.RawGetString("remote").(lua.LBool); ok && bool(remote) {
		loc = message.Remote
	}
	return message.ChannelId{ID: string(id), Locality: loc}, nil
}

func messageToLua(L *lua.LState, m message.MessageData) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("channel", channelToLua(L, m.Channel))
	t.RawSetString("payload", lua.LString(m.Payload))
	if m.ClientID != nil {
		t.RawSetString("client_id", lua.LString(*m.ClientID))
	}
	return t
}

func messageFromLua(v lua.LValue) (message.MessageData, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return message.MessageData{}, errors.New("message must be a table")
	}
	chTbl, ok := t.RawGetString("channel").(*lua.LTable)
	if !ok {
		return message.MessageData{}, errors.New("message.channel must be a table")
	}
	ch, err := channelFromLua(chTbl)
	if err != nil {
		return message.MessageData{}, err
	}
	payload, ok := t.RawGetString("payload").(lua.LString)
	if !ok {
		return message.MessageData{}, errors.New("message.payload must be a string")
	}
	var clientID *string
	if cid, ok := t.RawGetString("client_id").(lua.LString); ok {
		s := string(cid)
		clientID = &s
	}
	return message.MessageData{
		Channel:  ch,
		Payload:  []byte(payload),
		ClientID: clientID,
	}, nil
}

func messagesToLua(L *lua.LState, msgs []message.MessageData) *lua.LTable {
	t := L.NewTable()
	for i, m := range msgs {
		t.RawSetInt(i+1, messageToLua(L, m))
	}
	return t
}

func messagesFromLua(t *lua.LTable) ([]message.MessageData, error) {
	if t == nil {
		return nil, nil
	}
	var out []message.MessageData
	var convErr error
	t.ForEach(func(_ lua.LValue, v lua.LValue) {
		if convErr != nil {
			return
		}
		m, err := messageFromLua(v)
		if err != nil {
			convErr = err
			return
		}
		out = append(out, m)
	})
	return out, convErr
}

func termToLua(L *lua.LState, term query.Term) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("component", lua.LString(term.Component))
	t.RawSetString("write", lua.LBool(term.Access == ecs.Write))
	return t
}

func accessRowsFromLua(v lua.LValue) ([][]byte, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, errors.New("column must be a table")
	}
	rows := make([][]byte, 0, t.Len())
	var convErr error
	t.ForEach(func(_ lua.LValue, val lua.LValue) {
		if convErr != nil {
			return
		}
		s, ok := val.(lua.LString)
		if !ok {
			convErr = errors.New("column entry must be a string")
			return
		}
		rows = append(rows, []byte(s))
	})
	return rows, convErr
}

func ecsDataToLua(L *lua.LState, d *query.EcsData) lua.LValue {
	if d == nil {
		return lua.LNil
	}
	t := L.NewTable()

	entities := L.NewTable()
	for i, e := range d.Entities {
		entities.RawSetInt(i+1, lua.LNumber(float64(e)))
	}
	t.RawSetString("entities", entities)

	columns := L.NewTable()
	for cid, col := range d.Columns {
		colTbl := L.NewTable()
		for i, v := range col {
			colTbl.RawSetInt(i+1, lua.LString(v))
		}
		columns.RawSetString(string(cid), colTbl)
	}
	t.RawSetString("columns", columns)

	return t
}

// ecsWriteBackFromLua reads the (possibly guest-mutated) "columns" table
// back out of the table that was handed to the guest, returning the raw
// rows per component id exactly as query.EcsData.WriteBack expects them:
// one []byte slice per entity, in query.EcsData.Entities row order.
func ecsWriteBackFromLua(v lua.LValue) (map[ecs.ComponentID][][]byte, error) {
	if v == lua.LNil {
		return nil, nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, errors.New("ecs must be a table")
	}
	colsVal := t.RawGetString("columns")
	if colsVal == lua.LNil {
		return nil, nil
	}
	cols, ok := colsVal.(*lua.LTable)
	if !ok {
		return nil, errors.New("ecs.columns must be a table")
	}

	out := make(map[ecs.ComponentID][][]byte)
	var convErr error
	cols.ForEach(func(k lua.LValue, v lua.LValue) {
		if convErr != nil {
			return
		}
		cid, ok := k.(lua.LString)
		if !ok {
			convErr = errors.New("ecs.columns key must be a string component id")
			return
		}
		rows, err := accessRowsFromLua(v)
		if err != nil {
			convErr = errors.Wrapf(err, "component %s", cid)
			return
		}
		out[ecs.ComponentID(cid)] = rows
	})
	return out, convErr
}

func receiveBufToLua(L *lua.LState, rb guest.ReceiveBuf) *lua.LTable {
	t := L.NewTable()

	if rb.System != nil {
		t.RawSetString("system", lua.LNumber(float64(*rb.System)))
	}

	inbox := L.NewTable()
	for ch, msgs := range rb.Inbox {
		inbox.RawSetString(ch.ID, messagesToLua(L, msgs))
	}
	t.RawSetString("inbox", inbox)

	t.RawSetString("ecs", ecsDataToLua(L, rb.Ecs))
	t.RawSetString("is_server", lua.LBool(rb.IsServer))

	return t
}

func systemDescriptorFromLua(v lua.LValue) (guest.SystemDescriptor, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return guest.SystemDescriptor{}, errors.New("system descriptor must be a table")
	}

	stageNum, ok := t.RawGetString("stage").(lua.LNumber)
	if !ok {
		return guest.SystemDescriptor{}, errors.New("system.stage must be a number")
	}

	var terms []query.Term
	if qv := t.RawGetString("query"); qv != lua.LNil {
		qt, ok := qv.(*lua.LTable)
		if !ok {
			return guest.SystemDescriptor{}, errors.New("system.query must be a table")
		}
		var convErr error
		qt.ForEach(func(_ lua.LValue, termVal lua.LValue) {
			if convErr != nil {
				return
			}
			termTbl, ok := termVal.(*lua.LTable)
			if !ok {
				convErr = errors.New("query term must be a table")
				return
			}
			component, ok := termTbl.RawGetString("component").(lua.LString)
			if !ok {
				convErr = errors.New("query term.component must be a string")
				return
			}
			access := ecs.Read
			if write, ok := termTbl.RawGetString("write").(lua.LBool); ok && bool(write) {
				access = ecs.Write
			}
			terms = append(terms, query.Term{Component: ecs.ComponentID(component), Access: access})
		})
		if convErr != nil {
			return guest.SystemDescriptor{}, convErr
		}
	}

	var subs []message.ChannelId
	if sv := t.RawGetString("subscriptions"); sv != lua.LNil {
		st, ok := sv.(*lua.LTable)
		if !ok {
			return guest.SystemDescriptor{}, errors.New("system.subscriptions must be a table")
		}
		var convErr error
		st.ForEach(func(_ lua.LValue, chVal lua.LValue) {
			if convErr != nil {
				return
			}
			chTbl, ok := chVal.(*lua.LTable)
			if !ok {
				convErr = errors.New("subscription must be a table")
				return
			}
			ch, err := channelFromLua(chTbl)
			if err != nil {
				convErr = err
				return
			}
			subs = append(subs, ch)
		})
		if convErr != nil {
			return guest.SystemDescriptor{}, convErr
		}
	}

	return guest.SystemDescriptor{
		Stage:         guest.Stage(int(stageNum)),
		Query:         terms,
		Subscriptions: subs,
	}, nil
}

func commandFromLua(v lua.LValue) (guest.Command, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return guest.Command{}, errors.New("command must be a table")
	}
	kindStr, ok := t.RawGetString("kind").(lua.LString)
	if !ok {
		return guest.Command{}, errors.New("command.kind must be a string")
	}
	var kind guest.CommandKind
	switch string(kindStr) {
	case "create":
		kind = guest.CommandCreate
	case "delete":
		kind = guest.CommandDelete
	case "add_component":
		kind = guest.CommandAddComponent
	case "remove_component":
		kind = guest.CommandRemoveComponent
	default:
		return guest.Command{}, fmt.Errorf("unknown command kind %q", kindStr)
	}

	entityNum, ok := t.RawGetString("entity").(lua.LNumber)
	if !ok {
		return guest.Command{}, errors.New("command.entity must be a number")
	}

	var component ecs.ComponentID
	if c, ok := t.RawGetString("component").(lua.LString); ok {
		component = ecs.ComponentID(c)
	}
	var bytes []byte
	if b, ok := t.RawGetString("bytes").(lua.LString); ok {
		bytes = []byte(b)
	}

	return guest.Command{
		Kind:      kind,
		Entity:    ecs.EntityID(uint64(entityNum)),
		Component: component,
		Bytes:     bytes,
	}, nil
}

func sendBufFromLua(v lua.LValue) (guest.SendBuf, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return guest.SendBuf{}, errors.New("guest dispatch must return a table")
	}

	var sb guest.SendBuf

	if sv := t.RawGetString("systems"); sv != lua.LNil {
		st, ok := sv.(*lua.LTable)
		if !ok {
			return guest.SendBuf{}, errors.New("send.systems must be a table")
		}
		var convErr error
		st.ForEach(func(_ lua.LValue, sysVal lua.LValue) {
			if convErr != nil {
				return
			}
			desc, err := systemDescriptorFromLua(sysVal)
			if err != nil {
				convErr = err
				return
			}
			sb.Systems = append(sb.Systems, desc)
		})
		if convErr != nil {
			return guest.SendBuf{}, convErr
		}
	}

	if cv := t.RawGetString("commands"); cv != lua.LNil {
		ct, ok := cv.(*lua.LTable)
		if !ok {
			return guest.SendBuf{}, errors.New("send.commands must be a table")
		}
		var convErr error
		ct.ForEach(func(_ lua.LValue, cmdVal lua.LValue) {
			if convErr != nil {
				return
			}
			cmd, err := commandFromLua(cmdVal)
			if err != nil {
				convErr = err
				return
			}
			sb.Commands = append(sb.Commands, cmd)
		})
		if convErr != nil {
			return guest.SendBuf{}, convErr
		}
	}

	if ov := t.RawGetString("outbox"); ov != lua.LNil {
		ot, ok := ov.(*lua.LTable)
		if !ok {
			return guest.SendBuf{}, errors.New("send.outbox must be a table")
		}
		msgs, err := messagesFromLua(ot)
		if err != nil {
			return guest.SendBuf{}, err
		}
		sb.Outbox = msgs
	}

	return sb, nil
}
