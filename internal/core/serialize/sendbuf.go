package serialize

import (
	"hostengine/internal/core/ecs"
	"hostengine/internal/core/guest"
	"hostengine/internal/core/message"
)

func appendSystemDescriptor(b []byte, s guest.SystemDescriptor) []byte {
	b = appendI32(b, int32(s.Stage))
	b = appendTermSlice(b, s.Query)
	b = appendArrayHeader(b, len(s.Subscriptions))
	for _, ch := range s.Subscriptions {
		b = appendChannel(b, ch)
	}
	return b
}

func readSystemDescriptor(b []byte) (guest.SystemDescriptor, []byte, error) {
	stage, rest, err := readI32(b)
	if err != nil {
		return guest.SystemDescriptor{}, nil, err
	}
	terms, rest, err := readTermSlice(rest)
	if err != nil {
		return guest.SystemDescriptor{}, nil, err
	}
	n, rest, err := readArrayHeader(rest)
	if err != nil {
		return guest.SystemDescriptor{}, nil, err
	}
	subs := make([]message.ChannelId, 0, n)
	for i := 0; i < n; i++ {
		var ch message.ChannelId
		ch, rest, err = readChannel(rest)
		if err != nil {
			return guest.SystemDescriptor{}, nil, err
		}
		subs = append(subs, ch)
	}
	return guest.SystemDescriptor{
		Stage:         guest.Stage(stage),
		Query:         terms,
		Subscriptions: subs,
	}, rest, nil
}

func appendCommand(b []byte, c guest.Command) []byte {
	b = appendI32(b, int32(c.Kind))
	b = appendU64(b, uint64(c.Entity))
	b = appendString(b, string(c.Component))
	return appendBytes(b, c.Bytes)
}

func readCommand(b []byte) (guest.Command, []byte, error) {
	kind, rest, err := readI32(b)
	if err != nil {
		return guest.Command{}, nil, err
	}
	entity, rest, err := readU64(rest)
	if err != nil {
		return guest.Command{}, nil, err
	}
	cid, rest, err := readString(rest)
	if err != nil {
		return guest.Command{}, nil, err
	}
	bytes, rest, err := readBytes(rest)
	if err != nil {
		return guest.Command{}, nil, err
	}
	return guest.Command{
		Kind:      guest.CommandKind(kind),
		Entity:    ecs.EntityID(entity),
		Component: ecs.ComponentID(cid),
		Bytes:     bytes,
	}, rest, nil
}

// EncodeSendBuf serializes a SendBuf in field order: systems, commands,
// outbox.
func EncodeSendBuf(sb guest.SendBuf) ([]byte, error) {
	b := []byte{formatVersion}

	b = appendArrayHeader(b, len(sb.Systems))
	for _, s := range sb.Systems {
		b = appendSystemDescriptor(b, s)
	}

	b = appendArrayHeader(b, len(sb.Commands))
	for _, c := range sb.Commands {
		b = appendCommand(b, c)
	}

	b = appendMessageSlice(b, sb.Outbox)

	return b, nil
}

// DecodeSendBuf parses a buffer produced by EncodeSendBuf, rejecting any
// trailing bytes as a *guest.DecodeError.
func DecodeSendBuf(buf []byte) (guest.SendBuf, error) {
	b, err := checkVersion(buf)
	if err != nil {
		return guest.SendBuf{}, err
	}

	systemCount, rest, err := readArrayHeader(b)
	if err != nil {
		return guest.SendBuf{}, decodeErr(err)
	}
	var systems []guest.SystemDescriptor
	if systemCount > 0 {
		systems = make([]guest.SystemDescriptor, 0, systemCount)
	}
	for i := 0; i < systemCount; i++ {
		var s guest.SystemDescriptor
		s, rest, err = readSystemDescriptor(rest)
		if err != nil {
			return guest.SendBuf{}, decodeErr(err)
		}
		systems = append(systems, s)
	}

	commandCount, rest, err := readArrayHeader(rest)
	if err != nil {
		return guest.SendBuf{}, decodeErr(err)
	}
	var commands []guest.Command
	if commandCount > 0 {
		commands = make([]guest.Command, 0, commandCount)
	}
	for i := 0; i < commandCount; i++ {
		var c guest.Command
		c, rest, err = readCommand(rest)
		if err != nil {
			return guest.SendBuf{}, decodeErr(err)
		}
		commands = append(commands, c)
	}

	outbox, rest, err := readMessageSlice(rest)
	if err != nil {
		return guest.SendBuf{}, decodeErr(err)
	}

	if err := finish(rest); err != nil {
		return guest.SendBuf{}, err
	}

	return guest.SendBuf{
		Systems:  systems,
		Commands: commands,
		Outbox:   outbox,
	}, nil
}
