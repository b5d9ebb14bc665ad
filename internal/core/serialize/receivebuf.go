package serialize

import (
	"sort"

	"hostengine/internal/core/guest"
	"hostengine/internal/core/message"
)

// EncodeReceiveBuf serializes a ReceiveBuf. Inbox keys (ChannelId) are
// sorted by (ID, Locality) before encoding so that two ReceiveBufs built
// from equivalent maps produce identical bytes.
func EncodeReceiveBuf(rb guest.ReceiveBuf) ([]byte, error) {
	b := []byte{formatVersion}

	b = appendOptionalInt(b, rb.System)

	channels := make([]message.ChannelId, 0, len(rb.Inbox))
	for ch := range rb.Inbox {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].ID != channels[j].ID {
			return channels[i].ID < channels[j].ID
		}
		return channels[i].Locality < channels[j].Locality
	})
	b = appendArrayHeader(b, len(channels))
	for _, ch := range channels {
		b = appendChannel(b, ch)
		b = appendMessageSlice(b, rb.Inbox[ch])
	}

	b = appendEcsData(b, rb.Ecs)
	b = appendBool(b, rb.IsServer)

	return b, nil
}

// DecodeReceiveBuf parses a buffer produced by EncodeReceiveBuf, rejecting
// any trailing bytes as a *guest.DecodeError.
func DecodeReceiveBuf(buf []byte) (guest.ReceiveBuf, error) {
	b, err := checkVersion(buf)
	if err != nil {
		return guest.ReceiveBuf{}, err
	}

	system, rest, err := readOptionalInt(b)
	if err != nil {
		return guest.ReceiveBuf{}, decodeErr(err)
	}

	channelCount, rest, err := readArrayHeader(rest)
	if err != nil {
		return guest.ReceiveBuf{}, decodeErr(err)
	}
	var inbox map[message.ChannelId][]message.MessageData
	if channelCount > 0 {
		inbox = make(map[message.ChannelId][]message.MessageData, channelCount)
	}
	for i := 0; i < channelCount; i++ {
		var ch message.ChannelId
		ch, rest, err = readChannel(rest)
		if err != nil {
			return guest.ReceiveBuf{}, decodeErr(err)
		}
		var msgs []message.MessageData
		msgs, rest, err = readMessageSlice(rest)
		if err != nil {
			return guest.ReceiveBuf{}, decodeErr(err)
		}
		inbox[ch] = msgs
	}

	ecsData, rest, err := readEcsData(rest)
	if err != nil {
		return guest.ReceiveBuf{}, decodeErr(err)
	}

	isServer, rest, err := readBool(rest)
	if err != nil {
		return guest.ReceiveBuf{}, decodeErr(err)
	}

	if err := finish(rest); err != nil {
		return guest.ReceiveBuf{}, err
	}

	return guest.ReceiveBuf{
		System:   system,
		Inbox:    inbox,
		Ecs:      ecsData,
		IsServer: isServer,
	}, nil
}
