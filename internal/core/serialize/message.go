package serialize

import (
	"hostengine/internal/core/message"
)

func appendChannel(b []byte, c message.ChannelId) []byte {
	b = appendString(b, c.ID)
	return appendI32(b, int32(c.Locality))
}

func readChannel(b []byte) (message.ChannelId, []byte, error) {
	id, rest, err := readString(b)
	if err != nil {
		return message.ChannelId{}, nil, err
	}
	loc, rest, err := readI32(rest)
	if err != nil {
		return message.ChannelId{}, nil, err
	}
	return message.ChannelId{ID: id, Locality: message.Locality(loc)}, rest, nil
}

func appendMessage(b []byte, m message.MessageData) []byte {
	b = appendChannel(b, m.Channel)
	b = appendBytes(b, m.Payload)
	return appendOptionalString(b, m.ClientID)
}

func readMessage(b []byte) (message.MessageData, []byte, error) {
	ch, rest, err := readChannel(b)
	if err != nil {
		return message.MessageData{}, nil, err
	}
	payload, rest, err := readBytes(rest)
	if err != nil {
		return message.MessageData{}, nil, err
	}
	clientID, rest, err := readOptionalString(rest)
	if err != nil {
		return message.MessageData{}, nil, err
	}
	return message.MessageData{Channel: ch, Payload: payload, ClientID: clientID}, rest, nil
}

func appendMessageSlice(b []byte, msgs []message.MessageData) []byte {
	b = appendArrayHeader(b, len(msgs))
	for _, m := range msgs {
		b = appendMessage(b, m)
	}
	return b
}

func readMessageSlice(b []byte) ([]message.MessageData, []byte, error) {
	n, rest, err := readArrayHeader(b)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, rest, nil
	}
	out := make([]message.MessageData, 0, n)
	for i := 0; i < n; i++ {
		var m message.MessageData
		m, rest, err = readMessage(rest)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, m)
	}
	return out, rest, nil
}

// EncodeMessage serializes a single MessageData value, version-tagged.
func EncodeMessage(m message.MessageData) []byte {
	b := []byte{formatVersion}
	b = appendMessage(b, m)
	return b
}

// DecodeMessage parses a buffer produced by EncodeMessage, rejecting any
// trailing bytes.
func DecodeMessage(buf []byte) (message.MessageData, error) {
	b, err := checkVersion(buf)
	if err != nil {
		return message.MessageData{}, err
	}
	m, rest, err := readMessage(b)
	if err != nil {
		return message.MessageData{}, decodeErr(err)
	}
	if err := finish(rest); err != nil {
		return message.MessageData{}, err
	}
	return m, nil
}
