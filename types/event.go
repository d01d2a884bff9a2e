package types

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/sentinelwatch/sentinel/ledger"
)

// eventLogPrefix marks program log lines that carry a base64 event payload.
const eventLogPrefix = "Program data: "

// -----------------------------------------------------------------------------
// Envelope

// ParseEventLog extracts the tag and payload from one raw log line. It
// reports false for lines without the event marker, undecodable base64, or
// payloads shorter than a tag.
func ParseEventLog(line string) (EventTag, []byte, bool) {
	var tag EventTag
	rest, found := strings.CutPrefix(line, eventLogPrefix)
	if !found {
		return tag, nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(rest)
	if err != nil || len(raw) < len(tag) {
		return tag, nil, false
	}
	copy(tag[:], raw[:8])
	return tag, raw[8:], true
}

// EncodeEventLog renders an event as the log line the program would emit.
func EncodeEventLog(tag EventTag, payload []byte) string {
	raw := append(append([]byte{}, tag[:]...), payload...)
	return eventLogPrefix + base64.StdEncoding.EncodeToString(raw)
}

// DecodeEvent decodes a tagged payload into its variant. Unknown tags yield
// UnrecognizedEvent; known tags with malformed payloads report false.
func DecodeEvent(tag EventTag, payload []byte) (Event, bool) {
	switch tag {
	case TagPositionRegistered:
		owner, id, ts, ok := decodeOwnerIDTimestamp(payload)
		if !ok {
			return nil, false
		}
		return PositionRegisteredEvent{Owner: owner, PositionID: id, Timestamp: ts}, true
	case TagHealthCheckCompleted:
		owner, id, ts, ok := decodeOwnerIDTimestamp(payload)
		if !ok {
			return nil, false
		}
		return HealthCheckCompletedEvent{Owner: owner, PositionID: id, Timestamp: ts}, true
	case TagRiskRevealed:
		if len(payload) < 9 {
			return nil, false
		}
		return RiskRevealedEvent{
			IsAtRisk:  payload[0] != 0,
			Timestamp: int64(binary.LittleEndian.Uint64(payload[1:9])),
		}, true
	case TagActionRequired:
		if len(payload) < 4 {
			return nil, false
		}
		n := binary.LittleEndian.Uint32(payload[:4])
		if len(payload) < int(4+n+8) {
			return nil, false
		}
		return ActionRequiredEvent{
			Action:    string(payload[4 : 4+n]),
			Timestamp: int64(binary.LittleEndian.Uint64(payload[4+n : 4+n+8])),
		}, true
	default:
		return UnrecognizedEvent{RawTag: tag}, true
	}
}

// decodeOwnerIDTimestamp parses the shared 32+4+8 layout of registration and
// health-check events.
func decodeOwnerIDTimestamp(payload []byte) (ledger.PublicKey, uint32, int64, bool) {
	var owner ledger.PublicKey
	if len(payload) < 44 {
		return owner, 0, 0, false
	}
	copy(owner[:], payload[:32])
	id := binary.LittleEndian.Uint32(payload[32:36])
	ts := int64(binary.LittleEndian.Uint64(payload[36:44]))
	return owner, id, ts, true
}

// -----------------------------------------------------------------------------
// PositionRegisteredEvent

// Tag implements types.Event.
func (PositionRegisteredEvent) Tag() EventTag {
	return TagPositionRegistered
}

// Name implements types.Event.
func (PositionRegisteredEvent) Name() string {
	return "PositionRegistered"
}

// String implements types.Event.
func (e PositionRegisteredEvent) String() string {
	return fmt.Sprintf("{position %d registered for %s}", e.PositionID, e.Owner)
}

// Encode serializes the event payload as the program emits it.
func (e PositionRegisteredEvent) Encode() []byte {
	return encodeOwnerIDTimestamp(e.Owner, e.PositionID, e.Timestamp)
}

// -----------------------------------------------------------------------------
// HealthCheckCompletedEvent

// Tag implements types.Event.
func (HealthCheckCompletedEvent) Tag() EventTag {
	return TagHealthCheckCompleted
}

// Name implements types.Event.
func (HealthCheckCompletedEvent) Name() string {
	return "HealthCheckCompleted"
}

// String implements types.Event.
func (e HealthCheckCompletedEvent) String() string {
	return fmt.Sprintf("{health check done for position %d of %s}", e.PositionID, e.Owner)
}

// Encode serializes the event payload as the program emits it.
func (e HealthCheckCompletedEvent) Encode() []byte {
	return encodeOwnerIDTimestamp(e.Owner, e.PositionID, e.Timestamp)
}

// -----------------------------------------------------------------------------
// RiskRevealedEvent

// Tag implements types.Event.
func (RiskRevealedEvent) Tag() EventTag {
	return TagRiskRevealed
}

// Name implements types.Event.
func (RiskRevealedEvent) Name() string {
	return "RiskRevealed"
}

// String implements types.Event.
func (e RiskRevealedEvent) String() string {
	return fmt.Sprintf("{risk revealed: atRisk=%v}", e.IsAtRisk)
}

// Encode serializes the event payload as the program emits it.
func (e RiskRevealedEvent) Encode() []byte {
	payload := make([]byte, 9)
	if e.IsAtRisk {
		payload[0] = 1
	}
	binary.LittleEndian.PutUint64(payload[1:], uint64(e.Timestamp))
	return payload
}

// -----------------------------------------------------------------------------
// ActionRequiredEvent

// Tag implements types.Event.
func (ActionRequiredEvent) Tag() EventTag {
	return TagActionRequired
}

// Name implements types.Event.
func (ActionRequiredEvent) Name() string {
	return "ActionRequired"
}

// String implements types.Event.
func (e ActionRequiredEvent) String() string {
	return fmt.Sprintf("{action required: %s}", e.Action)
}

// Encode serializes the event payload as the program emits it.
func (e ActionRequiredEvent) Encode() []byte {
	payload := make([]byte, 0, 4+len(e.Action)+8)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(e.Action)))
	payload = append(payload, e.Action...)
	payload = binary.LittleEndian.AppendUint64(payload, uint64(e.Timestamp))
	return payload
}

// -----------------------------------------------------------------------------
// UnrecognizedEvent

// Tag implements types.Event.
func (e UnrecognizedEvent) Tag() EventTag {
	return e.RawTag
}

// Name implements types.Event.
func (UnrecognizedEvent) Name() string {
	return "Unrecognized"
}

// String implements types.Event.
func (e UnrecognizedEvent) String() string {
	return fmt.Sprintf("{unrecognized event %v}", e.RawTag)
}

func encodeOwnerIDTimestamp(owner ledger.PublicKey, id uint32, ts int64) []byte {
	payload := make([]byte, 0, 44)
	payload = append(payload, owner[:]...)
	payload = binary.LittleEndian.AppendUint32(payload, id)
	payload = binary.LittleEndian.AppendUint64(payload, uint64(ts))
	return payload
}
