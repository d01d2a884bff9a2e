package types

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelwatch/sentinel/ledger"
)

func Test_Event_ParseLog(t *testing.T) {
	event := RiskRevealedEvent{IsAtRisk: true, Timestamp: 1700000000}
	line := EncodeEventLog(event.Tag(), event.Encode())

	tag, payload, ok := ParseEventLog(line)
	require.True(t, ok)
	require.Equal(t, TagRiskRevealed, tag)
	require.Len(t, payload, 9)
}

func Test_Event_ParseLog_Rejects(t *testing.T) {
	// no event marker
	_, _, ok := ParseEventLog("Program log: hello")
	require.False(t, ok)

	// invalid base64
	_, _, ok = ParseEventLog("Program data: !!!not-base64!!!")
	require.False(t, ok)

	// payload shorter than a tag
	short := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	_, _, ok = ParseEventLog("Program data: " + short)
	require.False(t, ok)
}

func Test_Event_Decode_RiskRevealed(t *testing.T) {
	payload := make([]byte, 9)
	payload[0] = 1

	event, ok := DecodeEvent(TagRiskRevealed, payload)
	require.True(t, ok)
	revealed, isRevealed := event.(RiskRevealedEvent)
	require.True(t, isRevealed)
	require.True(t, revealed.IsAtRisk)
	require.Equal(t, int64(0), revealed.Timestamp)
}

func Test_Event_Decode_PositionRegistered(t *testing.T) {
	var owner ledger.PublicKey
	for i := range owner {
		owner[i] = byte(i)
	}
	src := PositionRegisteredEvent{Owner: owner, PositionID: 1, Timestamp: 99}

	event, ok := DecodeEvent(TagPositionRegistered, src.Encode())
	require.True(t, ok)
	require.Equal(t, src, event)
}

func Test_Event_Decode_ActionRequired(t *testing.T) {
	src := ActionRequiredEvent{Action: "emergency_withdraw", Timestamp: 123}

	event, ok := DecodeEvent(TagActionRequired, src.Encode())
	require.True(t, ok)
	require.Equal(t, src, event)
}

func Test_Event_Decode_Unrecognized(t *testing.T) {
	unknown := EventTag{9, 9, 9, 9, 9, 9, 9, 9}

	event, ok := DecodeEvent(unknown, []byte{1, 2, 3})
	require.True(t, ok)
	other, isUnrecognized := event.(UnrecognizedEvent)
	require.True(t, isUnrecognized)
	require.Equal(t, unknown, other.RawTag)
}

func Test_Event_Decode_Malformed(t *testing.T) {
	// risk reveal needs 9 bytes
	_, ok := DecodeEvent(TagRiskRevealed, []byte{1})
	require.False(t, ok)

	// registration needs 44 bytes
	_, ok = DecodeEvent(TagPositionRegistered, make([]byte, 10))
	require.False(t, ok)

	// action label length exceeds the payload
	bad := []byte{255, 0, 0, 0, 'x'}
	_, ok = DecodeEvent(TagActionRequired, bad)
	require.False(t, ok)
}

func Test_Event_LogRoundTrip(t *testing.T) {
	events := []Event{
		PositionRegisteredEvent{PositionID: 4, Timestamp: 1},
		HealthCheckCompletedEvent{PositionID: 4, Timestamp: 2},
		RiskRevealedEvent{IsAtRisk: false, Timestamp: 3},
		ActionRequiredEvent{Action: "rebalance", Timestamp: 4},
	}

	for _, src := range events {
		encoder, hasEncoder := src.(interface{ Encode() []byte })
		require.True(t, hasEncoder)

		tag, payload, ok := ParseEventLog(EncodeEventLog(src.Tag(), encoder.Encode()))
		require.True(t, ok)
		decoded, ok := DecodeEvent(tag, payload)
		require.True(t, ok)
		require.Equal(t, src, decoded)
	}
}
