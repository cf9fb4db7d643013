package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	event := CaptureEvent{
		CaptureID:     "2f1c7a4e-0000-4000-8000-000000000001",
		Status:        "FAILED",
		FailureReason: "read capture bytes: object not found",
		Timestamp:     ts,
	}

	msg, err := Encode(event)
	require.NoError(t, err)
	assert.Equal(t, []byte(event.CaptureID), msg.Key)
	assert.Equal(t, ts, msg.Time)
	assert.JSONEq(t, `{
		"captureId": "2f1c7a4e-0000-4000-8000-000000000001",
		"status": "FAILED",
		"failureReason": "read capture bytes: object not found",
		"timestamp": "2026-02-06T09:00:00Z"
	}`, string(msg.Value))

	decoded, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
	assert.True(t, decoded.IsFailure())
}

func TestNewProducer_WithoutBrokersDiscards(t *testing.T) {
	p := NewProducer(nil, "capture-events")
	require.IsType(t, nopProducer{}, p)
	assert.NoError(t, p.Publish(context.Background(), CaptureEvent{CaptureID: "x", Status: "DONE"}))
	assert.NoError(t, p.Close())
}
