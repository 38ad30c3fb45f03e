package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_AttemptCompleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewZerologAdapter())
	messages, err := pubSub.Subscribe(ctx, "exam.events")
	require.NoError(t, err)

	publisher := NewPublisher(pubSub, "exam.events")
	defer publisher.Close()

	completedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.PublishAttemptCompleted(ctx, AttemptCompletedEvent{
		AttemptID:        42,
		UserID:           "user-1",
		TotalScore:       10,
		MaxPossibleScore: 17,
		Percentage:       58.82,
		CefrLevel:        "B1",
		CompletedAt:      completedAt,
	}))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, string(AttemptCompleted), msg.Metadata.Get("event_type"))

		var envelope struct {
			ID   string                `json:"id"`
			Type EventType             `json:"type"`
			Data AttemptCompletedEvent `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, msg.UUID, envelope.ID)
		assert.Equal(t, AttemptCompleted, envelope.Type)
		assert.Equal(t, uint(42), envelope.Data.AttemptID)
		assert.Equal(t, "B1", envelope.Data.CefrLevel)
		assert.True(t, completedAt.Equal(envelope.Data.CompletedAt))
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestPublisher_UsageRecordedWithoutSubscribers(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewZerologAdapter())
	publisher := NewPublisher(pubSub, "exam.events")
	defer publisher.Close()

	err := publisher.PublishUsageRecorded(context.Background(), UsageRecordedEvent{
		UserID:     "user-1",
		UsageType:  "writing_ai",
		PlanType:   "pro",
		RecordedAt: time.Now(),
	})
	assert.NoError(t, err)
}
