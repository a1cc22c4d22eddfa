package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silo-go/internal/model"
)

func TestProgressHubPublishReachesSubscriber(t *testing.T) {
	hub := NewProgressHub()
	events, cancel := hub.Subscribe("f1")
	defer cancel()

	hub.Publish("f1", model.StageExecution{Name: "hashing", Success: true})
	hub.Publish("other", model.StageExecution{Name: "hashing"})

	exec := <-events
	assert.Equal(t, "hashing", exec.Name)
	assert.True(t, exec.Success)
	// 其他文件的事件不会串台
	assert.Empty(t, events)
}

func TestProgressHubCancelStopsDelivery(t *testing.T) {
	hub := NewProgressHub()
	events, cancel := hub.Subscribe("f1")
	cancel()

	hub.Publish("f1", model.StageExecution{Name: "hashing"})
	assert.Empty(t, events)
}

func TestProgressHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewProgressHub()
	_, cancel := hub.Subscribe("f1")
	defer cancel()

	// 订阅方不消费，发布 buffer 容量以上的事件也不能阻塞
	for i := 0; i < 100; i++ {
		hub.Publish("f1", model.StageExecution{Name: "storage"})
	}
}

func TestProgressHubMultipleSubscribers(t *testing.T) {
	hub := NewProgressHub()
	a, cancelA := hub.Subscribe("f1")
	defer cancelA()
	b, cancelB := hub.Subscribe("f1")
	defer cancelB()

	hub.Publish("f1", model.StageExecution{Name: "versioning"})

	require.Equal(t, "versioning", (<-a).Name)
	require.Equal(t, "versioning", (<-b).Name)
}
