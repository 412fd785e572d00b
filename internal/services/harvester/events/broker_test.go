package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"weibo-harvester/internal/services/harvester/domain"
)

func TestBroker_DeliversToAllSubscribers(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Progress(domain.ProgressEvent{TaskID: "t1", Page: 1, Timestamp: time.Now()})

	env1 := <-ch1
	env2 := <-ch2
	require.Equal(t, "progress", env1.Type)
	require.Equal(t, "progress", env2.Type)
}

func TestBroker_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Error(domain.ErrorEvent{TaskID: "t1", Code: "X", Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
	<-ch
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}

func TestMarshalSSE_FormatsEventFrame(t *testing.T) {
	env := Envelope{Type: "completed", Data: domain.CompletedEvent{TaskID: "t1"}}
	frame, err := MarshalSSE(env)
	require.NoError(t, err)
	require.Contains(t, string(frame), "event: completed\n")
	require.Contains(t, string(frame), "\"task_id\":\"t1\"")
}
