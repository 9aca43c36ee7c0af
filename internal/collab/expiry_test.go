package collab

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiredLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *expiredLog) add(k string) {
	l.mu.Lock()
	l.keys = append(l.keys, k)
	l.mu.Unlock()
}

func (l *expiredLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func TestExpiry_FiresOncePerKey(t *testing.T) {
	var log expiredLog
	e := NewExpiry(20*time.Millisecond, log.add)

	e.Touch("a")
	e.Touch("b")
	assert.Equal(t, 2, e.Pending())

	require.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, log.snapshot())
	assert.Zero(t, e.Pending())
}

func TestExpiry_TouchReschedules(t *testing.T) {
	var log expiredLog
	e := NewExpiry(100*time.Millisecond, log.add)

	e.Touch("a")
	for range 4 {
		time.Sleep(20 * time.Millisecond)
		e.Touch("a")
	}
	assert.Empty(t, log.snapshot())

	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestExpiry_CancelAndStop(t *testing.T) {
	var log expiredLog
	e := NewExpiry(20*time.Millisecond, log.add)

	e.Touch("a")
	assert.True(t, e.Cancel("a"))
	assert.False(t, e.Cancel("a"))

	e.Touch("b")
	e.Stop()
	e.Touch("c")
	assert.Zero(t, e.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, log.snapshot())
}

func TestTopic_Unsubscribe(t *testing.T) {
	var topic Topic[int]
	var got []int

	unsub := topic.Subscribe(func(v int) { got = append(got, v) })
	topic.Subscribe(func(v int) { got = append(got, v*10) })

	topic.publish(1)
	unsub()
	topic.publish(2)

	assert.Equal(t, []int{1, 10, 20}, got)
}
