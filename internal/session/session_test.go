package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chaz8081/pendant/internal/periodic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStarter struct{ n atomic.Int32 }

func (c *countingStarter) Start() { c.n.Add(1) }

func TestNoSessionInitially(t *testing.T) {
	m := NewManager()
	_, ok := m.Current()
	assert.False(t, ok)
	assert.False(t, m.Valid(0))
}

func TestEstablishedSeedsPayloadAndStartsTasks(t *testing.T) {
	st := &countingStarter{}
	m := NewManager(st)

	s := m.OnEstablished(LinkInfo{Handle: "AA:BB", PayloadSize: 247})
	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, s.ID, cur.ID)
	assert.Equal(t, 247, cur.PayloadSize)
	assert.Equal(t, "AA:BB", cur.Handle)
	assert.False(t, cur.AudioNotify)
	assert.False(t, cur.ButtonNotify)
	assert.Equal(t, int32(1), st.n.Load())

	m.OnTerminated("AA:BB")
	m.OnEstablished(LinkInfo{Handle: "AA:BB", PayloadSize: 23})
	assert.Equal(t, int32(2), st.n.Load(), "starter is invoked on every establishment")
}

func TestValidRequiresPayloadAndAudioSubscription(t *testing.T) {
	m := NewManager()
	m.OnEstablished(LinkInfo{PayloadSize: 99})
	assert.False(t, m.Valid(100), "unsubscribed, small payload")

	m.OnSubscriptionChanged(AudioData, true)
	assert.False(t, m.Valid(100), "payload below minimum")

	m.OnPayloadSizeChanged(100)
	assert.True(t, m.Valid(100))

	m.OnSubscriptionChanged(ButtonEvent, true)
	m.OnSubscriptionChanged(AudioData, false)
	assert.False(t, m.Valid(100), "audio unsubscribed")
}

func TestTerminationResetsState(t *testing.T) {
	m := NewManager()
	m.OnEstablished(LinkInfo{PayloadSize: 247})
	m.OnSubscriptionChanged(AudioData, true)
	m.OnSubscriptionChanged(ButtonEvent, true)

	m.OnTerminated("")
	_, ok := m.Current()
	assert.False(t, ok)

	s := m.OnEstablished(LinkInfo{PayloadSize: 185})
	assert.False(t, s.AudioNotify, "subscriptions do not survive termination")
	assert.False(t, s.ButtonNotify)
}

func TestStaleTerminationKeepsNewSession(t *testing.T) {
	m := NewManager()
	m.OnEstablished(LinkInfo{Handle: "11:11", PayloadSize: 247})
	second := m.OnEstablished(LinkInfo{Handle: "22:22", PayloadSize: 185})

	m.OnTerminated("11:11")
	cur, ok := m.Current()
	require.True(t, ok, "session of the replacing link was cleared")
	assert.Equal(t, second.ID, cur.ID)

	m.OnTerminated("22:22")
	_, ok = m.Current()
	assert.False(t, ok)
}

func TestTerminationLeavesPeriodicTasksRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	sched := periodic.New(ctx, periodic.Task{
		Name:     "sample",
		Interval: time.Millisecond,
		Run:      func(context.Context) { ticks.Add(1) },
	})
	m := NewManager(sched)

	m.OnEstablished(LinkInfo{Handle: "AA:BB", PayloadSize: 247})
	require.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, time.Millisecond)

	m.OnTerminated("AA:BB")
	_, ok := m.Current()
	require.False(t, ok)

	after := ticks.Load()
	require.Eventually(t, func() bool { return ticks.Load() > after+2 }, time.Second, time.Millisecond,
		"periodic tasks stopped with the session")

	m.OnEstablished(LinkInfo{Handle: "AA:BB", PayloadSize: 247})
	assert.True(t, sched.Started())
}

func TestUpdatesWithoutSessionAreIgnored(t *testing.T) {
	m := NewManager()
	m.OnPayloadSizeChanged(247)
	m.OnSubscriptionChanged(AudioData, true)
	m.OnTerminated("")
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	m := NewManager()
	m.OnEstablished(LinkInfo{PayloadSize: 100})
	before, _ := m.Current()

	m.OnPayloadSizeChanged(200)
	after, _ := m.Current()

	assert.Equal(t, 100, before.PayloadSize)
	assert.Equal(t, 200, after.PayloadSize)
	assert.Equal(t, before.ID, after.ID, "renegotiation keeps the same session")
}

func TestObserversSeeLifecycle(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var events []bool
	m.Subscribe(func(s Session, connected bool) {
		mu.Lock()
		events = append(events, connected)
		mu.Unlock()
	})

	m.OnEstablished(LinkInfo{PayloadSize: 100})
	m.OnPayloadSizeChanged(100) // unchanged, not published
	m.OnSubscriptionChanged(AudioData, true)
	m.OnTerminated("")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, true, false}, events)
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	m := NewManager()
	m.OnEstablished(LinkInfo{PayloadSize: 100})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if s, ok := m.Current(); ok {
					// Audio is only ever enabled while the payload is 200.
					if s.AudioNotify && s.PayloadSize != 200 {
						t.Errorf("torn snapshot: %+v", s)
						return
					}
				}
			}
		}()
	}

	for i := range 1000 {
		if i%2 == 0 {
			m.OnPayloadSizeChanged(200)
			m.OnSubscriptionChanged(AudioData, true)
		} else {
			m.OnSubscriptionChanged(AudioData, false)
			m.OnPayloadSizeChanged(100)
		}
	}
	close(stop)
	wg.Wait()
}
