package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/provider"
)

type doneToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                       { return true }
func (t *doneToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}            { return t.done }
func (t *doneToken) Error() error                     { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMessage) Duplicate() bool   { return false }
func (f *fakeMessage) Qos() byte         { return qos }
func (f *fakeMessage) Retained() bool    { return false }
func (f *fakeMessage) Topic() string     { return f.topic }
func (f *fakeMessage) MessageID() uint16 { return 0 }
func (f *fakeMessage) Payload() []byte   { return f.payload }
func (f *fakeMessage) Ack()              {}

// fakeClient routes publishes straight to the subscribed handlers.
type fakeClient struct {
	pahomqtt.Client

	mu           sync.Mutex
	handlers     map[string]pahomqtt.MessageHandler
	unsubscribed []string
	onPublish    func(c *fakeClient, topic string, payload []byte)
	// onSubscribe and onUnsubscribe run before the broker call takes effect.
	// A non-nil error from onSubscribe fails the subscription.
	onSubscribe   func(topic string) error
	onUnsubscribe func(topic string)
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	hook := c.onSubscribe
	c.mu.Unlock()
	if hook != nil {
		if err := hook(topic); err != nil {
			return newDoneToken(err)
		}
	}
	c.mu.Lock()
	c.handlers[topic] = cb
	c.mu.Unlock()
	return newDoneToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	hook := c.onUnsubscribe
	c.mu.Unlock()
	if hook != nil {
		for _, t := range topics {
			hook(t)
		}
	}
	c.mu.Lock()
	for _, t := range topics {
		delete(c.handlers, t)
		c.unsubscribed = append(c.unsubscribed, t)
	}
	c.mu.Unlock()
	return newDoneToken(nil)
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	if c.onPublish != nil {
		go c.onPublish(c, topic, payload.([]byte))
	}
	return newDoneToken(nil)
}

func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(c, &fakeMessage{topic: topic, payload: payload})
	}
}

func (c *fakeClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

func replyWith(t *testing.T, build func(req LocateRequest) LocateReply) func(*fakeClient, string, []byte) {
	return func(c *fakeClient, topic string, payload []byte) {
		if topic != LocateTopic("phone-1") {
			return
		}
		var req LocateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			t.Errorf("unmarshal locate request: %v", err)
			return
		}
		body, _ := json.Marshal(build(req))
		c.deliver(req.ReplyTo, body)
	}
}

func TestLocate_Success(t *testing.T) {
	client := newFakeClient()
	var gotReq LocateRequest
	client.onPublish = replyWith(t, func(req LocateRequest) LocateReply {
		gotReq = req
		return LocateReply{RequestID: req.RequestID, Latitude: 30.9038, Longitude: 75.9009, Accuracy: 6, Timestamp: 1715003456}
	})

	p := NewLocationProvider(client)
	fix, err := p.Locate(context.Background(), "phone-1", domain.LocateOptions{HighAccuracy: true, Timeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, "phone-1", fix.DeviceID)
	assert.Equal(t, 30.9038, fix.Point.Lat)
	assert.Equal(t, 6.0, fix.AccuracyMeters)
	assert.Equal(t, time.Unix(1715003456, 0), fix.Timestamp)
	assert.True(t, gotReq.EnableHighAccuracy)
	assert.Equal(t, int64(1000), gotReq.TimeoutMs)
	assert.Equal(t, ReplyTopic("phone-1", gotReq.RequestID), gotReq.ReplyTo)
	assert.False(t, client.subscribed(gotReq.ReplyTo))
}

func TestLocate_ConcurrentRequestsForOneDevice(t *testing.T) {
	client := newFakeClient()
	var mu sync.Mutex
	next := 0.0
	client.onPublish = replyWith(t, func(req LocateRequest) LocateReply {
		mu.Lock()
		next++
		lat := next
		mu.Unlock()
		return LocateReply{RequestID: req.RequestID, Latitude: lat, Longitude: lat, Timestamp: 1715003456}
	})

	p := NewLocationProvider(client)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Locate(context.Background(), "phone-1", domain.LocateOptions{Timeout: time.Second})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestLocate_DeviceReportsError(t *testing.T) {
	tests := []struct {
		code string
		want domain.ProviderErrorCode
	}{
		{"permission_denied", domain.ErrCodePermissionDenied},
		{"position_unavailable", domain.ErrCodePositionUnavailable},
		{"timeout", domain.ErrCodeTimeout},
		{"unsupported", domain.ErrCodeUnsupported},
		{"something_else", domain.ErrCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			client := newFakeClient()
			client.onPublish = replyWith(t, func(req LocateRequest) LocateReply {
				return LocateReply{RequestID: req.RequestID, ErrorCode: tt.code}
			})

			p := NewLocationProvider(client)
			_, err := p.Locate(context.Background(), "phone-1", domain.LocateOptions{Timeout: time.Second})
			pe, ok := domain.AsProviderError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.want, pe.Code)
		})
	}
}

func TestLocate_Timeout(t *testing.T) {
	client := newFakeClient()
	p := NewLocationProvider(client)

	_, err := p.Locate(context.Background(), "phone-1", domain.LocateOptions{Timeout: 20 * time.Millisecond})
	pe, ok := domain.AsProviderError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.ErrCodeTimeout, pe.Code)
	assert.Equal(t, "Error getting location: The request to get user location timed out.", pe.Message())
}

func TestLocate_IgnoresOtherRequests(t *testing.T) {
	client := newFakeClient()
	client.onPublish = replyWith(t, func(_ LocateRequest) LocateReply {
		return LocateReply{RequestID: "someone-else", Latitude: 1, Longitude: 1, Timestamp: 1}
	})

	p := NewLocationProvider(client)
	_, err := p.Locate(context.Background(), "phone-1", domain.LocateOptions{Timeout: 30 * time.Millisecond})
	pe, ok := domain.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeTimeout, pe.Code)
}

func TestLocate_StaleFixRejected(t *testing.T) {
	client := newFakeClient()
	client.onPublish = replyWith(t, func(req LocateRequest) LocateReply {
		return LocateReply{RequestID: req.RequestID, Latitude: 1, Longitude: 1, Timestamp: 1715000000}
	})

	p := NewLocationProvider(client)
	p.now = func() time.Time { return time.Unix(1715000600, 0) }
	_, err := p.Locate(context.Background(), "phone-1", domain.LocateOptions{Timeout: time.Second, MaximumAge: time.Minute})
	pe, ok := domain.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodePositionUnavailable, pe.Code)
}

func receive(t *testing.T, c <-chan domain.Fix) domain.Fix {
	t.Helper()
	select {
	case fix, ok := <-c:
		require.True(t, ok, "channel closed")
		return fix
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fix")
		return domain.Fix{}
	}
}

func TestWatch_FanOutAndStop(t *testing.T) {
	client := newFakeClient()
	p := NewLocationProvider(client)
	topic := LocationTopic("phone-1")

	w1, err := p.Watch(context.Background(), "phone-1")
	require.NoError(t, err)
	w2, err := p.Watch(context.Background(), "phone-1")
	require.NoError(t, err)

	client.deliver(topic, []byte(`{"latitude":30.9,"longitude":75.9,"accuracy":5,"timestamp":1715003456}`))
	assert.Equal(t, 30.9, receive(t, w1.C).Point.Lat)
	assert.Equal(t, "phone-1", receive(t, w2.C).DeviceID)

	w1.Stop()
	w1.Stop()
	_, open := <-w1.C
	assert.False(t, open)
	assert.True(t, client.subscribed(topic))

	w2.Stop()
	_, open = <-w2.C
	assert.False(t, open)
	assert.False(t, client.subscribed(topic))
}

func TestWatch_ContextCancelStops(t *testing.T) {
	client := newFakeClient()
	p := NewLocationProvider(client)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := p.Watch(ctx, "phone-1")
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-w.C:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("watch not stopped after cancel")
	}
}

func TestWatch_InvalidPayloadDropped(t *testing.T) {
	client := newFakeClient()
	p := NewLocationProvider(client)

	w, err := p.Watch(context.Background(), "phone-1")
	require.NoError(t, err)
	defer w.Stop()

	client.deliver(LocationTopic("phone-1"), []byte("not json"))
	select {
	case fix := <-w.C:
		t.Fatalf("unexpected fix %v", fix)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWatch_FailedSubscribeIsRetriedByNextWatcher(t *testing.T) {
	client := newFakeClient()
	p := NewLocationProvider(client)
	topic := LocationTopic("phone-1")

	started := make(chan struct{})
	refuse := make(chan struct{})
	var calls int
	client.onSubscribe = func(string) error {
		client.mu.Lock()
		calls++
		first := calls == 1
		client.mu.Unlock()
		if !first {
			return nil
		}
		close(started)
		<-refuse
		return errors.New("broker refused")
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Watch(context.Background(), "phone-1")
		firstErr <- err
	}()
	<-started

	type result struct {
		w   *provider.Watch
		err error
	}
	second := make(chan result, 1)
	go func() {
		w, err := p.Watch(context.Background(), "phone-1")
		second <- result{w, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(refuse)

	require.Error(t, <-firstErr)
	r := <-second
	require.NoError(t, r.err)
	defer r.w.Stop()

	w3, err := p.Watch(context.Background(), "phone-1")
	require.NoError(t, err)
	defer w3.Stop()

	require.True(t, client.subscribed(topic))
	client.deliver(topic, []byte(`{"latitude":30.9,"longitude":75.9,"accuracy":5,"timestamp":1715003456}`))
	assert.Equal(t, 30.9, receive(t, r.w.C).Point.Lat)
	assert.Equal(t, 30.9, receive(t, w3.C).Point.Lat)
}

func TestWatch_StartedDuringUnsubscribeKeepsSubscription(t *testing.T) {
	client := newFakeClient()
	p := NewLocationProvider(client)
	topic := LocationTopic("phone-1")

	w1, err := p.Watch(context.Background(), "phone-1")
	require.NoError(t, err)

	type result struct {
		w   *provider.Watch
		err error
	}
	second := make(chan result, 1)
	var once sync.Once
	client.onUnsubscribe = func(string) {
		once.Do(func() {
			go func() {
				w, err := p.Watch(context.Background(), "phone-1")
				second <- result{w, err}
			}()
			time.Sleep(20 * time.Millisecond)
		})
	}

	w1.Stop()
	r := <-second
	require.NoError(t, r.err)
	defer r.w.Stop()

	require.True(t, client.subscribed(topic))
	client.deliver(topic, []byte(`{"latitude":30.9,"longitude":75.9,"accuracy":5,"timestamp":1715003456}`))
	assert.Equal(t, "phone-1", receive(t, r.w.C).DeviceID)
}
