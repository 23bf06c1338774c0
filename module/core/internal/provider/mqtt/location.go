package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/provider"
)

var _ provider.LocationProvider = (*LocationProvider)(nil)

const (
	qos         = 1
	watchBuffer = 16
)

func LocationTopic(deviceID string) string { return fmt.Sprintf("/region/device/%s/location", deviceID) }
func LocateTopic(deviceID string) string   { return fmt.Sprintf("/region/device/%s/locate", deviceID) }

// ReplyTopic is unique per request so concurrent Locate calls for one
// device never share a subscription.
func ReplyTopic(deviceID, requestID string) string {
	return fmt.Sprintf("/region/device/%s/locate/reply/%s", deviceID, requestID)
}

// LocateRequest is what a device receives when asked for a fresh fix.
type LocateRequest struct {
	RequestID          string `json:"request_id"`
	ReplyTo            string `json:"reply_to"`
	EnableHighAccuracy bool   `json:"enable_high_accuracy"`
	TimeoutMs          int64  `json:"timeout_ms"`
	MaximumAgeMs       int64  `json:"maximum_age_ms"`
}

// LocateReply carries either a fix or an error code.
type LocateReply struct {
	RequestID string  `json:"request_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
	ErrorCode string  `json:"error_code,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type fixMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// LocationProvider talks to devices over MQTT. Locate is request/reply on a
// per-request reply topic; Watch shares one subscription per device among all
// of its watchers.
type LocationProvider struct {
	client pahomqtt.Client
	now    func() time.Time

	mu      sync.Mutex
	devices map[string]*deviceWatch
}

// deviceWatch is the shared location subscription of one device. subMu is
// held across every Subscribe and Unsubscribe of the topic, so broker calls
// for a device never interleave. refs counts watchers, including those still
// waiting on subMu, and keeps the entry alive while it is non-zero.
type deviceWatch struct {
	subMu      sync.Mutex
	subscribed bool

	refs     int
	watchers map[*watcher]struct{}
}

type watcher struct {
	mu     sync.Mutex
	ch     chan domain.Fix
	closed bool
}

func NewLocationProvider(client pahomqtt.Client) *LocationProvider {
	return &LocationProvider{
		client:  client,
		now:     time.Now,
		devices: make(map[string]*deviceWatch),
	}
}

func (p *LocationProvider) Locate(ctx context.Context, deviceID string, opts domain.LocateOptions) (domain.Fix, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	replies := make(chan LocateReply, 1)
	reply := ReplyTopic(deviceID, requestID)

	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		var r LocateReply
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			zap.L().Warn("invalid locate reply", zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		if r.RequestID != requestID {
			return
		}
		select {
		case replies <- r:
		default:
		}
	}

	if err := wait(ctx, p.client.Subscribe(reply, qos, handler)); err != nil {
		return domain.Fix{}, classifyWaitErr(err, "subscribe reply")
	}
	defer p.client.Unsubscribe(reply)

	req, err := json.Marshal(LocateRequest{
		RequestID:          requestID,
		ReplyTo:            reply,
		EnableHighAccuracy: opts.HighAccuracy,
		TimeoutMs:          opts.Timeout.Milliseconds(),
		MaximumAgeMs:       opts.MaximumAge.Milliseconds(),
	})
	if err != nil {
		return domain.Fix{}, eris.Wrap(err, "marshal locate request")
	}
	if err := wait(ctx, p.client.Publish(LocateTopic(deviceID), qos, false, req)); err != nil {
		return domain.Fix{}, classifyWaitErr(err, "publish locate request")
	}

	select {
	case r := <-replies:
		return p.replyToFix(deviceID, r, opts)
	case <-ctx.Done():
		return domain.Fix{}, classifyWaitErr(ctx.Err(), "await fix")
	}
}

func (p *LocationProvider) replyToFix(deviceID string, r LocateReply, opts domain.LocateOptions) (domain.Fix, error) {
	if r.ErrorCode != "" {
		var cause error
		if r.Error != "" {
			cause = errors.New(r.Error)
		}
		return domain.Fix{}, domain.NewProviderError(domain.ParseProviderErrorCode(r.ErrorCode), cause)
	}

	fix := domain.Fix{
		DeviceID:       deviceID,
		Point:          domain.GeoPoint{Lat: r.Latitude, Lon: r.Longitude},
		AccuracyMeters: r.Accuracy,
		Timestamp:      time.Unix(r.Timestamp, 0),
	}
	if r.Timestamp <= 0 {
		fix.Timestamp = p.now()
	}
	if opts.MaximumAge > 0 && p.now().Sub(fix.Timestamp) > opts.MaximumAge {
		return domain.Fix{}, domain.NewProviderError(domain.ErrCodePositionUnavailable, errors.New("fix older than maximum age"))
	}
	return fix, nil
}

func (p *LocationProvider) Watch(ctx context.Context, deviceID string) (*provider.Watch, error) {
	p.mu.Lock()
	d, ok := p.devices[deviceID]
	if !ok {
		d = &deviceWatch{watchers: make(map[*watcher]struct{})}
		p.devices[deviceID] = d
	}
	d.refs++
	p.mu.Unlock()

	if err := p.subscribe(ctx, deviceID, d); err != nil {
		p.release(deviceID, d)
		return nil, err
	}

	w := &watcher{ch: make(chan domain.Fix, watchBuffer)}
	p.mu.Lock()
	d.watchers[w] = struct{}{}
	p.mu.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	watch := provider.NewWatch(w.ch, func() {
		cancel()
		p.remove(deviceID, d, w)
	})
	go func() {
		<-watchCtx.Done()
		watch.Stop()
	}()
	return watch, nil
}

// subscribe makes sure the device topic is subscribed. A failed attempt
// leaves d unsubscribed, so the next watcher tries again.
func (p *LocationProvider) subscribe(ctx context.Context, deviceID string, d *deviceWatch) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if d.subscribed {
		return nil
	}
	token := p.client.Subscribe(LocationTopic(deviceID), qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		p.dispatch(deviceID, msg.Payload())
	})
	if err := wait(ctx, token); err != nil {
		return eris.Wrapf(err, "subscribe %s", LocationTopic(deviceID))
	}
	d.subscribed = true
	return nil
}

func (p *LocationProvider) dispatch(deviceID string, payload []byte) {
	var m fixMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		zap.L().Warn("invalid fix for watchers", zap.String("device_id", deviceID), zap.Error(err))
		return
	}
	fix := domain.Fix{
		DeviceID:       deviceID,
		Point:          domain.GeoPoint{Lat: m.Latitude, Lon: m.Longitude},
		AccuracyMeters: m.Accuracy,
		Timestamp:      time.Unix(m.Timestamp, 0),
	}

	p.mu.Lock()
	var targets []*watcher
	if d := p.devices[deviceID]; d != nil {
		targets = make([]*watcher, 0, len(d.watchers))
		for w := range d.watchers {
			targets = append(targets, w)
		}
	}
	p.mu.Unlock()

	for _, w := range targets {
		w.send(fix)
	}
}

func (p *LocationProvider) remove(deviceID string, d *deviceWatch, w *watcher) {
	w.close()

	p.mu.Lock()
	delete(d.watchers, w)
	p.mu.Unlock()

	p.release(deviceID, d)
}

// release drops one reference to d. The last one unsubscribes the topic and
// forgets the device; a Watch that takes a reference meanwhile keeps it.
func (p *LocationProvider) release(deviceID string, d *deviceWatch) {
	p.mu.Lock()
	d.refs--
	p.mu.Unlock()

	d.subMu.Lock()
	defer d.subMu.Unlock()

	p.mu.Lock()
	idle := d.refs == 0
	p.mu.Unlock()
	if !idle {
		return
	}

	if d.subscribed {
		p.client.Unsubscribe(LocationTopic(deviceID)).WaitTimeout(time.Second)
		d.subscribed = false
	}

	p.mu.Lock()
	if d.refs == 0 && p.devices[deviceID] == d {
		delete(p.devices, deviceID)
	}
	p.mu.Unlock()
}

func (w *watcher) send(fix domain.Fix) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- fix:
	default:
		zap.L().Debug("watcher buffer full, dropping fix", zap.String("device_id", fix.DeviceID))
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

func wait(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classifyWaitErr(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewProviderError(domain.ErrCodeTimeout, eris.Wrap(err, op))
	case errors.Is(err, context.Canceled):
		return eris.Wrap(err, op)
	default:
		return domain.NewProviderError(domain.ErrCodePositionUnavailable, eris.Wrap(err, op))
	}
}
