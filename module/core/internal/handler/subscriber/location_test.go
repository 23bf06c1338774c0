package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nandanugg/region-check/module/core/domain"
)

type mockChecker struct {
	checkFn func(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error)
}

func (m *mockChecker) Check(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error) {
	return m.checkFn(ctx, fix)
}

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 0 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string {
	if f.topic == "" {
		return "/region/device/phone-1/location"
	}
	return f.topic
}
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

func newTestSubscriber(checker regionChecker) *LocationSubscriber {
	return &LocationSubscriber{checker: checker, timeout: time.Second}
}

func TestHandleMessage_Success(t *testing.T) {
	var checked *domain.Fix
	checker := &mockChecker{
		checkFn: func(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected a deadline on the check context")
			}
			checked = &fix
			return &domain.RegionCheck{ID: "c1", Fix: fix}, nil
		},
	}

	sub := newTestSubscriber(checker)

	msg := locationMessage{
		DeviceID:  "phone-1",
		Latitude:  30.9038,
		Longitude: 75.9009,
		Accuracy:  7,
		Timestamp: 1715003456,
	}
	payload, _ := json.Marshal(msg)
	sub.handleMessage(nil, &fakeMQTTMessage{payload: payload})

	if checked == nil {
		t.Fatal("expected Check to be called")
	}
	if checked.DeviceID != "phone-1" {
		t.Errorf("expected phone-1, got %s", checked.DeviceID)
	}
	if checked.Point.Lat != 30.9038 {
		t.Errorf("expected 30.9038, got %f", checked.Point.Lat)
	}
	if checked.AccuracyMeters != 7 {
		t.Errorf("expected 7, got %f", checked.AccuracyMeters)
	}
	expectedTs := time.Unix(1715003456, 0)
	if !checked.Timestamp.Equal(expectedTs) {
		t.Errorf("expected %v, got %v", expectedTs, checked.Timestamp)
	}
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	checker := &mockChecker{
		checkFn: func(_ context.Context, _ domain.Fix) (*domain.RegionCheck, error) {
			t.Fatal("Check should not be called")
			return nil, nil
		},
	}

	sub := newTestSubscriber(checker)
	sub.handleMessage(nil, &fakeMQTTMessage{payload: []byte("invalid")})
}

func TestHandleMessage_ValidationError(t *testing.T) {
	checker := &mockChecker{
		checkFn: func(_ context.Context, _ domain.Fix) (*domain.RegionCheck, error) {
			t.Fatal("Check should not be called")
			return nil, nil
		},
	}

	sub := newTestSubscriber(checker)

	msg := locationMessage{DeviceID: "phone-1", Latitude: 91, Longitude: 75.9, Timestamp: 1715003456}
	payload, _ := json.Marshal(msg)
	sub.handleMessage(nil, &fakeMQTTMessage{payload: payload})
}

func TestHandleMessage_DeviceFromTopic(t *testing.T) {
	var checked []string
	checker := &mockChecker{
		checkFn: func(_ context.Context, fix domain.Fix) (*domain.RegionCheck, error) {
			checked = append(checked, fix.DeviceID)
			return &domain.RegionCheck{Fix: fix}, nil
		},
	}
	sub := newTestSubscriber(checker)

	tests := []struct {
		name     string
		topic    string
		deviceID string
		want     []string
	}{
		{"payload omits device", "/region/device/phone-7/location", "", []string{"phone-7"}},
		{"payload matches topic", "/region/device/phone-7/location", "phone-7", []string{"phone-7"}},
		{"payload names another device", "/region/device/phone-7/location", "phone-8", nil},
		{"foreign topic", "/other/phone-7/location", "phone-7", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checked = nil
			payload, _ := json.Marshal(locationMessage{DeviceID: tt.deviceID, Latitude: 30.9, Longitude: 75.9, Timestamp: 1715003456})
			sub.handleMessage(nil, &fakeMQTTMessage{topic: tt.topic, payload: payload})

			if len(checked) != len(tt.want) || (len(tt.want) == 1 && checked[0] != tt.want[0]) {
				t.Errorf("checked %v, want %v", checked, tt.want)
			}
		})
	}
}

func TestHandleMessage_CheckErrorIsSwallowed(t *testing.T) {
	calls := 0
	checker := &mockChecker{
		checkFn: func(_ context.Context, _ domain.Fix) (*domain.RegionCheck, error) {
			calls++
			return nil, errors.New("db error")
		},
	}

	sub := newTestSubscriber(checker)

	msg := locationMessage{DeviceID: "phone-1", Latitude: 30.9, Longitude: 75.9, Timestamp: 1715003456}
	payload, _ := json.Marshal(msg)
	sub.handleMessage(nil, &fakeMQTTMessage{payload: payload})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestValidateLocationMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     locationMessage
		wantErr bool
	}{
		{"valid", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: 1}, false},
		{"valid bounds", locationMessage{DeviceID: "X", Latitude: 90, Longitude: -180, Timestamp: 1}, false},
		{"empty device_id", locationMessage{Latitude: 0, Longitude: 0, Timestamp: 1}, true},
		{"lat too low", locationMessage{DeviceID: "X", Latitude: -91, Longitude: 0, Timestamp: 1}, true},
		{"lat too high", locationMessage{DeviceID: "X", Latitude: 91, Longitude: 0, Timestamp: 1}, true},
		{"lon too low", locationMessage{DeviceID: "X", Latitude: 0, Longitude: -181, Timestamp: 1}, true},
		{"lon too high", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 181, Timestamp: 1}, true},
		{"negative accuracy", locationMessage{DeviceID: "X", Accuracy: -1, Timestamp: 1}, true},
		{"zero timestamp", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: 0}, true},
		{"negative timestamp", locationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLocationMessage(&tt.msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateLocationMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
