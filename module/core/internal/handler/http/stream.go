package http

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/auth"
	"github.com/nandanugg/region-check/module/core/internal/provider"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type fixWatcher interface {
	Watch(ctx context.Context, deviceID string) (*provider.Watch, error)
}

type streamMessage struct {
	Type           string  `json:"type"`
	DeviceID       string  `json:"device_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Accuracy       float64 `json:"accuracy"`
	DistanceMeters float64 `json:"distance_meters"`
	Inside         bool    `json:"inside"`
	Timestamp      int64   `json:"timestamp"`
}

// StreamHandler pushes each live fix of a device, evaluated against the
// geofence, to a WebSocket client until either side goes away.
type StreamHandler struct {
	watcher  fixWatcher
	issuer   *auth.Issuer
	adminKey string
	geofence domain.GeofenceConfig
	evaluate EvaluateFunc
	origins  []string
}

// NewStreamHandler only issues tokens to callers presenting adminKey as a
// bearer credential; an empty adminKey disables issuance.
func NewStreamHandler(watcher fixWatcher, issuer *auth.Issuer, adminKey string, geofence domain.GeofenceConfig, evaluate EvaluateFunc, origins []string) *StreamHandler {
	return &StreamHandler{
		watcher:  watcher,
		issuer:   issuer,
		adminKey: adminKey,
		geofence: geofence,
		evaluate: evaluate,
		origins:  origins,
	}
}

func (h *StreamHandler) Register(r *gin.RouterGroup) {
	r.POST("/devices/:device_id/token", h.IssueToken)
	r.GET("/devices/:device_id/stream", h.Stream)
}

func (h *StreamHandler) IssueToken(c *gin.Context) {
	if !auth.HasKey(c.Request, h.adminKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tok, err := h.issuer.MakeToken(c.Param("device_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": tok})
}

func (h *StreamHandler) Stream(c *gin.Context) {
	deviceID := c.Param("device_id")

	claims, err := h.issuer.ParseRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if claims.DeviceID != deviceID {
		c.JSON(http.StatusForbidden, gin.H{"error": "device mismatch"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead cancels ctx once they disconnect.
	ctx := conn.CloseRead(c.Request.Context())

	watch, err := h.watcher.Watch(ctx, deviceID)
	if err != nil {
		zap.L().Error("watch device", zap.String("device_id", deviceID), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "watch failed")
		return
	}
	defer watch.Stop()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case fix, ok := <-watch.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := h.push(ctx, conn, fix); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) push(ctx context.Context, conn *websocket.Conn, fix domain.Fix) error {
	res := h.evaluate(fix.Point, h.geofence)
	msg := streamMessage{
		Type:           "region_check",
		DeviceID:       fix.DeviceID,
		Latitude:       fix.Point.Lat,
		Longitude:      fix.Point.Lon,
		Accuracy:       fix.AccuracyMeters,
		DistanceMeters: res.DistanceMeters,
		Inside:         res.Inside,
		Timestamp:      fix.Timestamp.Unix(),
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}
