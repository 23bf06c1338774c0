package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nandanugg/region-check/module/core/domain"
)

const maxPhotoBytes = 10 << 20

type regionCheckService interface {
	Check(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error)
}

type locationService interface {
	GetCheck(ctx context.Context, checkID string) (*domain.RegionCheck, error)
	GetLatest(ctx context.Context, deviceID string) (*domain.RegionCheck, error)
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.RegionCheck, error)
	GetAllDevices(ctx context.Context) ([]domain.Device, error)
}

type locateService interface {
	Locate(ctx context.Context, deviceID string) (*domain.RegionCheck, error)
}

type photoService interface {
	Attach(ctx context.Context, checkID string, data []byte) (*domain.Photo, error)
	Get(ctx context.Context, checkID string) (*domain.Photo, error)
}

type checkRequest struct {
	DeviceID  string   `json:"device_id" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	Accuracy  float64  `json:"accuracy" binding:"min=0"`
	Timestamp int64    `json:"timestamp" binding:"min=0"`
}

type checkResponse struct {
	ID             string  `json:"id"`
	DeviceID       string  `json:"device_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Accuracy       float64 `json:"accuracy"`
	DistanceMeters float64 `json:"distance_meters"`
	Inside         bool    `json:"inside"`
	LowAccuracy    bool    `json:"low_accuracy"`
	Hint           string  `json:"hint,omitempty"`
	MapsURL        string  `json:"maps_url"`
	Timestamp      int64   `json:"timestamp"`
	CheckedAt      int64   `json:"checked_at"`
}

type locateErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

type RegionCheckHandler struct {
	checkSvc    regionCheckService
	locationSvc locationService
	locateSvc   locateService
	photoSvc    photoService
}

func NewRegionCheckHandler(checkSvc regionCheckService, locationSvc locationService, locateSvc locateService, photoSvc photoService) *RegionCheckHandler {
	return &RegionCheckHandler{
		checkSvc:    checkSvc,
		locationSvc: locationSvc,
		locateSvc:   locateSvc,
		photoSvc:    photoSvc,
	}
}

func (h *RegionCheckHandler) Register(r *gin.RouterGroup) {
	r.POST("/region-checks", h.CreateCheck)
	r.GET("/region-checks/:check_id", h.GetCheck)
	r.POST("/region-checks/:check_id/photo", h.UploadPhoto)
	r.GET("/region-checks/:check_id/photo", h.GetPhoto)
	r.GET("/devices", h.GetAllDevices)
	r.GET("/devices/:device_id/region-check", h.GetLatestCheck)
	r.GET("/devices/:device_id/history", h.GetHistory)
	r.POST("/devices/:device_id/locate", h.Locate)
}

func (h *RegionCheckHandler) CreateCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ts := time.Now()
	if req.Timestamp > 0 {
		ts = time.Unix(req.Timestamp, 0)
	}
	fix := domain.Fix{
		DeviceID:       req.DeviceID,
		Point:          domain.GeoPoint{Lat: *req.Latitude, Lon: *req.Longitude},
		AccuracyMeters: req.Accuracy,
		Timestamp:      ts,
	}

	check, err := h.checkSvc.Check(c.Request.Context(), fix)
	if err != nil {
		zap.L().Error("create region check", zap.String("device_id", req.DeviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check region"})
		return
	}

	c.JSON(http.StatusCreated, toCheckResponse(check))
}

func (h *RegionCheckHandler) GetCheck(c *gin.Context) {
	check, err := h.locationSvc.GetCheck(c.Request.Context(), c.Param("check_id"))
	if err != nil {
		h.notFoundOr500(c, err, "region check not found", "failed to fetch region check")
		return
	}
	c.JSON(http.StatusOK, toCheckResponse(check))
}

func (h *RegionCheckHandler) GetAllDevices(c *gin.Context) {
	devices, err := h.locationSvc.GetAllDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch devices"})
		return
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	c.JSON(http.StatusOK, devices)
}

func (h *RegionCheckHandler) GetLatestCheck(c *gin.Context) {
	check, err := h.locationSvc.GetLatest(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		h.notFoundOr500(c, err, "device not found", "failed to fetch region check")
		return
	}
	c.JSON(http.StatusOK, toCheckResponse(check))
}

func (h *RegionCheckHandler) GetHistory(c *gin.Context) {
	deviceID := c.Param("device_id")

	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start parameter"})
		return
	}

	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end parameter"})
		return
	}

	query := &domain.HistoryQuery{
		DeviceID: deviceID,
		Start:    time.Unix(start, 0),
		End:      time.Unix(end, 0),
	}

	checks, err := h.locationSvc.GetHistory(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}

	results := make([]checkResponse, len(checks))
	for i := range checks {
		results[i] = toCheckResponse(&checks[i])
	}
	c.JSON(http.StatusOK, results)
}

// Locate asks the device for a fresh fix. Failures are reported as
// retryable; the client retries by calling Locate again.
func (h *RegionCheckHandler) Locate(c *gin.Context) {
	deviceID := c.Param("device_id")

	check, err := h.locateSvc.Locate(c.Request.Context(), deviceID)
	if err != nil {
		if pe, ok := domain.AsProviderError(err); ok {
			zap.L().Info("locate failed", zap.String("device_id", deviceID), zap.String("code", string(pe.Code)), zap.Error(err))
			c.JSON(providerStatus(pe.Code), locateErrorResponse{
				Error:     pe.Message(),
				Code:      string(pe.Code),
				Retryable: true,
			})
			return
		}
		zap.L().Error("locate", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check region"})
		return
	}

	c.JSON(http.StatusOK, toCheckResponse(check))
}

func (h *RegionCheckHandler) UploadPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo is required"})
		return
	}
	if file.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo"})
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo"})
		return
	}

	photo, err := h.photoSvc.Attach(c.Request.Context(), c.Param("check_id"), data)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCheckNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "region check not found"})
		case errors.Is(err, domain.ErrNotAnImage):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "photo must be an image"})
		default:
			zap.L().Error("upload photo", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
		}
		return
	}

	c.JSON(http.StatusCreated, photo)
}

func (h *RegionCheckHandler) GetPhoto(c *gin.Context) {
	photo, err := h.photoSvc.Get(c.Request.Context(), c.Param("check_id"))
	if err != nil {
		if errors.Is(err, domain.ErrPhotoNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch photo"})
		return
	}
	c.Data(http.StatusOK, photo.ContentType, photo.Data)
}

func (h *RegionCheckHandler) notFoundOr500(c *gin.Context, err error, notFound, internal string) {
	if errors.Is(err, domain.ErrCheckNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": internal})
}

func providerStatus(code domain.ProviderErrorCode) int {
	switch code {
	case domain.ErrCodePermissionDenied:
		return http.StatusForbidden
	case domain.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case domain.ErrCodePositionUnavailable, domain.ErrCodeUnsupported:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func toCheckResponse(check *domain.RegionCheck) checkResponse {
	resp := checkResponse{
		ID:             check.ID,
		DeviceID:       check.Fix.DeviceID,
		Latitude:       check.Fix.Point.Lat,
		Longitude:      check.Fix.Point.Lon,
		Accuracy:       check.Fix.AccuracyMeters,
		DistanceMeters: check.Result.DistanceMeters,
		Inside:         check.Result.Inside,
		LowAccuracy:    check.LowAccuracy,
		MapsURL:        check.Fix.MapsURL(),
		Timestamp:      check.Fix.Timestamp.Unix(),
		CheckedAt:      check.CheckedAt.Unix(),
	}
	if check.LowAccuracy {
		resp.Hint = domain.LowAccuracyHint
	}
	return resp
}
