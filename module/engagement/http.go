package engagement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const DefaultEndpoint = "https://cf-blast.livelikecdn.com/api/v1/"

// HTTPAdapter creates anonymous profiles over the engagement REST API.
// A profile found in storage is reused instead of creating a new one.
type HTTPAdapter struct {
	client *http.Client
}

func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPAdapter{client: client}
}

var _ Adapter = (*HTTPAdapter)(nil)

func (a *HTTPAdapter) Init(ctx context.Context, opts Options) (*Session, error) {
	if opts.ClientID == "" {
		return nil, eris.New("engagement: client id is required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	storage := ChooseStorage(opts.Storage)

	if p, err := storage.Get(); err == nil && p.AccessToken != "" {
		zap.L().Debug("engagement profile restored", zap.String("profile_id", p.ID))
		return newSession(p, storage), nil
	}

	p, err := a.createProfile(ctx, endpoint+"applications/"+opts.ClientID+"/profile/")
	if err != nil {
		return nil, err
	}
	if err := storage.Set(p); err != nil {
		return nil, eris.Wrap(err, "engagement: store profile")
	}
	zap.L().Info("engagement profile created", zap.String("profile_id", p.ID), zap.String("nickname", p.Nickname))
	return newSession(p, storage), nil
}

func (a *HTTPAdapter) createProfile(ctx context.Context, url string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Profile{}, eris.Wrap(err, "engagement: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Profile{}, eris.Wrap(err, "engagement: create profile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Profile{}, eris.Errorf("engagement: create profile: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Profile{}, eris.Wrap(err, "engagement: decode profile")
	}
	if p.ID == "" || p.AccessToken == "" {
		return Profile{}, eris.New("engagement: incomplete profile in response")
	}
	return p, nil
}
