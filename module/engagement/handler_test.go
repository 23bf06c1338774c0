package engagement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveProfile(s *Session) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(s).Register(r.Group(""))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/engagement/profile", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetProfile(t *testing.T) {
	s := newSession(Profile{ID: "p-1", Nickname: "Brave Otter", AccessToken: "secret"}, NewMemoryStorage())

	w := serveProfile(s)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")

	var resp profileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "p-1", resp.ID)
	assert.Equal(t, "SUBMIT", resp.Localization["en"]["widget.quiz.voteButton.label"])
}

func TestGetProfile_Disabled(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serveProfile(nil).Code)
}

func TestGetProfile_Closed(t *testing.T) {
	s := newSession(Profile{ID: "p-1"}, NewMemoryStorage())
	require.NoError(t, s.Close())
	assert.Equal(t, http.StatusServiceUnavailable, serveProfile(s).Code)
}
