package engagement

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type profileResponse struct {
	ID           string       `json:"id"`
	Nickname     string       `json:"nickname"`
	Localization Localization `json:"localization"`
}

// Handler exposes the server's session. A nil session reports the
// feature as disabled.
type Handler struct {
	session *Session
}

func NewHandler(session *Session) *Handler {
	return &Handler{session: session}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	r.GET("/engagement/profile", h.GetProfile)
}

func (h *Handler) GetProfile(c *gin.Context) {
	if h.session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "engagement disabled"})
		return
	}
	p, err := h.session.Profile()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engagement session closed"})
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		ID:           p.ID,
		Nickname:     p.Nickname,
		Localization: h.session.Localization(),
	})
}
