package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/config"
	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/utils"
)

// SocketHandler upgrades authenticated requests to realtime chat connections.
type SocketHandler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Hub      *realtime.Hub
	Relay    *realtime.Relay
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a new SocketHandler. Only the configured origin may connect
// from a browser; clients without an Origin header are accepted.
func NewSocketHandler(db *gorm.DB, cfg *config.Config, hub *realtime.Hub, relay *realtime.Relay) *SocketHandler {
	h := &SocketHandler{DB: db, Cfg: cfg, Hub: hub, Relay: relay}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || cfg.Origin == "*" || strings.EqualFold(origin, cfg.Origin)
		},
	}
	return h
}

// socketToken reads the access token from the "token" query parameter or the Authorization header.
func socketToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	return token
}

// Connect authenticates the handshake and hands the connection to the hub.
// GET /api/ws?token=<access token>
func (h *SocketHandler) Connect(c *gin.Context) {
	token := socketToken(c)
	if token == "" {
		utils.Unauthorized(c, "Authentication token required")
		return
	}

	claims, err := utils.ValidateToken(token, h.Cfg.JWTSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid token: "+err.Error())
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, "id = ?", claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}
	if !user.IsVerified {
		utils.Forbidden(c, "Email verification required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn().Err(err).Str("user_id", user.ID).Msg("websocket upgrade failed")
		return
	}

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("websocket connected")
	realtime.Serve(h.Hub, h.Relay, realtime.NewClient(conn, user.ID, user.Role))
}
