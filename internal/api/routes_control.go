package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/db"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/room"
	"github.com/skeld-project/skeld/internal/server"
)

// errorStatus maps a manager or room error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, server.ErrRoomNotFound),
		errors.Is(err, server.ErrPlayerNotFound),
		errors.Is(err, db.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, server.ErrRoomExists),
		errors.Is(err, server.ErrRoomFull),
		errors.Is(err, server.ErrGameNotStarted),
		errors.Is(err, room.ErrGameStarted),
		errors.Is(err, room.ErrRoomDestroyed):
		return http.StatusConflict
	case errors.Is(err, server.ErrTooManyRooms),
		errors.Is(err, server.ErrManagerStopping),
		errors.Is(err, server.ErrRoomBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, server.ErrUnknownPreset),
		errors.Is(err, server.ErrInvalidCode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("API: request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func roomCode(c *gin.Context) string {
	return strings.ToUpper(c.Param("code"))
}

type createRoomRequest struct {
	Code     string                `json:"code"`
	Preset   string                `json:"preset"`
	Settings *logic.OptionsPatch   `json:"settings"`
	Public   bool                  `json:"public"`
	Options  *protocol.GameOptions `json:"options"`
}

// handleListRooms returns every live room.
func (s *Server) handleListRooms(c *gin.Context) {
	rooms := s.manager.List()
	c.JSON(http.StatusOK, gin.H{
		"rooms":   rooms,
		"total":   len(rooms),
		"players": s.manager.PlayerCount(),
	})
}

// handleCreateRoom starts a new room.
func (s *Server) handleCreateRoom(c *gin.Context) {
	var body createRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	inst, err := s.manager.CreateRoom(server.CreateOptions{
		Code:     body.Code,
		Preset:   body.Preset,
		Settings: body.Options,
		Patch:    body.Settings,
		Public:   body.Public,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	log.Info().Str("code", inst.Code()).Str("client_ip", c.ClientIP()).Msg("API: room created")
	c.JSON(http.StatusCreated, inst.GetInfo())
}

// handleGetRoom returns one room.
func (s *Server) handleGetRoom(c *gin.Context) {
	inst, ok := s.manager.Get(roomCode(c))
	if !ok {
		respondError(c, server.ErrRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, inst.GetInfo())
}

// handleDestroyRoom closes a room and disconnects its clients.
func (s *Server) handleDestroyRoom(c *gin.Context) {
	code := roomCode(c)
	if err := s.manager.DestroyRoom(code); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("code", code).Msg("API: room destroyed")
	c.JSON(http.StatusOK, gin.H{"status": "destroyed", "code": code})
}

// handleGetPlayers returns the clients of a room.
func (s *Server) handleGetPlayers(c *gin.Context) {
	players, err := s.manager.Players(roomCode(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players, "total": len(players)})
}

// handleStartGame starts the game of a lobby.
func (s *Server) handleStartGame(c *gin.Context) {
	code := roomCode(c)
	if err := s.manager.StartGame(c.Request.Context(), code); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("code", code).Msg("API: game started")
	c.JSON(http.StatusOK, gin.H{"status": "starting", "code": code})
}

// handleEndGame ends the running game. The reason defaults to "none".
func (s *Server) handleEndGame(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if body.Reason == "" {
		body.Reason = protocol.GameOverNone.String()
	}
	reason, ok := protocol.ParseGameOverReason(body.Reason)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown reason", "reason": body.Reason})
		return
	}

	code := roomCode(c)
	if err := s.manager.EndGame(c.Request.Context(), code, reason); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("code", code).Str("reason", reason.String()).Msg("API: game ended")
	c.JSON(http.StatusOK, gin.H{"status": "ended", "code": code, "reason": reason.String()})
}

// handleSetPrivacy lists or unlists a room.
func (s *Server) handleSetPrivacy(c *gin.Context) {
	var body struct {
		Public *bool `json:"public" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	public, err := s.manager.SetPrivacy(c.Request.Context(), roomCode(c), *body.Public)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public": public})
}

// handlePatchSettings applies a partial options update to a lobby.
func (s *Server) handlePatchSettings(c *gin.Context) {
	var patch logic.OptionsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := s.manager.PatchSettings(c.Request.Context(), roomCode(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// handleApplyPreset replaces a lobby's options with a named preset.
func (s *Server) handleApplyPreset(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := s.manager.ApplyPreset(c.Request.Context(), roomCode(c), body.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preset": body.Name, "settings": settings})
}

// handleKickPlayer removes a client from a room.
func (s *Server) handleKickPlayer(c *gin.Context) {
	var body struct {
		ClientID *int32 `json:"client_id" binding:"required"`
		Banned   bool   `json:"banned"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := roomCode(c)
	if err := s.manager.KickPlayer(c.Request.Context(), code, *body.ClientID, body.Banned); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("code", code).Int32("client_id", *body.ClientID).Bool("banned", body.Banned).Msg("API: player kicked")
	c.JSON(http.StatusOK, gin.H{"status": "kicked", "client_id": *body.ClientID})
}

// handleGetPresets lists the option presets.
func (s *Server) handleGetPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": s.manager.Presets()})
}

// handlePlay upgrades to a player websocket.
func (s *Server) handlePlay(c *gin.Context) {
	if err := s.hub.ServePlayer(c.Writer, c.Request, roomCode(c)); err != nil {
		if c.Writer.Written() {
			log.Debug().Err(err).Msg("player connection ended")
			return
		}
		respondError(c, err)
	}
}

// handleSpectate upgrades to a read-only spectator websocket.
func (s *Server) handleSpectate(c *gin.Context) {
	code := roomCode(c)
	if _, ok := s.manager.Get(code); !ok {
		respondError(c, server.ErrRoomNotFound)
		return
	}
	if err := s.hub.ServeSpectator(c.Writer, c.Request, code); err != nil {
		log.Debug().Err(err).Str("code", code).Msg("spectator upgrade failed")
	}
}
