package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/util"
)

// Version is the server version reported by the API.
const Version = "0.4.0"

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "skeld",
		"version": Version,
	})
}

// handleGetServerInfo returns basic server information.
func (s *Server) handleGetServerInfo(c *gin.Context) {
	roomCfg := s.cfg.GetRoom()
	sysInfo := util.GetSystemInfo()

	c.JSON(http.StatusOK, gin.H{
		"version":       Version,
		"rooms":         s.manager.RoomCount(),
		"max_rooms":     roomCfg.MaxRooms,
		"players":       s.manager.PlayerCount(),
		"tick_rate_hz":  roomCfg.TickRateHz,
		"authoritative": roomCfg.Authoritative,
		"platform":      sysInfo.OS,
		"cpu_cores":     sysInfo.CPUCores,
	})
}

// publicRoom is a listed lobby as shown to players.
type publicRoom struct {
	Code        string `json:"code"`
	Map         string `json:"map"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	Impostors   int    `json:"impostors"`
}

// handleListPublicRooms returns public rooms that are still in the lobby.
func (s *Server) handleListPublicRooms(c *gin.Context) {
	rooms := make([]publicRoom, 0)
	for _, info := range s.manager.List() {
		st := info.State
		if !st.Public || st.Phase != events.RoomPhaseLobby || st.PlayerCount >= st.MaxPlayers {
			continue
		}
		rooms = append(rooms, publicRoom{
			Code:        info.Code,
			Map:         st.Map,
			PlayerCount: st.PlayerCount,
			MaxPlayers:  st.MaxPlayers,
			Impostors:   st.Impostors,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
