package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/events"
)

// handleGetConfig returns the full current configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	app := s.cfg.GetApplicationData()
	app.Security.APIToken = ""
	c.JSON(http.StatusOK, gin.H{
		"room":             s.cfg.GetRoom(),
		"application_data": app,
	})
}

// configSection binds one configuration section to the generic update
// handler.
type configSection struct {
	name     string
	update   func(key string, value any) error
	snapshot func() any
	restore  func(prev any)
}

func (s *Server) roomSection() configSection {
	return configSection{
		name:     "room",
		update:   s.cfg.UpdateRoomField,
		snapshot: func() any { return s.cfg.GetRoom() },
		restore:  func(prev any) { s.cfg.SetRoom(prev.(config.RoomConfig)) },
	}
}

func (s *Server) appSection() configSection {
	return configSection{
		name:     "application_data",
		update:   s.cfg.UpdateAppField,
		snapshot: func() any { return s.cfg.GetApplicationData() },
		restore:  func(prev any) { s.cfg.SetApplicationData(prev.(config.ApplicationData)) },
	}
}

// handleSetField updates one setting of a section, validates the result and
// saves it. Room settings apply to rooms created afterwards; application
// settings apply after a restart.
func (s *Server) handleSetField(section configSection) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Value interface{} `json:"value"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		key := c.Param("key")
		previous := section.snapshot()
		if err := section.update(key, body.Value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if result := config.Validate(s.cfg); !result.IsValid() {
			section.restore(previous)
			details := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				details = append(details, e.Error())
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration", "details": details})
			return
		}
		if err := s.cfg.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
			return
		}

		if s.eventBus != nil {
			s.eventBus.Emit(c.Request.Context(), events.Event{
				Type:   events.EventConfigChanged,
				Source: "api",
				Payload: events.ConfigChangedPayload{
					Section: section.name,
					Key:     key,
					Value:   body.Value,
				},
			})
		}

		log.Info().Str("section", section.name).Str("key", key).Msg("API: config updated")
		c.JSON(http.StatusOK, gin.H{
			"status":           "updated",
			"section":          section.name,
			"key":              key,
			"restart_required": section.name != "room",
		})
	}
}
