package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skeld-project/skeld/internal/server"
	"github.com/skeld-project/skeld/internal/util"
)

// handleGetLag returns long-tick data for every room.
func (s *Server) handleGetLag(c *gin.Context) {
	lag := s.manager.LagMonitor()
	c.JSON(http.StatusOK, gin.H{
		"rooms":  lag.GetAllRoomData(),
		"alerts": lag.CheckThresholds(),
	})
}

// handleGetSystem returns host and process resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	resp := gin.H{
		"system":  util.GetSystemInfo(),
		"rooms":   s.manager.RoomCount(),
		"players": s.manager.PlayerCount(),
	}
	sample := util.SampleResources()
	if sample.CPUPercent != nil {
		resp["cpu_percent"] = *sample.CPUPercent
	}
	if sample.Memory != nil {
		resp["memory"] = sample.Memory
	}
	if sample.Process != nil {
		resp["process"] = sample.Process
	}
	if s.hub != nil {
		resp["connections"] = s.hub.Registry().Count()
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetReplay serves the recording of a live room for download.
func (s *Server) handleGetReplay(c *gin.Context) {
	inst, ok := s.manager.Get(roomCode(c))
	if !ok {
		respondError(c, server.ErrRoomNotFound)
		return
	}

	path := inst.RecordingPath()
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "room is not recorded"})
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "replay not found"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(path))
	c.File(path)
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "match storage is disabled"})
		return false
	}
	return true
}

// handleListMatches returns stored matches, newest first.
func (s *Server) handleListMatches(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	matches, err := s.store.ListMatches(limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

// handleGetMatch returns one match with its roster, meetings and kills.
func (s *Server) handleGetMatch(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	match, err := s.store.GetMatch(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

// handleGetStats aggregates the stored matches.
func (s *Server) handleGetStats(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleGetAlerts returns unacknowledged alerts.
func (s *Server) handleGetAlerts(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	alerts, err := s.store.GetUnacknowledgedAlerts()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// handleAckAlert acknowledges an alert.
func (s *Server) handleAckAlert(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	if err := s.store.AcknowledgeAlert(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged", "id": id})
}

// handleGetLogEntries returns recent log entries.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	entries, err := readRecentLogEntries(s.cfg.GetApplicationData().Logging.Directory, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// logEntry is one parsed zerolog line.
type logEntry struct {
	Timestamp string                 `json:"timestamp,omitempty"`
	Level     string                 `json:"level,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count lines of the newest log file
// in logDir.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	dirEntries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, err
	}

	var latest string
	var latestMod int64
	for _, e := range dirEntries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest, latestMod = filepath.Join(logDir, e.Name()), mod
		}
	}
	if latest == "" {
		return []logEntry{}, nil
	}

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}

	result := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, parseLogLine(line))
		}
	}
	return result, nil
}

func parseLogLine(line string) logEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return logEntry{Message: line}
	}

	entry := logEntry{}
	for k, v := range raw {
		switch k {
		case "time":
			entry.Timestamp = fmt.Sprint(v)
		case "level":
			entry.Level = fmt.Sprint(v)
		case "message":
			entry.Message = fmt.Sprint(v)
		case "caller":
		default:
			if entry.Fields == nil {
				entry.Fields = make(map[string]interface{})
			}
			entry.Fields[k] = v
		}
	}
	return entry
}
