package server

import (
	"github.com/labstack/echo/v4"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	// The hub answering the count query is the readiness signal; there are no
	// external backends to probe.
	return c.JSON(200, map[string]any{
		"status":          "ready",
		"active_sessions": s.hub.SessionCount(),
		"connections":     s.globalLimiter.Current(),
	})
}
