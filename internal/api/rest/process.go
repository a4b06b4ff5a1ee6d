package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenCellCore/internal/api/websocket"
	"github.com/KevinKickass/OpenCellCore/internal/process"
)

// GET /api/v1/process/status
func (s *Server) getProcessStatus(c *gin.Context) {
	status := s.lm.Orchestrator().Status()
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/process/config
func (s *Server) getProcessConfig(c *gin.Context) {
	configs := s.lm.Orchestrator().Configs()
	c.JSON(http.StatusOK, configs)
}

// POST /api/v1/process/state
func (s *Server) setSystemState(c *gin.Context) {
	var req struct {
		State string `json:"state" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PROCESS_400", "Invalid request body", err.Error()))
		return
	}

	state, err := process.ParseSystemState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PROCESS_400", "Invalid state", err.Error()))
		return
	}

	previous := s.lm.Orchestrator().Status().SystemState

	if err := s.lm.Orchestrator().SetSystemState(state); err != nil {
		s.logger.Error("State change failed",
			zap.String("state", req.State),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse("PROCESS_500", "State change failed", err.Error()))
		return
	}

	s.wsHub.Broadcast(websocket.NewSystemStateMessage(state.String(), previous))

	c.JSON(http.StatusOK, gin.H{
		"message": "State changed",
		"state":   state.String(),
		"status":  s.lm.Orchestrator().Status(),
	})
}

// POST /api/v1/process/request-part
func (s *Server) requestPart(c *gin.Context) {
	s.lm.Orchestrator().RequestPart()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Part requested",
	})
}

// POST /api/v1/process/part-delivered/consume
func (s *Server) consumePartDelivered(c *gin.Context) {
	delivered := s.lm.Orchestrator().ConsumePartDelivered()

	c.JSON(http.StatusOK, gin.H{
		"delivered": delivered,
	})
}
