package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenCellCore/internal/api/websocket"
	"github.com/KevinKickass/OpenCellCore/internal/plc"
)

// GET /api/v1/plc/status
func (s *Server) getPLCStatus(c *gin.Context) {
	status := s.lm.PLC().Status()
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/plc/io
func (s *Server) getPLCIO(c *gin.Context) {
	snapshot, err := s.lm.PLC().ReadAll()
	if err != nil {
		if errors.Is(err, plc.ErrNotConnected) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse("PLC_503", "PLC not connected", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("PLC_500", "IO read failed", err.Error()))
		return
	}

	// Live subscribers get the fresh sample as well
	s.wsHub.Broadcast(websocket.NewPLCIOMessage(snapshot))

	c.JSON(http.StatusOK, snapshot)
}

// POST /api/v1/plc/coil
func (s *Server) writeCoil(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
		Value   *bool  `json:"value" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PLC_400", "Invalid request body", err.Error()))
		return
	}

	link := s.lm.PLC()
	var err error
	if *req.Value {
		err = link.WriteCoil(req.Address)
	} else {
		err = link.ClearCoil(req.Address)
	}

	if err != nil {
		s.logger.Error("Coil write failed",
			zap.String("address", req.Address),
			zap.Bool("value", *req.Value),
			zap.Error(err))

		if errors.Is(err, plc.ErrNotConnected) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse("PLC_503", "PLC not connected", err.Error()))
			return
		}
		c.JSON(http.StatusBadRequest, NewErrorResponse("PLC_400", "Coil write failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coil written",
		"address": req.Address,
		"value":   *req.Value,
	})
}

// POST /api/v1/plc/reload
func (s *Server) reloadPLC(c *gin.Context) {
	var req struct {
		IP   string `json:"ip" binding:"required"`
		Port int    `json:"port"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PLC_400", "Invalid request body", err.Error()))
		return
	}

	s.lm.PLC().Reconfigure(req.IP, req.Port)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "PLC address updated",
		"ip":      req.IP,
	})
}
