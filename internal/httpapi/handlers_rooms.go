package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"warmtransfer/internal/rooms"
	"warmtransfer/pkg/logger"
)

// --- Rooms ---

func (h Handlers) GetRoom(c *gin.Context) {
	stats, ok, err := rooms.Stats(c.Request.Context(), h.Rooms, c.Param("room_id"))
	if err != nil {
		logger.FromGin(c).Error("room lookup failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h Handlers) ListRoomParticipants(c *gin.Context) {
	parts, err := h.Rooms.ListParticipants(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		logger.FromGin(c).Error("participant listing failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": parts, "count": len(parts)})
}

func (h Handlers) RemoveRoomParticipant(c *gin.Context) {
	if err := h.Rooms.RemoveParticipant(c.Request.Context(), c.Param("room_id"), c.Param("identity")); err != nil {
		logger.FromGin(c).Error("participant removal failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "participant removed"})
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (h Handlers) MuteRoomParticipant(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if err := h.Rooms.MuteParticipant(c.Request.Context(), c.Param("room_id"), c.Param("identity"), req.Muted); err != nil {
		logger.FromGin(c).Error("participant mute failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "participant updated"})
}

func (h Handlers) CloseRoom(c *gin.Context) {
	if err := h.Rooms.CloseRoom(c.Request.Context(), c.Param("room_id")); err != nil {
		logger.FromGin(c).Error("room close failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "room closed"})
}
