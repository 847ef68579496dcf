package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
	"warmtransfer/pkg/logger"
)

// --- Calls ---

func (h Handlers) CreateCall(c *gin.Context) {
	var req calls.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Calls.Create(c.Request.Context(), req)
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) JoinCall(c *gin.Context) {
	var req calls.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room_id and participant_identity required"})
		return
	}

	res, err := h.Calls.Join(c.Request.Context(), req)
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) ListCalls(c *gin.Context) {
	filter := calls.ListFilter{AgentID: c.Query("agent_id")}

	if s := c.Query("status"); s != "" {
		status := calls.CallStatus(s)
		filter.Status = &status
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	list, err := h.Calls.List(c.Request.Context(), filter)
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list, "count": len(list)})
}

func (h Handlers) UpdateCall(c *gin.Context) {
	var req calls.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if err := h.Calls.Update(c.Request.Context(), c.Param("call_id"), req); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call updated"})
}

func (h Handlers) EndCall(c *gin.Context) {
	if err := h.Calls.End(c.Request.Context(), c.Param("call_id")); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call ended"})
}

func (h Handlers) callError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrInvalidStatus), errors.Is(err, calls.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("call operation failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Agents ---

func (h Handlers) CreateAgent(c *gin.Context) {
	var req agents.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name and email required"})
		return
	}

	agent, err := h.Agents.Create(c.Request.Context(), req)
	if err != nil {
		h.agentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h Handlers) GetAgent(c *gin.Context) {
	agent, err := h.Agents.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		h.agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h Handlers) ListAgents(c *gin.Context) {
	var status *agents.AgentStatus
	if s := c.Query("status"); s != "" {
		v := agents.AgentStatus(s)
		status = &v
	}

	list, err := h.Agents.List(c.Request.Context(), status)
	if err != nil {
		h.agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": list, "count": len(list)})
}

func (h Handlers) UpdateAgent(c *gin.Context) {
	var req agents.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	agent, err := h.Agents.Update(c.Request.Context(), c.Param("agent_id"), req)
	if err != nil {
		h.agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

type agentStatusRequest struct {
	Status agents.AgentStatus `json:"status" binding:"required"`
}

func (h Handlers) UpdateAgentStatus(c *gin.Context) {
	var req agentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status required"})
		return
	}

	agent, err := h.Agents.UpdateStatus(c.Request.Context(), c.Param("agent_id"), req.Status)
	if err != nil {
		h.agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h Handlers) agentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, agents.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, agents.ErrEmailTaken), errors.Is(err, agents.ErrAgentOnCall):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, agents.ErrInvalidStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("agent operation failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
