package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/auth"
	"warmtransfer/internal/calls"
	"warmtransfer/internal/rooms"
	"warmtransfer/internal/transfer"
	"warmtransfer/pkg/logger"
	"warmtransfer/pkg/utils"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Agents    *agents.Service
	Calls     *calls.Service
	Transfers *transfer.Orchestrator
	Rooms     rooms.Provider

	// Redis backs the cross-process initiation guard; nil disables it (tests,
	// single-replica deployments).
	Redis *redis.Client
	DB    *sql.DB
}

const initiationGuardTTL = 15 * time.Second

// --- Auth ---

type loginRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

// Login issues a JWT token pair for a registered agent.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email and role required"})
		return
	}

	agent, err := h.Agents.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown agent"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), agent.ID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken, "agent_id": agent.ID})
}

// Me echoes the authenticated identity.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// Health reports process and dependency liveness.
func (h Handlers) Health(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
			return
		}
		out["db"] = "ok"
	}
	c.JSON(http.StatusOK, out)
}

// --- Transfers ---

func (h Handlers) InitiateTransfer(c *gin.Context) {
	var req transfer.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id, from_agent_id, to_agent_id required"})
		return
	}

	ctx := c.Request.Context()

	// One in-flight initiation per call across replicas; the orchestrator's
	// per-call lock covers only this process.
	if h.Redis != nil {
		key := "transfer:initiate:" + req.CallID
		holder := uuid.NewString()
		ok, err := utils.AcquireInitiationGuard(ctx, h.Redis, key, holder, initiationGuardTTL)
		if err != nil {
			logger.FromGin(c).Warn("initiation guard unavailable", "call_id", req.CallID, "error", err)
		} else if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a transfer is already being initiated for this call"})
			return
		} else {
			defer func() {
				if err := utils.ReleaseInitiationGuard(ctx, h.Redis, key, holder); err != nil {
					logger.FromGin(c).Warn("initiation guard release failed", "call_id", req.CallID, "error", err)
				}
			}()
		}
	}

	res, err := h.Transfers.Initiate(ctx, req)
	if err != nil {
		h.transferError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) CompleteTransfer(c *gin.Context) {
	res, err := h.Transfers.Complete(c.Request.Context(), c.Param("transfer_id"))
	if err != nil {
		h.transferError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type cancelTransferRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) CancelTransfer(c *gin.Context) {
	var req cancelTransferRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by agent"
	}

	if err := h.Transfers.Cancel(c.Request.Context(), c.Param("transfer_id"), req.Reason); err != nil {
		h.transferError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transfer cancelled"})
}

func (h Handlers) MarkTransferInProgress(c *gin.Context) {
	if err := h.Transfers.MarkInProgress(c.Request.Context(), c.Param("transfer_id")); err != nil {
		h.transferError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transfer in progress"})
}

func (h Handlers) GetTransferStatus(c *gin.Context) {
	t, err := h.Transfers.Status(c.Request.Context(), c.Param("transfer_id"))
	if err != nil {
		h.transferError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h Handlers) ListActiveTransfers(c *gin.Context) {
	list := h.Transfers.ActiveTransfers()
	c.JSON(http.StatusOK, gin.H{"active_transfers": list, "count": len(list)})
}

func (h Handlers) GetAgentAvailability(c *gin.Context) {
	avail, err := h.Transfers.AgentAvailability(c.Request.Context())
	if err != nil {
		h.transferError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": avail, "count": len(avail)})
}

// transferError maps orchestration errors onto HTTP statuses: validation
// rejections are 400s with their stable reason string, not-found 404,
// already-resolved 409, anything else a generic 500.
func (h Handlers) transferError(c *gin.Context, err error) {
	switch {
	case transfer.IsRejection(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case transfer.IsNotFound(err):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, transfer.ErrAlreadyResolved):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("transfer operation failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
