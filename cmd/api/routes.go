package main

import (
	"github.com/gin-gonic/gin"

	"warmtransfer/internal/httpapi"
	"warmtransfer/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	v1.POST("/auth/login", h.Login)

	// Everything else requires a bearer token.
	api := v1.Group("")
	api.Use(authMW)
	{
		api.GET("/me", h.Me)

		// AGENT routes
		agentsGroup := api.Group("/agents")
		{
			agentsGroup.POST("", rbac.RequireAnyRole(rbac.RoleSupervisor), h.CreateAgent)
			agentsGroup.GET("", h.ListAgents)
			agentsGroup.GET("/:agent_id", h.GetAgent)
			agentsGroup.PUT("/:agent_id", rbac.RequireAnyRole(rbac.RoleSupervisor), h.UpdateAgent)
			agentsGroup.PUT("/:agent_id/status", rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor), h.UpdateAgentStatus)
		}

		// CALL routes
		callsGroup := api.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			callsGroup.POST("", h.CreateCall)
			callsGroup.POST("/join", h.JoinCall)
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/:call_id", h.GetCall)
			callsGroup.PUT("/:call_id", h.UpdateCall)
			callsGroup.DELETE("/:call_id", h.EndCall)
		}

		// TRANSFER routes
		transfers := api.Group("/transfers")
		transfers.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			transfers.POST("", h.InitiateTransfer)
			transfers.POST("/:transfer_id/complete", h.CompleteTransfer)
			transfers.POST("/:transfer_id/cancel", h.CancelTransfer)
			transfers.POST("/:transfer_id/progress", h.MarkTransferInProgress)
			transfers.GET("/:transfer_id", h.GetTransferStatus)
			transfers.GET("/active", h.ListActiveTransfers)
			transfers.GET("/agents/available", h.GetAgentAvailability)
		}

		// ROOM routes
		roomsGroup := api.Group("/rooms")
		roomsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			roomsGroup.GET("/:room_id", h.GetRoom)
			roomsGroup.GET("/:room_id/participants", h.ListRoomParticipants)
			roomsGroup.DELETE("/:room_id", rbac.RequireAnyRole(rbac.RoleSupervisor), h.CloseRoom)
			roomsGroup.DELETE("/:room_id/participants/:identity", rbac.RequireAnyRole(rbac.RoleSupervisor), h.RemoveRoomParticipant)
			roomsGroup.POST("/:room_id/participants/:identity/mute", h.MuteRoomParticipant)
		}
	}
}
