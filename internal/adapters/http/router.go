package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jspiers/huddle/internal/adapters/signal"
	"github.com/jspiers/huddle/internal/config"
	"github.com/jspiers/huddle/internal/directory"
	"github.com/jspiers/huddle/internal/domain"
)

func SetupRouter(ctx context.Context, cfg *config.Config, dir *directory.Store, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		rooms, participants := dir.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"activeRooms":       rooms,
			"totalParticipants": participants,
		})
	})

	// Connectivity configuration: an ordered list of STUN/TURN
	// descriptors, consumed by clients before any peer link exists.
	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": cfg.ICEServers})
	})

	api.GET("/room/:roomId", func(c *gin.Context) {
		roomID := domain.RoomID(c.Param("roomId"))
		room, count, ok := dir.RoomInfo(roomID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":               room.ID,
			"name":             room.DisplayName,
			"participantCount": count,
			"maxParticipants":  room.MaxParticipants,
			"createdAt":        room.CreatedAt,
		})
	})

	api.POST("/room", func(c *gin.Context) {
		var req struct {
			RoomName string `json:"roomName" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid roomName"})
			return
		}
		roomID := domain.RoomID("room-" + uuid.NewString()[:9])
		room := dir.CreateRoom(roomID, req.RoomName)
		c.JSON(http.StatusOK, gin.H{
			"roomId":   room.ID,
			"roomName": room.DisplayName,
			"joinUrl":  fmt.Sprintf("%s://%s/?room=%s", scheme(c.Request), c.Request.Host, room.ID),
		})
	})

	return r
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
