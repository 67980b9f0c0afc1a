package http_room

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	http_common "github.com/humanbelnik/feastfriends/core/internal/delivery/http/common"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	usecase_waitingroom "github.com/humanbelnik/feastfriends/core/internal/usecase/waitingroom"
)

type Controller struct {
	usecase *usecase_waitingroom.Usecase
	logger  *slog.Logger
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(usecase *usecase_waitingroom.Usecase, opts ...ControllerOption) *Controller {
	c := &Controller{
		usecase: usecase,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.POST("/join", c.join)
		rooms.GET("/:room_id/status", c.status)
		rooms.GET("/:room_id/members", c.members)
		rooms.DELETE("/:room_id/members/:user_id", c.leave)
	}
}

// GeoPointDTO
type GeoPointDTO struct {
	Lat float64 `json:"lat" binding:"min=-90,max=90"`
	Lon float64 `json:"lon" binding:"min=-180,max=180"`
}

// JoinRequestDTO carries optional preference overrides; missing values
// fall back to the stored profile, then to defaults.
type JoinRequestDTO struct {
	Cuisines []string     `json:"cuisines"`
	Budget   *float64     `json:"budget"`
	RadiusKm *float64     `json:"radius_km"`
	Location *GeoPointDTO `json:"location"`
}

// RoomResponseDTO
type RoomResponseDTO struct {
	RoomID    string    `json:"room_id"`
	Status    string    `json:"status"`
	Members   []string  `json:"members"`
	Cuisines  []string  `json:"cuisines"`
	AvgBudget float64   `json:"avg_budget"`
	AvgRadius float64   `json:"avg_radius"`
	Deadline  time.Time `json:"deadline"`
}

func toRoomDTO(room *model.Room) RoomResponseDTO {
	dto := RoomResponseDTO{
		RoomID:    room.ID.String(),
		Status:    room.Status,
		Members:   make([]string, 0, len(room.Members)),
		Cuisines:  room.Cuisines,
		AvgBudget: room.AvgBudget,
		AvgRadius: room.AvgRadius,
		Deadline:  room.Deadline,
	}
	for _, id := range room.Members {
		dto.Members = append(dto.Members, id.String())
	}
	return dto
}

func (c *Controller) userID(ctx *gin.Context) (uuid.UUID, bool) {
	userToken := ctx.GetHeader("X-user-token")
	if userToken == "" {
		ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
			Message: "X-user-token not found",
		})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userToken)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid user token format",
		})
		return uuid.Nil, false
	}
	return userID, true
}

func (c *Controller) join(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	var req JoinRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request format",
		})
		return
	}

	joinReq := model.JoinRequest{
		Cuisines: req.Cuisines,
		Budget:   req.Budget,
		RadiusKm: req.RadiusKm,
	}
	if req.Location != nil {
		joinReq.Location = &model.GeoPoint{Lat: req.Location.Lat, Lon: req.Location.Lon}
	}

	room, err := c.usecase.Join(ctx, userID, joinReq)
	if err != nil {
		c.logger.Error("failed to join waiting room",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		switch {
		case errors.Is(err, usecase_waitingroom.ErrAlreadyInGroup):
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "already in an active group",
			})
		case errors.Is(err, usecase_waitingroom.ErrVersionConflict):
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "conflicting update, retry",
			})
		default:
			ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
				Message: "internal error",
			})
		}
		return
	}

	ctx.JSON(http.StatusOK, toRoomDTO(room))
}

func (c *Controller) leave(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id format",
		})
		return
	}
	userID, err := uuid.Parse(ctx.Param("user_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid user id format",
		})
		return
	}

	if err := c.usecase.Leave(ctx, roomID, userID); err != nil {
		c.logger.Error("failed to leave waiting room",
			slog.String("room_id", roomID.String()),
			slog.String("error", err.Error()))
		if errors.Is(err, usecase_waitingroom.ErrVersionConflict) {
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "conflicting update, retry",
			})
			return
		}
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) status(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id format",
		})
		return
	}

	room, err := c.usecase.Status(ctx, roomID)
	if err != nil {
		if errors.Is(err, usecase_waitingroom.ErrResourceNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
			return
		}
		c.logger.Error("failed to get room status",
			slog.String("room_id", roomID.String()),
			slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusOK, toRoomDTO(room))
}

func (c *Controller) members(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id format",
		})
		return
	}

	members, err := c.usecase.Members(ctx, roomID)
	if err != nil {
		if errors.Is(err, usecase_waitingroom.ErrResourceNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
			return
		}
		c.logger.Error("failed to get room members",
			slog.String("room_id", roomID.String()),
			slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ids := make([]string, 0, len(members))
	for _, id := range members {
		ids = append(ids, id.String())
	}
	ctx.JSON(http.StatusOK, gin.H{"members": ids})
}
