package http_voting

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	http_common "github.com/humanbelnik/feastfriends/core/internal/delivery/http/common"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	usecase_voting "github.com/humanbelnik/feastfriends/core/internal/usecase/voting"
)

type Controller struct {
	usecase *usecase_voting.Usecase
	logger  *slog.Logger
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(usecase *usecase_voting.Usecase, opts ...ControllerOption) *Controller {
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
	groups := router.Group("/groups")
	{
		groups.GET("/:group_id/status", c.status)
		groups.POST("/:group_id/voting", c.initializeVoting)
		groups.POST("/:group_id/voting/votes", c.submitVote)
		groups.POST("/:group_id/ballot/votes", c.submitListVote)
		groups.DELETE("/:group_id/members/:user_id", c.leave)
	}
}

// VoteRequestDTO uses a pointer so a missing "vote" field is rejected
// instead of defaulting to false.
type VoteRequestDTO struct {
	Vote *bool `json:"vote" binding:"required"`
}

// ListVoteRequestDTO
type ListVoteRequestDTO struct {
	RestaurantID string `json:"restaurant_id" binding:"required"`
}

// RestaurantDTO
type RestaurantDTO struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Cuisines []string `json:"cuisines"`
	AvgPrice float64  `json:"avg_price"`
	Rating   float64  `json:"rating"`
}

// RoundDTO
type RoundDTO struct {
	Restaurant RestaurantDTO `json:"restaurant"`
	Yes        int           `json:"yes"`
	No         int           `json:"no"`
	ExpiresAt  time.Time     `json:"expires_at"`
	Status     string        `json:"status"`
}

// GroupResponseDTO
type GroupResponseDTO struct {
	GroupID  string         `json:"group_id"`
	Status   string         `json:"status"`
	Mode     string         `json:"mode"`
	Members  []string       `json:"members"`
	Deadline time.Time      `json:"deadline"`
	Round    *RoundDTO      `json:"round,omitempty"`
	RoundNo  int            `json:"round_no,omitempty"`
	Tally    map[string]int `json:"tally,omitempty"`
	Selected *RestaurantDTO `json:"selected,omitempty"`
}

func toRestaurantDTO(r *model.Restaurant) *RestaurantDTO {
	if r == nil {
		return nil
	}
	return &RestaurantDTO{
		ID:       r.ID,
		Name:     r.Name,
		Cuisines: r.Cuisines,
		AvgPrice: r.AvgPrice,
		Rating:   r.Rating,
	}
}

func toGroupDTO(g *model.Group) GroupResponseDTO {
	dto := GroupResponseDTO{
		GroupID:  g.ID.String(),
		Status:   g.Status,
		Mode:     g.Mode,
		Members:  make([]string, 0, len(g.Members)),
		Deadline: g.Deadline,
		Selected: toRestaurantDTO(g.Selected),
	}
	for _, id := range g.Members {
		dto.Members = append(dto.Members, id.String())
	}
	if g.List != nil {
		dto.Tally = g.List.Tally
	}
	if g.Sequential != nil {
		dto.RoundNo = len(g.Sequential.History)
		if round := g.Sequential.Round; round != nil {
			dto.Round = &RoundDTO{
				Restaurant: *toRestaurantDTO(&round.Restaurant),
				Yes:        round.Yes,
				No:         round.No,
				ExpiresAt:  round.ExpiresAt,
				Status:     round.Status,
			}
		}
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

func (c *Controller) groupID(ctx *gin.Context) (uuid.UUID, bool) {
	groupID, err := uuid.Parse(ctx.Param("group_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid group id format",
		})
		return uuid.Nil, false
	}
	return groupID, true
}

func (c *Controller) respondError(ctx *gin.Context, op string, groupID uuid.UUID, err error) {
	switch {
	case errors.Is(err, usecase_voting.ErrResourceNotFound):
		ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
			Message: "not found",
		})
	case errors.Is(err, usecase_voting.ErrNotAMember):
		ctx.JSON(http.StatusForbidden, http_common.ErrorResponse{
			Message: "not a member of this group",
		})
	case errors.Is(err, usecase_voting.ErrNoActiveRound):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
			Message: "no active voting round",
		})
	case errors.Is(err, usecase_voting.ErrWrongMode):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
			Message: "operation does not match the voting mode",
		})
	case errors.Is(err, usecase_voting.ErrRestaurantSelected):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
			Message: "restaurant already selected",
		})
	case errors.Is(err, usecase_voting.ErrGroupClosed):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
			Message: "group is closed",
		})
	case errors.Is(err, usecase_voting.ErrVersionConflict):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
			Message: "conflicting update, retry",
		})
	case errors.Is(err, usecase_voting.ErrInvalidInput):
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request",
		})
	default:
		c.logger.Error(op,
			slog.String("group_id", groupID.String()),
			slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
	}
}

func (c *Controller) status(ctx *gin.Context) {
	groupID, ok := c.groupID(ctx)
	if !ok {
		return
	}

	group, err := c.usecase.Status(ctx, groupID)
	if err != nil {
		c.respondError(ctx, "failed to get group status", groupID, err)
		return
	}

	ctx.JSON(http.StatusOK, toGroupDTO(group))
}

func (c *Controller) initializeVoting(ctx *gin.Context) {
	groupID, ok := c.groupID(ctx)
	if !ok {
		return
	}

	group, err := c.usecase.InitializeSequential(ctx, groupID)
	if err != nil {
		c.respondError(ctx, "failed to initialize voting", groupID, err)
		return
	}

	ctx.JSON(http.StatusOK, toGroupDTO(group))
}

func (c *Controller) submitVote(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}
	groupID, ok := c.groupID(ctx)
	if !ok {
		return
	}

	var req VoteRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "vote must be a boolean",
		})
		return
	}

	group, err := c.usecase.SubmitVote(ctx, userID, groupID, *req.Vote)
	if err != nil {
		c.respondError(ctx, "failed to submit vote", groupID, err)
		return
	}

	ctx.JSON(http.StatusOK, toGroupDTO(group))
}

func (c *Controller) submitListVote(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}
	groupID, ok := c.groupID(ctx)
	if !ok {
		return
	}

	var req ListVoteRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "restaurant_id is required",
		})
		return
	}

	group, err := c.usecase.SubmitListVote(ctx, userID, groupID, req.RestaurantID)
	if err != nil {
		c.respondError(ctx, "failed to submit list vote", groupID, err)
		return
	}

	ctx.JSON(http.StatusOK, toGroupDTO(group))
}

func (c *Controller) leave(ctx *gin.Context) {
	groupID, ok := c.groupID(ctx)
	if !ok {
		return
	}
	userID, err := uuid.Parse(ctx.Param("user_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid user id format",
		})
		return
	}

	if err := c.usecase.LeaveGroup(ctx, userID, groupID); err != nil {
		c.respondError(ctx, "failed to leave group", groupID, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
