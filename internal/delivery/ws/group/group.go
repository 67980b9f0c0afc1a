package ws_group

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	http_common "github.com/humanbelnik/feastfriends/core/internal/delivery/http/common"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Controller struct {
	hub    *Hub
	logger *slog.Logger
}

func NewController(hub *Hub, logger *slog.Logger) *Controller {
	return &Controller{
		hub:    hub,
		logger: logger,
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	ws := router.Group("/ws")
	{
		ws.GET("/groups/:group_id", c.subscribe("group_id"))
		ws.GET("/rooms/:room_id", c.subscribe("room_id"))
	}
}

func (c *Controller) subscribe(param string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		topicID, err := uuid.Parse(ctx.Param(param))
		if err != nil {
			ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
				Message: "invalid id format",
			})
			return
		}

		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			c.logger.Error("websocket upgrade failed",
				slog.String("topic_id", topicID.String()),
				slog.String("error", err.Error()))
			return
		}

		client := &Client{
			Conn:    conn,
			Send:    make(chan []byte, 16),
			TopicID: topicID,
		}
		c.hub.RegisterClient(client)

		go c.hub.StartClientWriting(client)
		go c.hub.StartClientReading(client)
	}
}
