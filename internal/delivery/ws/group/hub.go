package ws_group

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/humanbelnik/feastfriends/core/internal/model"
)

const (
	EventRoomUpdate         = "ROOM_UPDATE"
	EventMemberJoined       = "MEMBER_JOINED"
	EventMemberLeft         = "MEMBER_LEFT"
	EventGroupReady         = "GROUP_READY"
	EventNewVotingRound     = "NEW_VOTING_ROUND"
	EventRestaurantSelected = "RESTAURANT_SELECTED"
	EventGroupExpired       = "GROUP_EXPIRED"
)

type Event struct {
	Type    string                 `json:"type"`
	TopicID string                 `json:"topic_id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type Client struct {
	Conn    *websocket.Conn
	Send    chan []byte
	TopicID uuid.UUID
}

// Hub fans out room and group events to subscribed websocket clients.
// Topics are keyed by room or group id; the two never collide.
type Hub struct {
	mu sync.RWMutex

	topics map[uuid.UUID]map[*Client]bool

	logger *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[uuid.UUID]map[*Client]bool),
		logger: logger,
	}
}

func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.topics[client.TopicID]; !ok {
		h.topics[client.TopicID] = make(map[*Client]bool)
	}
	h.topics[client.TopicID][client] = true

	h.logger.Info("client registered", "topic_id", client.TopicID)
}

func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topic, ok := h.topics[client.TopicID]; ok {
		delete(topic, client)
		if len(topic) == 0 {
			delete(h.topics, client.TopicID)
		}
	}
	h.logger.Info("client unregistered", "topic_id", client.TopicID)
}

func (h *Hub) Broadcast(topicID uuid.UUID, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event.TopicID = topicID.String()
	raw, _ := json.Marshal(event)

	if clients, ok := h.topics[topicID]; ok {
		for client := range clients {
			select {
			case client.Send <- raw:
			default:
				close(client.Send)
				delete(h.topics[topicID], client)
			}
		}
	}
}

func (h *Hub) StartClientReading(client *Client) {
	defer func() {
		h.RemoveClient(client)
		client.Conn.Close()
	}()

	for {
		_, _, err := client.Conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (h *Hub) StartClientWriting(client *Client) {
	defer client.Conn.Close()

	for message := range client.Send {
		err := client.Conn.WriteMessage(websocket.TextMessage, message)
		if err != nil {
			break
		}
	}
}

func (h *Hub) NotifyRoomUpdate(roomID uuid.UUID, members int) {
	h.Broadcast(roomID, Event{
		Type: EventRoomUpdate,
		Payload: map[string]interface{}{
			"members_count": members,
		},
	})
}

func (h *Hub) NotifyMemberJoined(roomID uuid.UUID, userID uuid.UUID) {
	h.Broadcast(roomID, Event{
		Type: EventMemberJoined,
		Payload: map[string]interface{}{
			"user_id": userID.String(),
		},
	})
}

func (h *Hub) NotifyMemberLeft(topicID uuid.UUID, userID uuid.UUID) {
	h.Broadcast(topicID, Event{
		Type: EventMemberLeft,
		Payload: map[string]interface{}{
			"user_id": userID.String(),
		},
	})
}

func (h *Hub) NotifyGroupReady(groupID uuid.UUID, members []uuid.UUID) {
	ids := make([]string, 0, len(members))
	for _, id := range members {
		ids = append(ids, id.String())
	}
	h.Broadcast(groupID, Event{
		Type: EventGroupReady,
		Payload: map[string]interface{}{
			"group_id": groupID.String(),
			"members":  ids,
		},
	})
}

func (h *Hub) NotifyNewVotingRound(groupID uuid.UUID, restaurant model.Restaurant, roundNumber int) {
	h.Broadcast(groupID, Event{
		Type: EventNewVotingRound,
		Payload: map[string]interface{}{
			"round": roundNumber,
			"restaurant": map[string]interface{}{
				"id":       restaurant.ID,
				"name":     restaurant.Name,
				"cuisines": restaurant.Cuisines,
				"rating":   restaurant.Rating,
			},
		},
	})
}

func (h *Hub) NotifyRestaurantSelected(groupID uuid.UUID, restaurant model.Restaurant) {
	h.Broadcast(groupID, Event{
		Type: EventRestaurantSelected,
		Payload: map[string]interface{}{
			"restaurant": map[string]interface{}{
				"id":       restaurant.ID,
				"name":     restaurant.Name,
				"cuisines": restaurant.Cuisines,
				"rating":   restaurant.Rating,
			},
			"timestamp": time.Now().Unix(),
		},
	})
}

func (h *Hub) NotifyGroupExpired(groupID uuid.UUID) {
	h.Broadcast(groupID, Event{
		Type: EventGroupExpired,
		Payload: map[string]interface{}{
			"timestamp": time.Now().Unix(),
		},
	})
}
