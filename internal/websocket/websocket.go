package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Типы сообщений WebSocket
const (
	NewOfferType             = "NEW_OFFER"
	DeliveryStatusUpdateType = "DELIVERY_STATUS_UPDATE"
	NoDriverFoundType        = "NO_DRIVER_FOUND"
	DriverLocationUpdateType = "DRIVER_LOCATION_UPDATE"
)

// Message представляет формат сообщения WebSocket
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client представляет клиентское соединение WebSocket
type Client struct {
	conn   *websocket.Conn
	userID uint
}

// Manager управляет всеми подключениями WebSocket. Кроме обновлений в
// реальном времени он служит локальным запасным каналом уведомлений,
// когда push через FCM не доставляется
type Manager struct {
	clientsByUser map[uint]map[*websocket.Conn]bool
	register      chan *Client
	unregister    chan *Client
	mutex         sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clientsByUser: make(map[uint]map[*websocket.Conn]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
	}
}

// Start запускает цикл регистрации соединений
func (m *Manager) Start() {
	go func() {
		for {
			select {
			case client := <-m.register:
				m.mutex.Lock()
				if _, ok := m.clientsByUser[client.userID]; !ok {
					m.clientsByUser[client.userID] = make(map[*websocket.Conn]bool)
				}
				m.clientsByUser[client.userID][client.conn] = true
				m.mutex.Unlock()
				log.Printf("WebSocket: пользователь %d подключен", client.userID)

			case client := <-m.unregister:
				m.mutex.Lock()
				if conns, ok := m.clientsByUser[client.userID]; ok {
					if _, exists := conns[client.conn]; exists {
						delete(conns, client.conn)
						client.conn.Close()
					}
					if len(conns) == 0 {
						delete(m.clientsByUser, client.userID)
					}
				}
				m.mutex.Unlock()
				log.Printf("WebSocket: пользователь %d отключен", client.userID)
			}
		}
	}()
}

// NotifyUser отправляет сообщение всем подключениям конкретного пользователя
func (m *Manager) NotifyUser(userID uint, msgType string, payload interface{}) {
	m.mutex.RLock()
	connections, exists := m.clientsByUser[userID]
	if !exists || len(connections) == 0 {
		m.mutex.RUnlock()
		log.Printf("WebSocket: нет активных подключений для пользователя %d", userID)
		return
	}

	jsonMessage, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		m.mutex.RUnlock()
		log.Printf("WebSocket: ошибка при кодировании сообщения: %v", err)
		return
	}

	conns := make([]*websocket.Conn, 0, len(connections))
	for conn := range connections {
		conns = append(conns, conn)
	}
	m.mutex.RUnlock()

	for _, conn := range conns {
		go func(c *websocket.Conn) {
			if err := c.WriteMessage(websocket.TextMessage, jsonMessage); err != nil {
				log.Printf("WebSocket: ошибка при отправке пользователю %d: %v", userID, err)
				m.unregister <- &Client{conn: c, userID: userID}
			}
		}(conn)
	}
}

// SendDeliveryStatusUpdate уведомляет пользователя об изменении статуса доставки
func (m *Manager) SendDeliveryStatusUpdate(userID uint, deliveryID uint, status string) {
	m.NotifyUser(userID, DeliveryStatusUpdateType, map[string]interface{}{
		"delivery_id": deliveryID,
		"status":      status,
	})
}

// Handler обрабатывает подключения WebSocket. Подключаться могут только
// авторизованные пользователи: userID берется из JWT-контекста
func (m *Manager) Handler() gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // Разрешаем подключения с любых источников
		},
	}

	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		if userID == 0 {
			c.String(http.StatusUnauthorized, "Требуется авторизация")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket: ошибка обновления соединения: %v", err)
			return
		}

		client := &Client{conn: conn, userID: userID}
		m.register <- client

		go m.readLoop(client)
	}
}

// readLoop читает сообщения клиента; поддерживаются только ping
func (m *Manager) readLoop(client *Client) {
	defer func() {
		m.unregister <- client
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var data map[string]interface{}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}

		if msgType, ok := data["type"].(string); ok && msgType == "ping" {
			pong, _ := json.Marshal(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})
			if err := client.conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return
			}
		}
	}
}
