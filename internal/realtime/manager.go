package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client представляет собой одно WebSocket соединение с идентификатором пользователя.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan []byte
}

// ConnectionManager управляет активными WebSocket соединениями канала flame_status.
type ConnectionManager struct {
	clients    map[string]*Client // userID -> Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewConnectionManager создает и запускает новый менеджер соединений.
func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	m := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("ConnectionManager"),
	}
	go m.run()
	return m
}

// run обрабатывает регистрацию и дерегистрацию клиентов.
func (m *ConnectionManager) run() {
	m.logger.Info("ConnectionManager started")
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			// Одно активное соединение на пользователя: старое закрываем.
			if oldClient, ok := m.clients[client.UserID]; ok {
				m.logger.Debug("Closing previous connection", zap.String("userID", client.UserID))
				close(oldClient.send)
				_ = oldClient.Conn.Close()
			}
			m.clients[client.UserID] = client
			m.mu.Unlock()
			m.logger.Info("Client registered", zap.String("userID", client.UserID))

		case client := <-m.unregister:
			m.mu.Lock()
			// Дерегистрация строго по указателю: readPump вытесненного
			// соединения не должен снять СВЕЖЕЕ соединение того же
			// пользователя, зарегистрированное после него.
			if current, ok := m.clients[client.UserID]; ok && current == client {
				delete(m.clients, client.UserID)
				close(client.send)
				m.mu.Unlock()
				m.logger.Info("Client unregistered", zap.String("userID", client.UserID))
				continue
			}
			m.mu.Unlock()
			m.logger.Debug("Stale unregister ignored", zap.String("userID", client.UserID))
		}
	}
}

// RegisterClient регистрирует нового клиента.
func (m *ConnectionManager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient удаляет клиента, если он все еще зарегистрирован.
func (m *ConnectionManager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// SendToUser отправляет сообщение конкретному пользователю.
// Возвращает true, если пользователь онлайн и сообщение поставлено в очередь.
func (m *ConnectionManager) SendToUser(userID string, message []byte) bool {
	m.mu.RLock()
	client, ok := m.clients[userID]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		// Очередь переполнена: клиент отключается или завис.
		m.logger.Warn("Send queue full, dropping message", zap.String("userID", userID))
		return false
	}
}
