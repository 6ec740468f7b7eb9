package realtime

import (
	"net/http"
	"time"

	"flame-server/internal/middleware"
	"flame-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Период отправки пингов. Должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения от клиента.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin валидируется CORS-слоем HTTP-сервера до апгрейда.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler обрабатывает запросы на установку WebSocket соединения
// канала статуса ритуала.
type WSHandler struct {
	manager  *ConnectionManager
	verifier middleware.TokenVerifier
	logger   *zap.Logger
}

// NewWSHandler создает новый обработчик WebSocket.
func NewWSHandler(manager *ConnectionManager, verifier middleware.TokenVerifier, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		manager:  manager,
		verifier: verifier,
		logger:   logger.Named("WSHandler"),
	}
}

// ServeWS апгрейдит HTTP запрос до WebSocket.
// Токен передается query-параметром 'token': браузерный WebSocket API
// не умеет ставить Authorization-заголовок.
func (h *WSHandler) ServeWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.CodeAuthRequired})
		return
	}

	claims, err := h.verifier(c.Request.Context(), tokenString)
	if err != nil {
		h.logger.Warn("WebSocket token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.CodeInvalidToken})
		return
	}
	userID := claims.UserID.String()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже записал ответ.
		h.logger.Error("Failed to upgrade connection", zap.String("userID", userID), zap.Error(err))
		return
	}

	h.logger.Info("WebSocket connection established", zap.String("userID", userID))

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, 256),
	}
	h.manager.RegisterClient(client)

	go client.writePump(h.logger.With(zap.String("userID", userID)))
	go client.readPump(h.manager, h.logger.With(zap.String("userID", userID)))
}

// readPump откачивает входящие сообщения. Канал flame_status односторонний,
// поэтому все сообщения от клиента игнорируются, но чтение нужно для
// обработки pong и детекции закрытия.
func (c *Client) readPump(manager *ConnectionManager, logger *zap.Logger) {
	defer func() {
		manager.UnregisterClient(c)
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump откачивает сообщения из канала send в соединение и шлет пинги.
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
