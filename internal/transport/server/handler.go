package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/metrics"
	eservice "github.com/wrongjunior/updaterelay/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	maxBodySize    = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Разрешаем подключения с любых источников, как и для HTTP API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RouterOptions задаёт параметры маршрутизации.
type RouterOptions struct {
	WSPath     string // основной путь WebSocket
	Production bool   // раздавать статические файлы клиента
	StaticDir  string // каталог собранного клиента
}

// Handler реализует HTTP API и WebSocket-канал поверх UpdateService.
type Handler struct {
	Updates *eservice.UpdateService
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	started time.Time
}

// NewHandler создаёт новый обработчик.
func NewHandler(us *eservice.UpdateService, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		Updates: us,
		Metrics: m,
		Logger:  logger,
		started: time.Now(),
	}
}

// SetupRouter настраивает маршруты через chi и возвращает http.Handler.
func SetupRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	r.Use(allowCORS)

	r.Post("/api/update", h.PostUpdate)
	r.Get("/api/updates", h.GetUpdates)
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	wsPath := opts.WSPath
	if wsPath == "" {
		wsPath = "/socket.io/"
	}
	r.Get(wsPath, h.ServeWS)
	r.Get("/ws/*", h.ServeWS)

	if opts.Production {
		r.Get("/*", spaHandler(opts.StaticDir))
		h.Logger.Info("Serving static client", "dir", opts.StaticDir)
	}
	return r
}

// PostUpdate принимает новое обновление (JSON или form-urlencoded).
func (h *Handler) PostUpdate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmit(w, r)
	if err != nil {
		h.Logger.Info("Invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update, err := h.Updates.Submit(req)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.Logger.Error("Submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "update": update})
}

func decodeSubmit(w http.ResponseWriter, r *http.Request) (domain.SubmitRequest, error) {
	var req domain.SubmitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Message = r.PostForm.Get("message")
		req.Type = domain.UpdateType(r.PostForm.Get("type"))
		req.Title = r.PostForm.Get("title")
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// GetUpdates возвращает текущую историю, новые первыми.
func (h *Handler) GetUpdates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Updates.Snapshot())
}

// Health сообщает о состоянии процесса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	overview := h.Updates.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(h.started).Seconds(),
		"timestamp":   time.Now().UnixMilli(),
		"subscribers": overview.Subscribers,
		"history":     overview.HistorySize,
	})
}

// ServeWS выполняет апгрейд соединения и регистрирует подписчика.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusBadRequest, "WebSocket endpoint requires WebSocket protocol")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("WebSocket upgrade error", "error", err)
		return
	}
	sub := h.Updates.Subscribe()
	h.Logger.Info("New client connected", "subscription", sub.ID, "remote", r.RemoteAddr)

	// Контекст управляет жизненным циклом соединения.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan domain.Envelope, 4)
	go h.writePump(ctx, conn, sub, replies)
	h.readPump(conn, sub, replies)
	cancel()
	h.Updates.Unsubscribe(sub)
	h.Logger.Info("Client disconnected", "subscription", sub.ID)
}

// readPump читает кадры клиента, отвечает на heartbeat и завершает соединение при ошибке.
func (h *Handler) readPump(conn *websocket.Conn, sub *eservice.Subscription, replies chan<- domain.Envelope) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.Logger.Warn("Unexpected close", "subscription", sub.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := domain.DecodeEnvelope(raw)
		if err != nil {
			h.Metrics.Malformed.Inc()
			h.Logger.Warn("Dropping malformed message", "subscription", sub.ID, "error", err)
			continue
		}
		switch env.Type {
		case domain.KindHeartbeat:
			hb := h.Updates.Keepalive(sub.ID, env.HeartbeatTimestamp())
			reply, err := domain.NewEnvelope(domain.KindHeartbeatResponse, hb)
			if err != nil {
				h.Logger.Error("Encode heartbeat response", "error", err)
				continue
			}
			select {
			case replies <- reply:
			default:
				h.Logger.Warn("Heartbeat response dropped", "subscription", sub.ID)
			}
		default:
			h.Logger.Debug("Ignoring message", "subscription", sub.ID, "type", env.Type)
		}
	}
}

// writePump является единственным писателем соединения. Пишет снимок истории, затем живые
// обновления, ответы на heartbeat и ping-сообщения.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sub *eservice.Subscription, replies <-chan domain.Envelope) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	initial := sub.Initial
	if initial == nil {
		initial = []domain.Update{}
	}
	if err := h.writeEnvelope(conn, domain.KindInitialUpdates, initial); err != nil {
		h.Logger.Error("Error sending initial updates", "subscription", sub.ID, "error", err)
		return
	}

	for {
		select {
		case update, ok := <-sub.Events():
			if !ok {
				// Подписка закрыта сервисом: клиент переподключится и получит свежий снимок.
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription closed"))
				return
			}
			if err := h.writeEnvelope(conn, domain.KindNewUpdate, update); err != nil {
				h.Logger.Error("Error writing update", "subscription", sub.ID, "error", err)
				return
			}
		case reply := <-replies:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				h.Logger.Error("Error writing heartbeat response", "subscription", sub.ID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Logger.Error("Ping error", "subscription", sub.ID, "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeEnvelope(conn *websocket.Conn, kind string, payload any) error {
	env, err := domain.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

// spaHandler раздаёт файлы из dir, а для неизвестных путей отдаёт index.html.
func spaHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	}
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
