package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"edutest-quiz-service/internal/app"
	"edutest-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UserDirectory registers users and serves the scoreboard.
type UserDirectory interface {
	EnsureUser(ctx context.Context, userID int64, fullName string) (domain.User, error)
	TopScores(ctx context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error)
}

// Handler upgrades HTTP requests to websockets and wires them into the quiz
// engine. All interactions for one connection run in the read loop, which
// preserves the per-user in-order dispatch the engine relies on.
type Handler struct {
	engine   *app.QuizEngine
	users    UserDirectory
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(engine *app.QuizEngine, users UserDirectory, logger *zap.Logger) *Handler {
	return &Handler{
		engine: engine,
		users:  users,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Topic        string `json:"topic"`
	N            int    `json:"n"`
	TimerMinutes int    `json:"timerMinutes"`
}

type optionPayload struct {
	Option string `json:"option"`
}

type matchPayload struct {
	Text string `json:"text"`
}

type leaderboardPayload struct {
	Topic string `json:"topic"`
	Limit int    `json:"limit"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type retryPayload struct {
	Message string `json:"message"`
}

const matchFormatHint = "could not parse the answer, expected a format like A-1,B-3,C-2"

// ServeWS handles one quiz conversation over a websocket.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}
	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	user, err := h.users.EnsureUser(ctx, userID, displayName)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	_ = conn.WriteJSON(outboundMessage[domain.User]{Type: "joined", Payload: user})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.handleMessage(ctx, conn, userID, inbound)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, userID int64, inbound inboundMessage) {
	switch inbound.Type {
	case "topics":
		topics, err := h.engine.Topics(ctx)
		if err != nil {
			h.writeError(conn, err)
			return
		}
		_ = conn.WriteJSON(outboundMessage[[]domain.TopicCount]{Type: "topics", Payload: topics})

	case "leaderboard":
		var payload leaderboardPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.writeError(conn, errors.New("invalid leaderboard payload"))
			return
		}
		if payload.Limit <= 0 {
			payload.Limit = 15
		}
		entries, err := h.users.TopScores(ctx, payload.Topic, payload.Limit)
		if err != nil {
			h.writeError(conn, err)
			return
		}
		_ = conn.WriteJSON(outboundMessage[[]domain.LeaderboardEntry]{Type: "leaderboard", Payload: entries})

	case "start":
		var payload startPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.writeError(conn, errors.New("invalid start payload"))
			return
		}
		directive, err := h.engine.StartSession(ctx, userID, payload.Topic, payload.N, payload.TimerMinutes)
		if err != nil {
			h.writeError(conn, err)
			return
		}
		_ = conn.WriteJSON(outboundMessage[domain.RenderDirective]{Type: "question", Payload: directive})

	case "answer", "toggle":
		var payload optionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.writeError(conn, errors.New("invalid answer payload"))
			return
		}
		sub := domain.OptionSubmission(payload.Option)
		if inbound.Type == "toggle" {
			sub = domain.ToggleSubmission(payload.Option)
		}
		h.submit(ctx, conn, userID, sub)

	case "confirm":
		h.submit(ctx, conn, userID, domain.ConfirmSubmission())

	case "abandon":
		h.engine.Abandon(userID)
		_ = conn.WriteJSON(outboundMessage[struct{}]{Type: "abandoned"})

	case "match":
		var payload matchPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.writeError(conn, errors.New("invalid match payload"))
			return
		}
		h.submit(ctx, conn, userID, domain.MatchSubmission(payload.Text))

	default:
		h.writeError(conn, errors.New("unsupported message type"))
	}
}

func (h *Handler) submit(ctx context.Context, conn *websocket.Conn, userID int64, sub domain.Submission) {
	advance, err := h.engine.SubmitAnswer(ctx, userID, sub)
	if err != nil {
		h.logger.Error("submit failed", zap.Int64("userID", userID), zap.Error(err))
		// A finished session still has a summary worth delivering.
		if advance.Kind != app.AdvanceFinished {
			h.writeError(conn, err)
			return
		}
	}

	switch advance.Kind {
	case app.AdvanceNone:
		// No active session or inapplicable interaction: stay silent.
	case app.AdvanceRender:
		_ = conn.WriteJSON(outboundMessage[*domain.RenderDirective]{Type: "question", Payload: advance.Directive})
	case app.AdvanceRetry:
		_ = conn.WriteJSON(outboundMessage[retryPayload]{Type: "retry", Payload: retryPayload{Message: matchFormatHint}})
	case app.AdvanceNext:
		_ = conn.WriteJSON(outboundMessage[*domain.Feedback]{Type: "feedback", Payload: advance.Feedback})
		_ = conn.WriteJSON(outboundMessage[*domain.RenderDirective]{Type: "question", Payload: advance.Directive})
	case app.AdvanceFinished:
		if advance.Feedback != nil {
			_ = conn.WriteJSON(outboundMessage[*domain.Feedback]{Type: "feedback", Payload: advance.Feedback})
		}
		_ = conn.WriteJSON(outboundMessage[*domain.Summary]{Type: "finished", Payload: advance.Summary})
	}
}

func (h *Handler) writeError(conn *websocket.Conn, err error) {
	message := err.Error()
	switch {
	case errors.Is(err, domain.ErrNoQuestions):
		message = "no questions available for this topic"
	case errors.Is(err, domain.ErrNotApproved):
		message = "access not yet approved by an administrator"
	}
	_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: message}})
}
