package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edutest-quiz-service/internal/app"
	"edutest-quiz-service/internal/domain"
)

// BotAPI is the slice of tgbotapi.BotAPI the handler needs; a fake stands in
// for it in tests.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// UserRepository manages registered users, approvals, and the scoreboard.
type UserRepository interface {
	EnsureUser(ctx context.Context, userID int64, fullName string) (domain.User, error)
	SetUserName(ctx context.Context, userID int64, name string) error
	SetApproved(ctx context.Context, userID int64, approved bool) error
	UserPoints(ctx context.Context, userID int64) (int, error)
	ListPending(ctx context.Context) ([]domain.User, error)
	TopScores(ctx context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error)
}

// Handler routes Telegram updates into the quiz engine.
type Handler struct {
	bot              BotAPI
	logger           *zap.Logger
	engine           *app.QuizEngine
	users            UserRepository
	admins           map[int64]bool
	defaultQuestions int

	mu           sync.Mutex
	awaitingName map[int64]bool
}

func NewHandler(bot BotAPI, logger *zap.Logger, engine *app.QuizEngine, users UserRepository, admins map[int64]bool, defaultQuestions int) *Handler {
	if defaultQuestions <= 0 {
		defaultQuestions = 10
	}
	return &Handler{
		bot:              bot,
		logger:           logger,
		engine:           engine,
		users:            users,
		admins:           admins,
		defaultQuestions: defaultQuestions,
		awaitingName:     make(map[int64]bool),
	}
}

// Run consumes updates until the context is canceled. Updates arrive on one
// channel and are handled sequentially, which preserves per-user ordering.
func (h *Handler) Run(ctx context.Context) error {
	h.logger.Info("telegram handler started")
	defer h.logger.Info("telegram handler stopped")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			h.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. Exported so webhook-style entrypoints
// and tests can feed updates directly.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		h.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		h.handleText(ctx, update.Message)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		h.cmdStart(ctx, msg)
	case "help":
		h.reply(userID, helpText)
	case "topics":
		h.cmdTopics(ctx, userID)
	case "test":
		h.cmdTest(ctx, msg)
	case "cancel":
		h.engine.Abandon(userID)
		h.reply(userID, "Quiz canceled. Start a new one with /test.")
	case "score":
		h.cmdScore(ctx, userID)
	case "leaderboard":
		h.cmdLeaderboard(ctx, msg)
	case "pending":
		h.cmdPending(ctx, userID)
	case "approve":
		h.cmdSetApproval(ctx, userID, msg.CommandArguments(), true)
	case "ban":
		h.cmdSetApproval(ctx, userID, msg.CommandArguments(), false)
	}
}

const helpText = "Commands:\n" +
	"/topics — available topics\n" +
	"/test — take a quiz (or `/test topic=Geometry n=10 time=8`)\n" +
	"/cancel — drop the current quiz\n" +
	"/score — my points\n" +
	"/leaderboard [topic=...] — scoreboard\n" +
	"Admin: /pending, /approve <id>, /ban <id>"

func (h *Handler) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	fullName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)

	user, err := h.users.EnsureUser(ctx, userID, fullName)
	if err != nil {
		h.logger.Error("ensure user", zap.Int64("userID", userID), zap.Error(err))
		h.reply(userID, "Something went wrong, please try again later.")
		return
	}

	if user.FullName == "" {
		h.setAwaitingName(userID, true)
		h.reply(userID, "Hi! Please send your first and last name in one message (e.g. `Alice Cooper`).")
		return
	}
	if user.Approved {
		h.reply(userID, "Welcome to EduTest 👋\n"+helpText)
		return
	}
	h.reply(userID, "Thanks! Please wait for an administrator to approve your access.")
}

func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	if h.isAwaitingName(userID) {
		name := strings.TrimSpace(msg.Text)
		if len(strings.Fields(name)) < 2 {
			h.reply(userID, "Please send your first and last name (two words).")
			return
		}
		if err := h.users.SetUserName(ctx, userID, name); err != nil {
			h.logger.Error("set user name", zap.Int64("userID", userID), zap.Error(err))
			h.reply(userID, "Something went wrong, please try again later.")
			return
		}
		h.setAwaitingName(userID, false)
		h.reply(userID, "Thanks! Please wait for an administrator to approve your access.")
		return
	}

	// Any other free text belongs to a pending match question, if there is one.
	h.submit(ctx, userID, 0, domain.MatchSubmission(msg.Text))
}

func (h *Handler) cmdTopics(ctx context.Context, userID int64) {
	topics, err := h.engine.Topics(ctx)
	if err != nil {
		h.logger.Error("list topics", zap.Error(err))
		h.reply(userID, "Could not load topics, please try again later.")
		return
	}
	if len(topics) == 0 {
		h.reply(userID, "No topics found. Add question banks to the bank directory.")
		return
	}
	lines := make([]string, 0, len(topics))
	for _, t := range topics {
		lines = append(lines, fmt.Sprintf("• %s — %d questions", t.Topic, t.Count))
	}
	h.reply(userID, "Available topics:\n"+strings.Join(lines, "\n"))
}

func (h *Handler) cmdTest(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	args := parseArgs(msg.CommandArguments())

	topics, err := h.engine.Topics(ctx)
	if err != nil {
		h.logger.Error("list topics", zap.Error(err))
		h.reply(userID, "Could not load topics, please try again later.")
		return
	}
	if len(topics) == 0 {
		h.reply(userID, "No topics available. Add question banks to the bank directory.")
		return
	}

	topic := args["topic"]
	if topic == "" {
		if len(topics) == 1 {
			topic = topics[0].Topic
		} else {
			h.sendTopicPicker(userID, topics)
			return
		}
	}
	known := false
	for _, t := range topics {
		if t.Topic == topic {
			known = true
			break
		}
	}
	if !known {
		h.reply(userID, fmt.Sprintf("Topic %q not found. Try /topics", topic))
		return
	}

	n := h.defaultQuestions
	if v, err := strconv.Atoi(args["n"]); err == nil {
		n = v
	}
	minutes := 0
	if v, err := strconv.Atoi(args["time"]); err == nil {
		minutes = v
	}
	h.startQuiz(ctx, userID, topic, n, minutes)
}

func (h *Handler) cmdScore(ctx context.Context, userID int64) {
	points, err := h.users.UserPoints(ctx, userID)
	if err != nil {
		h.logger.Error("user points", zap.Int64("userID", userID), zap.Error(err))
		h.reply(userID, "Could not load your score, please try again later.")
		return
	}
	h.reply(userID, fmt.Sprintf("Your points: %d", points))
}

func (h *Handler) cmdLeaderboard(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	topic := parseArgs(msg.CommandArguments())["topic"]

	entries, err := h.users.TopScores(ctx, topic, 15)
	if err != nil {
		h.logger.Error("top scores", zap.Error(err))
		h.reply(userID, "Could not load the leaderboard, please try again later.")
		return
	}
	if len(entries) == 0 {
		h.reply(userID, "No results yet.")
		return
	}
	title := "🏆 Leaderboard"
	if topic != "" {
		title += " — " + topic
	}
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%d. %s — %d", i+1, name, e.Points))
	}
	h.reply(userID, title+":\n"+strings.Join(lines, "\n"))
}

func (h *Handler) cmdPending(ctx context.Context, userID int64) {
	if !h.admins[userID] {
		return
	}
	pending, err := h.users.ListPending(ctx)
	if err != nil {
		h.logger.Error("list pending", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		h.reply(userID, "No pending approval requests.")
		return
	}
	lines := make([]string, 0, len(pending))
	for _, u := range pending {
		name := u.FullName
		if name == "" {
			name = "(no name)"
		}
		lines = append(lines, fmt.Sprintf("• %s — %d", name, u.ID))
	}
	h.reply(userID, "Pending requests:\n"+strings.Join(lines, "\n"))
}

func (h *Handler) cmdSetApproval(ctx context.Context, adminID int64, args string, approved bool) {
	if !h.admins[adminID] {
		return
	}
	target, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		usage := "/approve <id>"
		if !approved {
			usage = "/ban <id>"
		}
		h.reply(adminID, "Usage: "+usage)
		return
	}
	if err := h.users.SetApproved(ctx, target, approved); err != nil {
		h.logger.Error("set approved", zap.Int64("target", target), zap.Error(err))
		h.reply(adminID, fmt.Sprintf("Could not update user %d.", target))
		return
	}
	if approved {
		h.reply(adminID, fmt.Sprintf("User %d approved ✅", target))
	} else {
		h.reply(adminID, fmt.Sprintf("User %d disabled ❌", target))
	}
}

func (h *Handler) setAwaitingName(userID int64, awaiting bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if awaiting {
		h.awaitingName[userID] = true
	} else {
		delete(h.awaitingName, userID)
	}
}

func (h *Handler) isAwaitingName(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.awaitingName[userID]
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// parseArgs splits "topic=Geometry n=10 time=8" into a key/value map.
func parseArgs(text string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Fields(text) {
		if key, value, ok := strings.Cut(part, "="); ok {
			out[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
		}
	}
	return out
}
