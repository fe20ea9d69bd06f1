package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edutest-quiz-service/internal/app"
	"edutest-quiz-service/internal/domain"
)

// Callback data prefixes. Option payloads carry the option text verbatim,
// so answers compare against canonical strings without an extra lookup.
const (
	cbTopicPrefix  = "choose_topic::"
	cbAnswerPrefix = "ans::"
	cbMultiPrefix  = "multi::"
	cbConfirm      = "multi::confirm"
)

const matchFormatHint = "Could not parse the answer. Format: A-1,B-3,C-2 ..."

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Ack first so the button stops spinning.
	if _, err := h.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		h.logger.Debug("callback ack failed", zap.Error(err))
	}
	userID := cq.From.ID
	data := cq.Data

	switch {
	case strings.HasPrefix(data, cbTopicPrefix):
		topic := strings.TrimPrefix(data, cbTopicPrefix)
		h.startQuiz(ctx, userID, topic, h.defaultQuestions, 0)
	case data == cbConfirm:
		h.submit(ctx, userID, 0, domain.ConfirmSubmission())
	case strings.HasPrefix(data, cbMultiPrefix):
		option := strings.TrimPrefix(data, cbMultiPrefix)
		messageID := 0
		if cq.Message != nil {
			messageID = cq.Message.MessageID
		}
		h.submit(ctx, userID, messageID, domain.ToggleSubmission(option))
	case strings.HasPrefix(data, cbAnswerPrefix):
		h.submit(ctx, userID, 0, domain.OptionSubmission(strings.TrimPrefix(data, cbAnswerPrefix)))
	}
}

func (h *Handler) sendTopicPicker(userID int64, topics []domain.TopicCount) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.Topic, cbTopicPrefix+t.Topic),
		))
	}
	msg := tgbotapi.NewMessage(userID, "Choose a topic:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Warn("send failed", zap.Int64("chatID", userID), zap.Error(err))
	}
}

func (h *Handler) startQuiz(ctx context.Context, userID int64, topic string, n, minutes int) {
	directive, err := h.engine.StartSession(ctx, userID, topic, n, minutes)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotApproved):
			h.reply(userID, "Access not yet approved by an administrator.")
		case errors.Is(err, domain.ErrNoQuestions):
			h.reply(userID, "The chosen topic has no questions.")
		default:
			h.logger.Error("start session", zap.Int64("userID", userID), zap.Error(err))
			h.reply(userID, "Could not start the quiz, please try again later.")
		}
		return
	}

	intro := fmt.Sprintf("Starting a quiz on %s (%d questions)", topic, directive.Total)
	if minutes > 0 {
		intro += fmt.Sprintf(", time limit %d min", minutes)
	}
	h.reply(userID, intro+". Good luck!")
	h.sendQuestion(userID, directive)
}

// submit forwards one interaction to the engine and renders the outcome.
// toggleMessageID, when non-zero, is the inline-keyboard message to edit in
// place on a multi toggle.
func (h *Handler) submit(ctx context.Context, userID int64, toggleMessageID int, sub domain.Submission) {
	advance, err := h.engine.SubmitAnswer(ctx, userID, sub)
	if err != nil && advance.Kind != app.AdvanceFinished {
		h.logger.Error("submit answer", zap.Int64("userID", userID), zap.Error(err))
		h.reply(userID, "Something went wrong, please try again later.")
		return
	}
	if err != nil {
		// The session is over either way; log and still show the result.
		h.logger.Error("finalize session", zap.Int64("userID", userID), zap.Error(err))
	}

	switch advance.Kind {
	case app.AdvanceNone:
		// No active session or a stale button press: nothing to say.
	case app.AdvanceRetry:
		h.reply(userID, matchFormatHint)
	case app.AdvanceRender:
		h.updateMultiKeyboard(userID, toggleMessageID, *advance.Directive)
	case app.AdvanceNext:
		h.sendFeedback(userID, *advance.Feedback)
		h.sendQuestion(userID, *advance.Directive)
	case app.AdvanceFinished:
		if advance.Feedback != nil {
			h.sendFeedback(userID, *advance.Feedback)
		}
		h.reply(userID, fmt.Sprintf("Quiz finished! Result: %d/%d.", advance.Summary.Score, advance.Summary.Total))
	}
}

func (h *Handler) sendQuestion(userID int64, d domain.RenderDirective) {
	header := fmt.Sprintf("Question %d/%d", d.Index, d.Total)
	if d.SecondsLeft > 0 {
		header += fmt.Sprintf("\n⏳ Time left: %02d:%02d", d.SecondsLeft/60, d.SecondsLeft%60)
	}

	msg := tgbotapi.NewMessage(userID, header+"\n"+d.Prompt)
	switch d.Type {
	case domain.ArchetypeSingle:
		msg.ReplyMarkup = singleKeyboard(d.Options)
	case domain.ArchetypeMulti:
		msg.ReplyMarkup = multiKeyboard(d.Options, d.Selected)
	case domain.ArchetypeMatch:
		msg.Text += "\n\n" + matchBlocks(d.MatchLeft, d.MatchRight)
	}
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Warn("send failed", zap.Int64("chatID", userID), zap.Error(err))
	}
}

func (h *Handler) updateMultiKeyboard(userID int64, messageID int, d domain.RenderDirective) {
	if messageID == 0 {
		h.sendQuestion(userID, d)
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(userID, messageID, multiKeyboard(d.Options, d.Selected))
	if _, err := h.bot.Request(edit); err != nil {
		h.logger.Debug("edit keyboard failed", zap.Int64("chatID", userID), zap.Error(err))
	}
}

func (h *Handler) sendFeedback(userID int64, fb domain.Feedback) {
	badge, verdict := "🟥", "Wrong."
	if fb.Correct {
		badge, verdict = "🟩", "Correct!"
	}
	text := fmt.Sprintf("%s %s\nCorrect answer: %s", badge, verdict, strings.Join(fb.Expected, ", "))
	if fb.Explanation != "" {
		text += "\n\n" + fb.Explanation
	}
	h.reply(userID, text)
}

func singleKeyboard(options []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt, cbAnswerPrefix+opt),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func multiKeyboard(options, selected []string) tgbotapi.InlineKeyboardMarkup {
	chosen := make(map[string]struct{}, len(selected))
	for _, opt := range selected {
		chosen[opt] = struct{}{}
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options)+1)
	for _, opt := range options {
		label := opt
		if _, ok := chosen[opt]; ok {
			label = "✅ " + opt
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbMultiPrefix+opt),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Confirm", cbConfirm),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// matchBlocks renders the two columns with letter and number labels plus the
// expected reply format.
func matchBlocks(left, right []string) string {
	var b strings.Builder
	for i, item := range left {
		fmt.Fprintf(&b, "%c) %s\n", 'A'+i, item)
	}
	b.WriteString("\n")
	for i, item := range right {
		fmt.Fprintf(&b, "%d) %s\n", i+1, item)
	}
	b.WriteString("\nReply like: A-2,B-1,C-3")
	return b.String()
}
