// Package bot handles the conversational front end: the /start
// registration dialog and the yes/no callbacks on lesson offers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"uscbot-backend/lib/browser"
	"uscbot-backend/lib/scrapers/usc"
	"uscbot-backend/lib/telegram"
	"uscbot-backend/lib/timezone"
	"uscbot-backend/services/lessons"
)

var tracer = otel.Tracer("services/bot")

// DefaultSport is what new sign-ups are subscribed to. The portal's
// label for fencing.
const DefaultSport = "Schermen"

var loginMethods = []string{string(usc.ProviderUvA)}

// Chat is the slice of the telegram client the bot drives.
type Chat interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Booker books one lesson on behalf of one user and is closed after.
type Booker interface {
	BookLesson(ctx context.Context, sport string, when time.Time) error
	Close(ctx context.Context) error
}

// BookerFactory opens an authenticated scraper session. Each booking
// gets a fresh session so two bookings never share browser state.
type BookerFactory func(ctx context.Context, opts usc.Options) (Booker, error)

type convState int

const (
	stateLoginMethod convState = iota
	stateUsername
	statePassword
)

type conversation struct {
	state    convState
	userID   string
	username string
}

type Service struct {
	store    lessons.Service
	tg       Chat
	sessions BookerFactory

	convs map[int64]*conversation
}

func NewService(store lessons.Service, tg Chat, sessions BookerFactory) *Service {
	return &Service{
		store:    store,
		tg:       tg,
		sessions: sessions,
		convs:    map[int64]*conversation{},
	}
}

// Run long-polls for updates until ctx is cancelled. Handler failures
// are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := s.tg.GetUpdates(ctx, offset, time.Second*25)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "failed to poll updates", "err", err)
			time.Sleep(time.Second * 5)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if err := s.HandleUpdate(ctx, update); err != nil {
				slog.ErrorContext(ctx, "failed to handle update",
					"update_id", update.UpdateID, "err", err)
			}
		}
	}
}

func (s *Service) HandleUpdate(ctx context.Context, update telegram.Update) error {
	ctx, span := tracer.Start(ctx, "HandleUpdate")
	defer span.End()

	var err error
	switch {
	case update.CallbackQuery != nil:
		err = s.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		err = s.handleMessage(ctx, update.Message)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) error {
	_, err := s.tg.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

func (s *Service) handleMessage(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID
	telegramID := msg.From.ID

	switch strings.TrimSpace(msg.Text) {
	case "/start":
		s.convs[telegramID] = &conversation{state: stateLoginMethod}
		slog.InfoContext(ctx, "user started sign up", "telegram_id", telegramID)
		return s.reply(ctx, chatID, fmt.Sprintf(
			"Heyhoy %s, welcome to our service for USC sports. To start, I need some info "+
				"from you. What login method would you like to use? You can try (%s)",
			msg.From.FirstName, strings.Join(loginMethods, ", ")))
	case "/help":
		return s.reply(ctx, chatID,
			"We'll send you updates on all the trainings. You can sign up via the buttons. "+
				"To stop, use the /cancel_setup command")
	case "/cancel_setup":
		delete(s.convs, telegramID)
		slog.InfoContext(ctx, "user cancelled sign up", "telegram_id", telegramID)
		return s.reply(ctx, chatID, "Cancelled signup, type /start to start over")
	}

	conv, ok := s.convs[telegramID]
	if !ok {
		return s.reply(ctx, chatID, "Type /start to sign up or /help for more info")
	}

	switch conv.state {
	case stateLoginMethod:
		return s.handleLoginMethod(ctx, conv, msg)
	case stateUsername:
		conv.username = strings.TrimSpace(msg.Text)
		conv.state = statePassword
		slog.InfoContext(ctx, "asked for password", "telegram_id", telegramID)
		return s.reply(ctx, chatID, "And now type in the password:")
	case statePassword:
		return s.handlePassword(ctx, conv, msg)
	}
	return nil
}

func (s *Service) handleLoginMethod(ctx context.Context, conv *conversation, msg *telegram.Message) error {
	method := strings.ToLower(strings.TrimSpace(msg.Text))

	known := false
	for _, m := range loginMethods {
		if method == m {
			known = true
			break
		}
	}
	if !known {
		return s.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"Sorry, that login method has not been implemented yet, please choose one "+
				"from the given list (%s)", strings.Join(loginMethods, ", ")))
	}

	userID, err := s.store.RegisterUser(ctx, msg.From.ID, timezone.Now(), method, DefaultSport)
	if err != nil {
		return err
	}

	conv.userID = userID
	conv.state = stateUsername
	slog.InfoContext(ctx, "asked for username", "telegram_id", msg.From.ID)
	return s.reply(ctx, msg.Chat.ID,
		"Because of the way this scraper works, we need to be able to log in on your "+
			"behalf. If you don't feel comfortable doing that, please type /cancel_setup. "+
			"Either way, make sure you don't use this password anywhere else. Now please "+
			"type in the username you use to log in. If you log in with UvA, this is your "+
			"UvA email address.")
}

func (s *Service) handlePassword(ctx context.Context, conv *conversation, msg *telegram.Message) error {
	err := s.store.SetUserCredentials(ctx, conv.userID, conv.username, msg.Text)
	if err != nil {
		return err
	}
	delete(s.convs, msg.From.ID)

	slog.InfoContext(ctx, "finished sign up", "telegram_id", msg.From.ID)
	return s.reply(ctx, msg.Chat.ID,
		"You have finished the sign up process. Much love from us and we hope to see "+
			"you in the gym!")
}

func (s *Service) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	ctx, span := tracer.Start(ctx, "handleCallback")
	defer span.End()

	if err := s.tg.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		slog.WarnContext(ctx, "failed to answer callback query", "err", err)
	}
	if cb.Message == nil {
		return errors.New("callback query carries no message")
	}
	chatID := cb.Message.Chat.ID

	key, choice, ok := strings.Cut(cb.Data, ",")
	if !ok {
		return fmt.Errorf("malformed callback payload %q", cb.Data)
	}
	wantsToGo := choice == "Y"

	lesson, err := s.store.GetLessonByKey(ctx, key)
	if err != nil {
		return err
	}
	if lesson.Response != nil {
		slog.InfoContext(ctx, "response already recorded, skipping", "key", key)
		return nil
	}
	if err := s.store.SetLessonResponse(ctx, key, choice); err != nil {
		return err
	}

	if wantsToGo {
		if err := s.bookForUser(ctx, cb.From.ID, lesson); err != nil {
			if browser.IsNotFound(err) || errors.Is(err, usc.ErrSlotNotFound) {
				return s.tg.EditMessageText(ctx, chatID, cb.Message.MessageID,
					"You seem to be already registered for that course. Good luck!")
			}
			editErr := s.tg.EditMessageText(ctx, chatID, cb.Message.MessageID,
				"Sorry, an error occurred while booking. Please contact the admins.")
			if editErr != nil {
				slog.WarnContext(ctx, "failed to edit offer message", "err", editErr)
			}
			return err
		}
	}

	answer := "No"
	if wantsToGo {
		answer = "Yes"
	}
	return s.tg.EditMessageText(ctx, chatID, cb.Message.MessageID, fmt.Sprintf(
		"%s\n\nWe have recorded your choice as being %s. Good luck!",
		cb.Message.Text, answer))
}

func (s *Service) bookForUser(ctx context.Context, telegramID int64, lesson lessons.Lesson) error {
	ctx, span := tracer.Start(ctx, "bookForUser")
	defer span.End()

	user, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}

	session, err := s.sessions(ctx, usc.Options{
		Username: user.Username,
		Password: user.Password,
		Provider: usc.Provider(user.LoginMethod),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(ctx); err != nil {
			slog.WarnContext(ctx, "failed to close scraper session", "err", err)
		}
	}()

	return session.BookLesson(ctx, lesson.Sport, lesson.Time)
}
