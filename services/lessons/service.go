// Package lessons persists registered users and the lesson offers
// already sent to them, keyed so one slot is never offered twice.
package lessons

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"uscbot-backend/lib/cryptoutil"
	"uscbot-backend/lib/timezone"
	"uscbot-backend/services/lessons/db"
)

var tracer = otel.Tracer("services/lessons")

var ErrNotFound = errors.New("record not found")

type User struct {
	ID          string
	TelegramID  int64
	SignUpDate  time.Time
	LoginMethod string
	Sport       string
	Username    string
	// Password is the decrypted portal password.
	Password string
}

type Subscriber struct {
	UserID     string
	TelegramID int64
}

type Lesson struct {
	Key         string
	UserID      string
	Time        time.Time
	Sport       string
	Trainer     string
	MessageSent bool
	// Response is nil until the user answered the offer.
	Response *string
}

type Service struct {
	db      *sql.DB
	qry     *db.Queries
	encrypt *cryptoutil.Encryptor
}

func NewService(database *sql.DB, encryptor *cryptoutil.Encryptor) Service {
	return Service{
		db:      database,
		qry:     db.New(database),
		encrypt: encryptor,
	}
}

// OfferKey derives the stable identifier for one offered slot. It
// doubles as the telegram callback payload, hence the hashing.
func OfferKey(sport string, t time.Time, userID string) string {
	return cryptoutil.HashKey(fmt.Sprintf("%s%s%s", sport, t.Format(time.RFC3339), userID))
}

// InsertUser registers a telegram account and returns its stable user
// id. The id is a hash of the telegram id so it can travel in
// messages without exposing the account. Re-registering is a no-op
// returning the same id.
func (s Service) InsertUser(ctx context.Context, telegramID int64, signUp time.Time, loginMethod string) (string, error) {
	ctx, span := tracer.Start(ctx, "InsertUser")
	defer span.End()

	userID := cryptoutil.HashKey(strconv.FormatInt(telegramID, 10))
	err := s.qry.CreateUser(ctx, db.CreateUserParams{
		UserID:      userID,
		TelegramID:  telegramID,
		SignUpDate:  signUp.Unix(),
		LoginMethod: loginMethod,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return userID, nil
}

// RegisterUser creates the user and subscribes them to sport in one
// transaction, so a crash never leaves an account without a sport.
// Registering again keeps the original sign-up but re-applies the
// sport.
func (s Service) RegisterUser(ctx context.Context, telegramID int64, signUp time.Time, loginMethod, sport string) (string, error) {
	ctx, span := tracer.Start(ctx, "RegisterUser")
	defer span.End()
	span.SetAttributes(attribute.String("sport", sport))

	userID := cryptoutil.HashKey(strconv.FormatInt(telegramID, 10))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer tx.Rollback()

	qtx := s.qry.WithTx(tx)
	err = qtx.CreateUser(ctx, db.CreateUserParams{
		UserID:      userID,
		TelegramID:  telegramID,
		SignUpDate:  signUp.Unix(),
		LoginMethod: loginMethod,
	})
	if err == nil {
		err = qtx.SetUserSport(ctx, db.SetUserSportParams{Sport: sport, UserID: userID})
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return userID, nil
}

func (s Service) SetUserSport(ctx context.Context, userID, sport string) error {
	ctx, span := tracer.Start(ctx, "SetUserSport")
	defer span.End()
	span.SetAttributes(attribute.String("sport", sport))

	err := s.qry.SetUserSport(ctx, db.SetUserSportParams{Sport: sport, UserID: userID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// SetUserCredentials stores the portal login, encrypting the password
// at rest.
func (s Service) SetUserCredentials(ctx context.Context, userID, username, password string) error {
	ctx, span := tracer.Start(ctx, "SetUserCredentials")
	defer span.End()

	ciphertext, err := s.encrypt.Encrypt(password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encrypt password")
		return err
	}
	err = s.qry.SetUserCredentials(ctx, db.SetUserCredentialsParams{
		Username: username,
		Password: ciphertext,
		UserID:   userID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s Service) GetUser(ctx context.Context, userID string) (User, error) {
	ctx, span := tracer.Start(ctx, "GetUser")
	defer span.End()

	row, err := s.qry.GetUser(ctx, userID)
	return s.decodeUser(span, row, err)
}

func (s Service) GetUserByTelegramID(ctx context.Context, telegramID int64) (User, error) {
	ctx, span := tracer.Start(ctx, "GetUserByTelegramID")
	defer span.End()

	row, err := s.qry.GetUserByTelegramID(ctx, telegramID)
	return s.decodeUser(span, row, err)
}

func (s Service) decodeUser(span trace.Span, row db.User, err error) (User, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return User{}, err
	}

	password := ""
	if row.Password != "" {
		password, err = s.encrypt.Decrypt(row.Password)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to decrypt password")
			return User{}, err
		}
	}

	return User{
		ID:          row.UserID,
		TelegramID:  row.TelegramID,
		SignUpDate:  time.Unix(row.SignUpDate, 0).In(timezone.Location),
		LoginMethod: row.LoginMethod,
		Sport:       row.Sport,
		Username:    row.Username,
		Password:    password,
	}, nil
}

// RecordLessonOffer remembers that a slot was offered to a user and
// returns the offer key. Recording the same offer twice is a no-op.
func (s Service) RecordLessonOffer(ctx context.Context, sport string, t time.Time, userID, trainer string) (string, error) {
	ctx, span := tracer.Start(ctx, "RecordLessonOffer")
	defer span.End()
	span.SetAttributes(attribute.String("sport", sport))

	key := OfferKey(sport, t, userID)
	err := s.qry.CreateLesson(ctx, db.CreateLessonParams{
		LessonID:    key,
		UserID:      userID,
		Time:        t.Unix(),
		Sport:       sport,
		Trainer:     trainer,
		MessageSent: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return key, nil
}

// HasUserBeenOffered reports whether this slot was already sent to
// the user, the idempotency check the notifier runs before messaging.
func (s Service) HasUserBeenOffered(ctx context.Context, sport string, t time.Time, userID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "HasUserBeenOffered")
	defer span.End()

	count, err := s.qry.CountOffers(ctx, db.CountOffersParams{
		Sport:  sport,
		Time:   t.Unix(),
		UserID: userID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return count > 0, nil
}

func (s Service) ListUsersSubscribedTo(ctx context.Context, sport string) ([]Subscriber, error) {
	ctx, span := tracer.Start(ctx, "ListUsersSubscribedTo")
	defer span.End()
	span.SetAttributes(attribute.String("sport", sport))

	rows, err := s.qry.ListUsersBySport(ctx, sport)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	subscribers := make([]Subscriber, len(rows))
	for i, r := range rows {
		subscribers[i] = Subscriber{UserID: r.UserID, TelegramID: r.TelegramID}
	}
	return subscribers, nil
}

func (s Service) GetLessonByKey(ctx context.Context, key string) (Lesson, error) {
	ctx, span := tracer.Start(ctx, "GetLessonByKey")
	defer span.End()

	row, err := s.qry.GetLesson(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Lesson{}, fmt.Errorf("%w: lesson", ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Lesson{}, err
	}

	lesson := Lesson{
		Key:         row.LessonID,
		UserID:      row.UserID,
		Time:        time.Unix(row.Time, 0).In(timezone.Location),
		Sport:       row.Sport,
		Trainer:     row.Trainer,
		MessageSent: row.MessageSent,
	}
	if row.Response.Valid {
		lesson.Response = &row.Response.String
	}
	return lesson, nil
}

func (s Service) SetLessonResponse(ctx context.Context, key, response string) error {
	ctx, span := tracer.Start(ctx, "SetLessonResponse")
	defer span.End()

	err := s.qry.SetLessonResponse(ctx, db.SetLessonResponseParams{
		Response: sql.NullString{String: response, Valid: true},
		LessonID: key,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
