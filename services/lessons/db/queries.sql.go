package db

import (
	"context"
	"database/sql"
)

const createUser = `
INSERT INTO users (user_id, telegram_id, sign_up_date, login_method)
VALUES (?, ?, ?, ?)
ON CONFLICT (telegram_id) DO NOTHING
`

type CreateUserParams struct {
	UserID      string
	TelegramID  int64
	SignUpDate  int64
	LoginMethod string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.UserID, arg.TelegramID, arg.SignUpDate, arg.LoginMethod)
	return err
}

const getUser = `
SELECT user_id, telegram_id, sign_up_date, login_method, sport, username, password
FROM users
WHERE user_id = ?
`

func (q *Queries) GetUser(ctx context.Context, userID string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, userID)
	var u User
	err := row.Scan(&u.UserID, &u.TelegramID, &u.SignUpDate,
		&u.LoginMethod, &u.Sport, &u.Username, &u.Password)
	return u, err
}

const getUserByTelegramID = `
SELECT user_id, telegram_id, sign_up_date, login_method, sport, username, password
FROM users
WHERE telegram_id = ?
`

func (q *Queries) GetUserByTelegramID(ctx context.Context, telegramID int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByTelegramID, telegramID)
	var u User
	err := row.Scan(&u.UserID, &u.TelegramID, &u.SignUpDate,
		&u.LoginMethod, &u.Sport, &u.Username, &u.Password)
	return u, err
}

const setUserSport = `
UPDATE users SET sport = ? WHERE user_id = ?
`

type SetUserSportParams struct {
	Sport  string
	UserID string
}

func (q *Queries) SetUserSport(ctx context.Context, arg SetUserSportParams) error {
	_, err := q.db.ExecContext(ctx, setUserSport, arg.Sport, arg.UserID)
	return err
}

const setUserCredentials = `
UPDATE users SET username = ?, password = ? WHERE user_id = ?
`

type SetUserCredentialsParams struct {
	Username string
	Password string
	UserID   string
}

func (q *Queries) SetUserCredentials(ctx context.Context, arg SetUserCredentialsParams) error {
	_, err := q.db.ExecContext(ctx, setUserCredentials,
		arg.Username, arg.Password, arg.UserID)
	return err
}

const listUsersBySport = `
SELECT user_id, telegram_id
FROM users
WHERE sport = ?
ORDER BY sign_up_date
`

type ListUsersBySportRow struct {
	UserID     string
	TelegramID int64
}

func (q *Queries) ListUsersBySport(ctx context.Context, sport string) ([]ListUsersBySportRow, error) {
	rows, err := q.db.QueryContext(ctx, listUsersBySport, sport)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListUsersBySportRow
	for rows.Next() {
		var r ListUsersBySportRow
		if err := rows.Scan(&r.UserID, &r.TelegramID); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const createLesson = `
INSERT INTO lessons (lesson_id, user_id, time, sport, trainer, message_sent, response)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (lesson_id) DO NOTHING
`

type CreateLessonParams struct {
	LessonID    string
	UserID      string
	Time        int64
	Sport       string
	Trainer     string
	MessageSent bool
	Response    sql.NullString
}

func (q *Queries) CreateLesson(ctx context.Context, arg CreateLessonParams) error {
	_, err := q.db.ExecContext(ctx, createLesson,
		arg.LessonID, arg.UserID, arg.Time, arg.Sport,
		arg.Trainer, arg.MessageSent, arg.Response)
	return err
}

const getLesson = `
SELECT lesson_id, user_id, time, sport, trainer, message_sent, response
FROM lessons
WHERE lesson_id = ?
`

func (q *Queries) GetLesson(ctx context.Context, lessonID string) (Lesson, error) {
	row := q.db.QueryRowContext(ctx, getLesson, lessonID)
	var l Lesson
	err := row.Scan(&l.LessonID, &l.UserID, &l.Time, &l.Sport,
		&l.Trainer, &l.MessageSent, &l.Response)
	return l, err
}

const countOffers = `
SELECT COUNT(*)
FROM lessons
WHERE sport = ? AND time = ? AND user_id = ? AND message_sent = 1
`

type CountOffersParams struct {
	Sport  string
	Time   int64
	UserID string
}

func (q *Queries) CountOffers(ctx context.Context, arg CountOffersParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countOffers, arg.Sport, arg.Time, arg.UserID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const setLessonResponse = `
UPDATE lessons SET response = ? WHERE lesson_id = ?
`

type SetLessonResponseParams struct {
	Response sql.NullString
	LessonID string
}

func (q *Queries) SetLessonResponse(ctx context.Context, arg SetLessonResponseParams) error {
	_, err := q.db.ExecContext(ctx, setLessonResponse, arg.Response, arg.LessonID)
	return err
}
