package db

import "database/sql"

type User struct {
	UserID      string
	TelegramID  int64
	SignUpDate  int64
	LoginMethod string
	Sport       string
	Username    string
	Password    string
}

type Lesson struct {
	LessonID    string
	UserID      string
	Time        int64
	Sport       string
	Trainer     string
	MessageSent bool
	Response    sql.NullString
}
