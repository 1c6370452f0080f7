package commands

import (
	"context"
	"log/slog"

	"uscbot-backend/lib/browser"
	"uscbot-backend/lib/configutil"
	configlibsql "uscbot-backend/lib/configutil/libsql"
	"uscbot-backend/lib/cryptoutil"
	"uscbot-backend/lib/scrapers/usc"
	"uscbot-backend/services/bot"
	"uscbot-backend/services/lessons"
	lessonsdb "uscbot-backend/services/lessons/db"
)

type PortalLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type BrowserConfig struct {
	// RemoteURL points at a running Chrome's debugging endpoint,
	// empty spawns a headless instance locally.
	RemoteURL string `json:"remote_url"`
	DumpPath  string `json:"dump_path"`
}

type Config struct {
	Database   configlibsql.Struct `json:"database"`
	BotToken   string              `json:"bot_token"`
	EncryptKey string              `json:"encrypt_key"`
	Sport      string              `json:"sport"`
	DaysAhead  int                 `json:"days_ahead"`
	// JobLogin is the account the scheduled offer round scrapes with.
	JobLogin PortalLogin   `json:"job_login"`
	Browser  BrowserConfig `json:"browser"`
}

func loadConfig() (Config, error) {
	cfg, err := configutil.ReadRecursively[Config]("uscbot.json5")
	if err != nil {
		return cfg, err
	}
	if cfg.Sport == "" {
		cfg.Sport = bot.DefaultSport
	}
	if cfg.DaysAhead == 0 {
		cfg.DaysAhead = 7
	}
	return cfg, nil
}

func openStore(cfg Config) (lessons.Service, error) {
	database, err := cfg.Database.OpenDB(lessonsdb.Schema)
	if err != nil {
		return lessons.Service{}, err
	}
	return lessons.NewService(database, cryptoutil.NewEncryptor(cfg.EncryptKey)), nil
}

func newSession(ctx context.Context, cfg Config, opts usc.Options) (*usc.Session, error) {
	driver, err := browser.NewChrome(ctx, browser.Options{
		Headless:  true,
		RemoteURL: cfg.Browser.RemoteURL,
		DumpPath:  cfg.Browser.DumpPath,
	})
	if err != nil {
		return nil, err
	}
	session, err := usc.New(ctx, driver, opts)
	if err != nil {
		if cerr := driver.Close(ctx); cerr != nil {
			slog.WarnContext(ctx, "failed to close browser after login failure", "err", cerr)
		}
		return nil, err
	}
	return session, nil
}
