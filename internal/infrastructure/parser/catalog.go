package parser

import (
	"log/slog"
	"net/http"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/scanner"
)

// Type tags understood by RegisterAll.
const (
	TypeDevTo    = "devto"
	TypeTelegram = "telegram"
	TypeRSS      = "rss"
	TypeDuma     = "duma"
	TypeArxiv    = "arxiv"
)

// Deps are shared by every adapter built from config.
type Deps struct {
	Client   *http.Client
	Location *time.Location
	Logger   *slog.Logger
}

// RegisterAll installs constructors for every built-in adapter type.
func RegisterAll(f *scanner.Factory, deps Deps) {
	if deps.Client == nil {
		deps.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	f.Register(TypeDevTo, func(cfg config.SourceConfig) (scanner.Scanner, error) {
		return NewDevToScanner(deps.Client, cfg.URL, cfg.Tags), nil
	})
	f.Register(TypeTelegram, func(cfg config.SourceConfig) (scanner.Scanner, error) {
		return NewTelegramScanner(deps.Client, cfg.URL, cfg.Channels, cfg.LookBackDays, deps.Location,
			deps.Logger.With("source", cfg.Name))
	})
	f.Register(TypeRSS, func(cfg config.SourceConfig) (scanner.Scanner, error) {
		return NewRSSScanner(deps.Client, cfg.URL, cfg.Tags, cfg.Options["keywords"])
	})
	f.Register(TypeDuma, func(cfg config.SourceConfig) (scanner.Scanner, error) {
		return NewDumaScanner(deps.Client, cfg.URL, cfg.Options["token"], cfg.Options["appToken"], deps.Location)
	})
	f.Register(TypeArxiv, func(cfg config.SourceConfig) (scanner.Scanner, error) {
		return NewArxivScanner(deps.Client, cfg.URL, cfg.Options["category"], cfg.LookBackDays)
	})
}
