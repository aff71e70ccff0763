package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const articlesTable = "articles"

// Open connects to the database for the dialect. SQLite is limited to one
// connection so writers never contend for the file lock.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLStore persists seen articles into Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	dsn     string
	builder sq.StatementBuilderType
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.ArticleStore = (*SQLStore)(nil)

// NewSQLStore wires a sql.DB implementation. dsn is reused by InitSchema to run migrations.
func NewSQLStore(db *sql.DB, dialect Dialect, dsn string, logger *slog.Logger) *SQLStore {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		dsn:     dsn,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		logger:  logger,
		now:     time.Now,
	}
}

// InitSchema creates the articles table and indexes if they do not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Migrate(s.dialect, s.dsn, s.logger); err != nil {
		return err
	}
	s.logger.Info("articles schema ready", "dialect", s.dialect)
	return nil
}

// ExistsByURL reports whether an article with the URL is stored.
func (s *SQLStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	query, args, err := s.builder.Select("1").From(articlesTable).Where(sq.Eq{"url": url}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query article exists: %w", err)
	}
	return true, nil
}

// Insert stores the article unless its URL is already present, in which case it returns nil.
func (s *SQLStore) Insert(ctx context.Context, article domain.Article) (*domain.PersistedArticle, error) {
	now := s.now().UTC()
	publishedAt := article.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}
	publishedAt = normalizeTime(publishedAt)

	query, args, err := s.builder.
		Insert(articlesTable).
		Columns("title", "url", "source", "source_group", "published_at", "sent").
		Values(article.Title, article.URL, article.Source, article.SourceGroup, publishedAt, false).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("article already stored", "url", article.URL)
			return nil, nil
		}
		return nil, fmt.Errorf("insert article: %w", err)
	}

	s.logger.Debug("saved new article", "id", id, "url", article.URL)
	return &domain.PersistedArticle{
		ID:          id,
		Title:       article.Title,
		URL:         article.URL,
		Source:      article.Source,
		PublishedAt: publishedAt,
		Sent:        false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkSent flips the sent flag. It returns false when the URL is unknown or already sent.
func (s *SQLStore) MarkSent(ctx context.Context, url string) (bool, error) {
	query, args, err := s.builder.
		Update(articlesTable).
		Set("sent", true).
		Set("updated_at", normalizeTime(s.now())).
		Where(sq.Eq{"url": url, "sent": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark sent: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark article sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteOlderThan removes articles published before cutoff or without a publish date.
func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.builder.
		Delete(articlesTable).
		Where(sq.Or{
			sq.Lt{"published_at": normalizeTime(cutoff)},
			sq.Eq{"published_at": nil},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete old articles: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

// Stats counts total, sent, unsent and stale (older than cutoff or undated) rows.
func (s *SQLStore) Stats(ctx context.Context, cutoff time.Time) (domain.ArticleStats, error) {
	query, args, err := s.builder.
		Select("COUNT(*)").
		Column(sq.Expr("COALESCE(SUM(CASE WHEN sent = ? THEN 1 ELSE 0 END), 0)", true)).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN sent = ? THEN 1 ELSE 0 END), 0)", false)).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN published_at < ? OR published_at IS NULL THEN 1 ELSE 0 END), 0)", normalizeTime(cutoff))).
		From(articlesTable).
		ToSql()
	if err != nil {
		return domain.ArticleStats{}, fmt.Errorf("build stats: %w", err)
	}

	var stats domain.ArticleStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.Total, &stats.Sent, &stats.Unsent, &stats.Old); err != nil {
		return domain.ArticleStats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect, err)
	}
	return nil
}

// normalizeTime stores timestamps in UTC at second precision so text-backed
// SQLite columns compare in chronological order.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
