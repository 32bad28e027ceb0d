package logger

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common"
	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the global zerolog logger. The returned Closer releases the
// rotating log file when LOG_FILE is set.
func Setup(cfg config.LogConfig) io.Closer {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    int(cfg.MaxSizeMB),
			MaxBackups: int(cfg.MaxBackups),
			MaxAge:     int(cfg.MaxAgeDays),
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", common.AppName).Logger()
	return closer
}

type runIDKey struct{}

// WithRunID tags ctx so log events created with Ctx(ctx) are linked to a crawl run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run ID stored by WithRunID.
func RunIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// LogWriter persists one log line.
type LogWriter interface {
	CreateCrawlerLog(ctx context.Context, arg repository.CreateCrawlerLogParams) error
}

// CrawlerLogHook implements zerolog.Hook interface
// for storing logs in the database
type CrawlerLogHook struct {
	writer   LogWriter
	fallback zerolog.Logger
	timeout  time.Duration
}

// NewCrawlerLogHook creates a new log hook. Failures to persist are reported on
// fallback, which must not carry the hook itself.
func NewCrawlerLogHook(writer LogWriter, fallback zerolog.Logger) *CrawlerLogHook {
	return &CrawlerLogHook{
		writer:   writer,
		fallback: fallback,
		timeout:  5 * time.Second,
	}
}

// Run implements zerolog.Hook.Run
func (h *CrawlerLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.InfoLevel || level == zerolog.NoLevel {
		return
	}

	params := repository.CreateCrawlerLogParams{
		ID:        uuid.NewString(),
		EventType: level.String(),
		Message:   pgtype.Text{String: msg, Valid: msg != ""},
		Details:   json.RawMessage("{}"),
		CreatedAt: time.Now().UTC(),
	}
	if runID := RunIDFrom(e.GetCtx()); runID != "" {
		params.RunID = pgtype.Text{String: runID, Valid: true}
		params.Details, _ = json.Marshal(map[string]string{"run_id": runID})
	}

	// Inserting must not block the caller.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.writer.CreateCrawlerLog(ctx, params); err != nil {
			h.fallback.Error().Err(err).Msg("Failed to log to database via hook")
		}
	}()
}

// InitializeLogging adds the database hook to the global logger.
func InitializeLogging(writer LogWriter) {
	hook := NewCrawlerLogHook(writer, log.Logger)
	log.Logger = log.Logger.Hook(hook)
}
