package backend

import (
	"context"
	"errors"
	"fmt"

	"slipdash/internal/amqp"
	"slipdash/internal/log"
	"slipdash/internal/services"
	"slipdash/internal/session"
	"slipdash/internal/sheets"
	gsheet "slipdash/internal/sheets/google"
	"slipdash/internal/sheets/memory"
	"slipdash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// dialAMQP is swapped in tests.
	dialAMQP func(ctx context.Context, url, exchange, queue string, logger *log.Logger) (services.Publisher, error)
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		dialAMQP: func(ctx context.Context, url, exchange, queue string, logger *log.Logger) (services.Publisher, error) {
			return amqp.NewClient(ctx, url, exchange, queue, logger)
		},
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	writer, err := f.createWriter(ctx, config.Sheets)
	if err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config, writer)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config, writer), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config, writer sheets.ReviewWriter) (*BackendResult, error) {
	sealer, err := storage.NewSealer(config.CredentialsEncKey, config.CredentialsSignKey)
	if err != nil {
		return nil, fmt.Errorf("credential keys: %w", err)
	}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	publisher := f.createPublisher(ctx, config)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Type:        SQLiteBackend,
		Ledger:      repo,
		Credentials: storage.NewCredentialStore(repo, sealer),
		Publisher:   publisher,
		Writer:      writer,
		Ping:        repo.Ping,
		Cleanup: func() error {
			var errs []error
			if publisher != nil {
				if err := publisher.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if err := repo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config, writer sheets.ReviewWriter) *BackendResult {
	publisher := f.createPublisher(ctx, config)

	f.logger.Info("Initialized memory backend", "amqp_enabled", publisher != nil)

	return &BackendResult{
		Type:        MemoryBackend,
		Ledger:      storage.NewMemoryLedger(),
		Credentials: session.NewMemoryStore(),
		Publisher:   publisher,
		Writer:      writer,
		Ping:        func(context.Context) error { return nil },
		Cleanup: func() error {
			if publisher != nil {
				return publisher.Close()
			}
			return nil
		},
	}
}

// createPublisher connects to AMQP when configured. A broker that cannot be
// reached leaves the stack without a publisher; the sync sweep still runs.
func (f *DefaultFactory) createPublisher(ctx context.Context, config Config) services.Publisher {
	if config.AMQPURL == "" {
		return nil
	}
	pub, err := f.dialAMQP(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without sync messages", log.FieldError, err.Error())
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return pub
}

func (f *DefaultFactory) createWriter(ctx context.Context, cfg gsheet.Config) (sheets.ReviewWriter, error) {
	if cfg.SpreadsheetID == "" {
		f.logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting in memory")
		return memory.New(), nil
	}
	exp, err := gsheet.NewExporter(ctx, cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
	}
	f.logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.SpreadsheetID)
	return exp, nil
}
