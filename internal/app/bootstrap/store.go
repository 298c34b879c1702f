package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/mindcare-booking/internal/config"
	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/dynamostore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/memstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/pgstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/redisfeed"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// StoreDeps carries the clients a backend may need. Unused ones may be nil.
type StoreDeps struct {
	Dynamo   *dynamodb.Client
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

// BuildBackend picks the document backend named by cfg.StoreBackend.
func BuildBackend(cfg *appconfig.Config, deps StoreDeps, logger *logging.Logger) (docstore.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.StoreBackend {
	case "", BackendMemory:
		logger.Warn("using in-memory document store; data is lost on restart")
		return memstore.New(), nil
	case BackendDynamoDB:
		if deps.Dynamo == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb backend needs a client")
		}
		return dynamostore.New(deps.Dynamo, cfg.DocumentsTable, logger, dynamostore.WithCollectionIndex(cfg.DocumentsIndex)), nil
	case BackendPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: postgres backend needs DATABASE_URL")
		}
		return pgstore.New(deps.Postgres, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}
}

// BuildStore wraps backend with the configured retry policy. Change
// notifications go over Redis when a client is present so every API
// instance sees every commit.
func BuildStore(cfg *appconfig.Config, backend docstore.Backend, redisClient *redis.Client, logger *logging.Logger) *docstore.Store {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []docstore.Option{
		docstore.WithLogger(logger),
		docstore.WithRetryPolicy(docstore.RetryPolicy{
			MaxAttempts: cfg.TxMaxAttempts,
			BaseDelay:   cfg.TxBaseDelay,
			MaxDelay:    cfg.TxMaxDelay,
		}),
		docstore.WithTimeout(cfg.TxTimeout),
	}
	if redisClient != nil {
		opts = append(opts, docstore.WithFeed(redisfeed.New(redisClient, logger)))
	} else if cfg.StoreBackend != "" && cfg.StoreBackend != BackendMemory {
		logger.Warn("no redis configured; live availability only reflects this instance's writes")
	}
	return docstore.New(backend, opts...)
}
