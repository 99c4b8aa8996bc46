// Package factory owns the lifecycle of every external dependency and wires
// the auth service together. Redis and Scylla are required; Kafka,
// ClickHouse, and Elasticsearch degrade with a warning outside production.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pratik-me/e-shop/internal/audit"
	"github.com/pratik-me/e-shop/internal/bucketing"
	"github.com/pratik-me/e-shop/internal/client"
	"github.com/pratik-me/e-shop/internal/config"
	"github.com/pratik-me/e-shop/internal/credential"
	"github.com/pratik-me/e-shop/internal/notify"
	"github.com/pratik-me/e-shop/internal/otp"
	redisrepo "github.com/pratik-me/e-shop/internal/repository/redis"
	"github.com/pratik-me/e-shop/internal/repository/scylla"
	"github.com/pratik-me/e-shop/internal/secrets"
	"github.com/pratik-me/e-shop/internal/service"
	"github.com/pratik-me/e-shop/internal/token"
	"github.com/pratik-me/e-shop/internal/util"
)

type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient
	esClient         *client.ESClient

	// Domain components
	bucketingManager *bucketing.Manager
	accountRepo      *scylla.AccountRepository
	tokenIssuer      *token.Issuer
	authService      *service.AuthService

	closeOnce sync.Once
}

// NewFactory loads configuration and initializes every dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := f.initializeDomain(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize domain components: %w", err)
	}

	util.Info("Factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", f.clickhouseClient != nil),
		util.Bool("elasticsearch_enabled", f.esClient != nil),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis and Scylla are hard requirements in every environment.
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}

	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	if err := f.scyllaClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}

	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("kafka: %w", err)
		}
		util.Warn("Kafka producer initialization failed - email events will be logged only", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
	}

	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("clickhouse: %w", err)
		}
		util.Warn("ClickHouse initialization failed - audit events will not be recorded there", util.ErrorField(err))
	} else {
		f.clickhouseClient = chClient
	}

	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("elasticsearch: %w", err)
		}
		util.Warn("Elasticsearch initialization failed - audit events will not be indexed", util.ErrorField(err))
	} else {
		f.esClient = esClient
	}

	return nil
}

func (f *Factory) initializeDomain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.bucketingManager = bucketing.NewManager(f.config)

	secretsManager, err := f.newSecretsManager(ctx)
	if err != nil {
		return err
	}

	accessSecret, refreshSecret, err := secretsManager.TokenSecrets(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve token secrets: %w", err)
	}

	// Config validation guarantees real secrets in production.
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		util.Warn("Token secrets not configured - using development defaults")
		accessSecret = []byte("dev-access-token-secret")
		refreshSecret = []byte("dev-refresh-token-secret")
	}

	f.tokenIssuer, err = token.NewIssuer(accessSecret, refreshSecret,
		f.config.Token.AccessTTL, f.config.Token.RefreshTTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	f.accountRepo = scylla.NewAccountRepository(f.scyllaClient, f.bucketingManager)

	store := redisrepo.NewEphemeralStore(f.redisClient.Client)
	policy := otp.NewRatePolicy(store)
	codes := otp.NewManager(store, f.notifier())
	creds := credential.NewManager()

	recorder := audit.NewRecorder(
		f.clickhouseClient,
		f.esClient,
		f.bucketingManager,
		f.config.Clickhouse.Table,
		f.config.Elasticsearch.Index,
	)

	f.authService = service.NewAuthService(f.accountRepo, policy, codes, creds, f.tokenIssuer, recorder)
	return nil
}

func (f *Factory) newSecretsManager(ctx context.Context) (*secrets.Manager, error) {
	if !f.config.KMS.Enabled {
		return secrets.NewManager(f.config, nil), nil
	}

	kmsClient, err := secrets.NewKMSClient(ctx, f.config)
	if err != nil {
		return nil, fmt.Errorf("kms: %w", err)
	}
	return secrets.NewManager(f.config, kmsClient), nil
}

func (f *Factory) notifier() otp.Notifier {
	if f.kafkaProducer != nil {
		return notify.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.EmailTopic)
	}
	return notify.NewLogNotifier()
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}

func (f *Factory) TokenIssuer() *token.Issuer {
	return f.tokenIssuer
}

// HealthCheck probes all live dependencies in parallel and reports the
// failures by name.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		if err != nil {
			mu.Lock()
			healthErrors[name] = err
			mu.Unlock()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		record("redis", f.redisClient.HealthCheck(ctx))
		return nil
	})
	g.Go(func() error {
		record("scylla", f.scyllaClient.HealthCheck(ctx))
		return nil
	})
	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(ctx))
			return nil
		})
	}
	if f.clickhouseClient != nil {
		g.Go(func() error {
			record("clickhouse", f.clickhouseClient.HealthCheck(ctx))
			return nil
		})
	}
	if f.esClient != nil {
		g.Go(func() error {
			record("elasticsearch", f.esClient.HealthCheck())
			return nil
		})
	}

	g.Wait()
	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Info("Factory shutdown complete")
	})
	return nil
}
