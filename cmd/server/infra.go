package main

import (
	"context"
	"database/sql"
	"log/slog"

	"signbridge/internal/account/service"
	"signbridge/internal/audit"
	"signbridge/internal/confirmation/ports"
	"signbridge/internal/confirmation/reaper"
	"signbridge/internal/identity"
	"signbridge/internal/identity/kratos"
	jwttoken "signbridge/internal/jwt_token"
	"signbridge/internal/pending"
	"signbridge/internal/platform/config"
	"signbridge/internal/platform/postgres"
	"signbridge/internal/platform/redis"
	"signbridge/internal/profile/rollnumber"
	"signbridge/internal/profile/store"
	"signbridge/internal/session"
	httptransport "signbridge/internal/transport/http"
)

const auditQueueSize = 1024

type profileStore interface {
	ports.ProfileStore
	rollnumber.ExistenceChecker
}

type identityProvider interface {
	service.IdentityProvider
	ports.IdentityDirectory
	session.SessionSource
}

type pendingStore interface {
	ports.PendingStore
	service.PendingStore
}

// infra holds the backing services chosen from config. Empty URLs fall back to
// in-memory implementations for development.
type infra struct {
	mode         string
	profiles     profileStore
	pending      pendingStore
	ledger       ports.OrphanLedger
	provider     identityProvider
	auditSinks   []audit.Sink
	auditWorkers []*audit.Worker
	revocations  httptransport.TokenRevocations
	checks       []httptransport.ReadinessCheck
	closers      []func()
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{mode: "development"}
	ok := false
	defer func() {
		if !ok {
			in.Close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		in.mode = "production"
		in.profiles = store.NewPostgres(db)
		in.checks = append(in.checks, httptransport.ReadinessCheck{Name: "postgres", Check: db.PingContext})
		in.closers = append(in.closers, func() { closeDB(db, log) })
	} else {
		in.profiles = store.NewInMemory()
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		in.pending = pending.NewRedis(rdb, cfg.Redis.PendingTTL)
		in.ledger = reaper.NewRedisLedger(rdb)
		in.revocations = jwttoken.NewRedisRevocations(rdb)
		in.checks = append(in.checks, httptransport.ReadinessCheck{Name: "redis", Check: rdb.Check})
		in.closers = append(in.closers, func() { _ = rdb.Close() })
	} else {
		in.pending = pending.NewInMemory()
		in.ledger = reaper.NewInMemoryLedger()
		in.revocations = jwttoken.NewInMemoryRevocations()
	}

	if cfg.Kratos.PublicURL != "" {
		provider, err := kratos.New(cfg.Kratos, kratos.WithLogger(log))
		if err != nil {
			return nil, err
		}
		in.provider = provider
	} else {
		log.WarnContext(ctx, "KRATOS_PUBLIC_URL not set, using the in-memory identity provider")
		in.provider = identity.NewInMemoryProvider()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := audit.NewKafkaClient(ctx, cfg.Kafka.Brokers, cfg.Kafka.LifecycleTopic)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, client.Close)
		queue := audit.NewQueue(auditQueueSize)
		in.auditSinks = append(in.auditSinks, queue)
		in.auditWorkers = append(in.auditWorkers, audit.NewWorker(queue, audit.NewKafkaSink(client, cfg.Kafka.LifecycleTopic), log))
	}

	ok = true
	return in, nil
}

// Close releases backing services in reverse order of acquisition.
func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("closing postgres", "error", err)
	}
}

