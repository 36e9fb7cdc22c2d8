package cli

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"matchpoint/internal/app"
	"matchpoint/internal/config"
	"matchpoint/internal/domain"
	"matchpoint/internal/identity"
	"matchpoint/internal/infra/memory"
	mongostore "matchpoint/internal/infra/mongo"
	pgstore "matchpoint/internal/infra/postgres"
	redisstore "matchpoint/internal/infra/redis"
	"matchpoint/internal/media"
)

// backend is the wired service graph plus the connections it owns.
type backend struct {
	quizzes     app.QuizStore
	accounts    app.AccountStore
	credentials identity.CredentialStore // nil keeps logins in memory
	redis       *redis.Client

	syncer    *app.Syncer
	feed      *app.ResponseFeed
	quizSvc   *app.QuizService
	ledger    *app.LedgerService
	sessions  *app.SessionService
	accountSv *app.AccountService
	analytics *app.AnalyticsService
	mediaDir  string

	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend picks the document store (Postgres, then Mongo, then memory) and
// wires every service on top of it.
func openBackend(ctx context.Context, cfg config.Config, log *logrus.Logger) (*backend, error) {
	b := &backend{}
	if err := b.openStores(ctx, cfg, log); err != nil {
		b.Close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		reader  app.QuizReader
		inval   app.QuizInvalidator
		queue   app.PendingQueue
		session app.SessionRepository
	)
	if b.redis != nil {
		cache := redisstore.NewQuizCache(b.redis, app.StoreReader{Store: b.quizzes}, quizTTL)
		reader, inval = cache, cache
		queue = redisstore.NewPendingQueue(b.redis)
		session = redisstore.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	} else {
		cache := memory.NewQuizCache(app.StoreReader{Store: b.quizzes}, quizTTL)
		reader, inval = cache, cache
		queue = memory.NewPendingQueue()
		session = memory.NewSessionStore()
	}

	blob, err := openBlob(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	if fs, ok := blob.(*media.FSBlob); ok {
		b.mediaDir = fs.Dir()
	}

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			b.Close()
			return nil, err
		}
		log.Warn("auth.jwt_secret not set, using an ephemeral secret; sessions end on restart")
	}
	idp, err := identity.NewLocal(identity.Config{
		Secret:          secret,
		FederatedSecret: []byte(cfg.Auth.FederatedSecret),
		TokenTTL:        config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour),
		Credentials:     b.credentials,
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	unsubscribe := idp.OnAuthStateChange(func(ev domain.AuthEvent) {
		log.WithFields(logrus.Fields{"uid": ev.Principal.UID, "provider": ev.Principal.Provider}).Info(string(ev.Type))
	})
	b.closers = append(b.closers, unsubscribe)

	b.syncer = app.NewSyncer(queue, b.quizzes, b.accounts, log)
	b.feed = app.NewResponseFeed()

	b.quizSvc = app.NewQuizService(b.quizzes, reader, b.accounts, media.NewUploader(blob, media.QuizImageOptions, log))
	b.quizSvc.SetInvalidator(inval)
	b.quizSvc.SetLogger(log)
	if cfg.Quiz.FreeQuizLimit != 0 {
		b.quizSvc.SetFreeQuizLimit(cfg.Quiz.FreeQuizLimit)
	}

	b.ledger = app.NewLedgerService(b.quizzes, reader, b.syncer, b.feed)
	b.ledger.SetLogger(log)

	b.sessions = app.NewSessionService(session, reader, b.ledger)
	b.sessions.SetTimeLimit(config.TTLDuration(cfg.Quiz.SessionTimeLimit, 0))
	b.sessions.SetLogger(log)

	b.accountSv = app.NewAccountService(b.accounts, idp, media.NewUploader(blob, media.ProfilePhotoOptions, log), b.syncer)
	b.accountSv.SetLogger(log)
	b.analytics = app.NewAnalyticsService(b.quizSvc, b.syncer)

	// queued responses reach live watchers once they land
	b.syncer.OnApplied = func(m app.PendingMutation) {
		if m.Kind == app.MutationAppendResponse && m.Response != nil {
			b.feed.Publish(m.QuizID, *m.Response)
		}
	}
	return b, nil
}

func (b *backend) openStores(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		b.closers = append(b.closers, func() { _ = db.Close() })

		b.quizzes = pgstore.NewQuizStore(pool)
		b.accounts = pgstore.NewAccountStore(db)
		b.credentials = pgstore.NewCredentialStore(db)
		log.Info("using postgres store")
	case cfg.Mongo.URI != "":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		name := cfg.Mongo.Database
		if name == "" {
			name = "matchpoint"
		}
		db := client.Database(name)
		quizzes := mongostore.NewQuizStore(db)
		if err := quizzes.EnsureIndexes(ctx); err != nil {
			log.WithError(err).Warn("mongo index creation failed")
		}
		b.quizzes = quizzes
		b.accounts = mongostore.NewAccountStore(db)
		b.credentials = mongostore.NewCredentialStore(db)
		log.Info("using mongo store")
	default:
		b.quizzes = memory.NewQuizStore()
		b.accounts = memory.NewAccountStore()
		log.Warn("no database configured, data lives in memory only")
	}
	return nil
}

func openBlob(cfg config.Config) (media.Blob, error) {
	base := cfg.Storage.PublicBaseURL
	if base == "" {
		base = "/media"
	}
	if cfg.Storage.BlobDir == "" {
		return media.NewMemoryBlob(base), nil
	}
	return media.NewFSBlob(cfg.Storage.BlobDir, base)
}
