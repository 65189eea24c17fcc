package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/park285/skate-duel/internal/config"
	"github.com/park285/skate-duel/internal/identity"
	"github.com/park285/skate-duel/internal/media"
	"github.com/park285/skate-duel/internal/msgcat"
	"github.com/park285/skate-duel/internal/notify"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/pvpremote"
	"github.com/park285/skate-duel/internal/pvpskate"
	"github.com/park285/skate-duel/internal/reputation"
	"github.com/park285/skate-duel/internal/schedule"
	"github.com/park285/skate-duel/internal/sqldb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is everything a binary needs, wired from one AppConfig.
type Deps struct {
	Config  *config.AppConfig
	DB      *sqldb.DB
	Redis   *redis.Client
	Engine  *pvpskate.Engine
	Arbiter *pvpskate.Arbiter
	Sweeper *pvpskate.Sweeper
	Remote  *pvpremote.Engine // nil without REDIS_URL
	Outbox  *notify.Outbox
	Stream  *notify.Stream // nil unless NOTIFY_MODE is ws or auto
	Names   identity.Directory
	Players *identity.SQLDirectory
}

// New opens storage and wires engines, outbox and collaborators.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	logger := obslog.L()

	dialect, err := sqldb.ParseDialect(cfg.DBDialect)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DatabaseURL
	if dialect == sqldb.SQLite {
		dsn = cfg.SQLitePath
	}
	db, err := sqldb.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	d := &Deps{Config: cfg, DB: db}
	fail := func(err error) (*Deps, error) {
		_ = d.Close(context.Background())
		return nil, err
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := parseRedisURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		d.Redis = redis.NewClient(opts)
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	} else {
		logger.Info("remote_engine_disabled", zap.String("reason", "REDIS_URL not set"))
	}

	// 이름 조회: players 테이블, Redis 가 있으면 캐시
	d.Players = identity.NewSQLDirectory(db)
	d.Names = d.Players
	if d.Redis != nil {
		d.Names = identity.NewRedisCache(d.Redis, d.Players, cfg.NameCacheTTL)
	}

	var verifier media.Verifier = media.PresenceVerifier{}
	if strings.TrimSpace(cfg.MediaBucket) != "" {
		s3v, err := media.NewS3Verifier(ctx, media.S3Config{
			Bucket:          cfg.MediaBucket,
			Region:          cfg.MediaRegion,
			Endpoint:        cfg.MediaEndpoint,
			AccessKeyID:     cfg.MediaAccessKeyID,
			SecretAccessKey: cfg.MediaSecretAccessKey,
		})
		if err != nil {
			return fail(fmt.Errorf("init media verifier: %w", err))
		}
		verifier = s3v
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fail(fmt.Errorf("load messages: %w", err))
	}
	dispatcher, err := d.dispatcher(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	d.Outbox = notify.NewOutbox(dispatcher,
		notify.WithCatalog(cat),
		notify.WithDirectory(d.Names),
		notify.WithPlaceholderName(cfg.PlaceholderName),
		notify.WithDispatchTimeout(cfg.NotifyTimeout),
	)

	d.Engine = pvpskate.NewEngine(db,
		pvpskate.WithResponseWindow(cfg.ResponseWindow),
		pvpskate.WithVerifier(verifier),
	)
	d.Engine.AttachPublisher(d.Outbox)
	d.Arbiter = pvpskate.NewArbiter(d.Engine, reputation.NewSQLSink(db))
	d.Sweeper = pvpskate.NewSweeper(d.Engine, cfg.WarningLead)

	if d.Redis != nil {
		d.Remote = pvpremote.NewEngine(d.Redis,
			pvpremote.WithMaxRetries(cfg.RemoteRetries),
			pvpremote.WithResponseWindow(cfg.ResponseWindow),
			pvpremote.WithWarningLead(cfg.WarningLead),
			pvpremote.WithVerifier(verifier),
		)
		d.Remote.AttachPublisher(d.Outbox)
	}
	return d, nil
}

// Sweeps returns the deadline sweeps of every configured engine, relational
// first.
func (d *Deps) Sweeps() schedule.Sweeps {
	list := []schedule.Sweeps{d.Sweeper}
	if d.Remote != nil {
		list = append(list, d.Remote)
	}
	return schedule.All(list...)
}

func (d *Deps) dispatcher(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (notify.Dispatcher, error) {
	headers := notify.BearerToken(cfg.NotifyToken)
	var client *notify.Client
	if cfg.NotifyBaseURL != "" {
		client = notify.NewClient(cfg.NotifyBaseURL,
			notify.WithHeaderProvider(headers),
			notify.WithTimeout(cfg.NotifyTimeout),
		)
	}
	if cfg.NotifyMode == notify.ModeWS || cfg.NotifyMode == notify.ModeAuto {
		d.Stream = notify.NewStream(cfg.NotifyWSURL, 5)
		d.Stream.SetHeaderProvider(headers)
		d.Stream.OnStateChange(func(s notify.State) {
			logger.Info("notify_ws_state", zap.String("state", s.String()))
		})
		if err := d.Stream.Connect(ctx); err != nil {
			if cfg.NotifyMode == notify.ModeWS {
				return nil, fmt.Errorf("notify ws connect: %w", err)
			}
			// auto 모드는 HTTP 로 계속
			logger.Warn("notify_ws_connect_error", zap.Error(err))
		}
	}
	return notify.NewDispatcher(cfg.NotifyMode, client, d.Stream, logger), nil
}

// Close drains the outbox, then releases connections.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Outbox != nil {
		if err := d.Outbox.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain outbox: %w", err))
		}
	}
	if d.Stream != nil {
		if err := d.Stream.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notify stream: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
