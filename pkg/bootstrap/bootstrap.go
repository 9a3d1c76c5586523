// Package bootstrap opens the pieces every storefront binary shares and
// closes them in reverse order on the way out.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/instance"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/messaging"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/migrate"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/redis"
)

type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	db        *db.Client
	redis     *redis.Client
	publisher messaging.Publisher
	closers   []closer
	exit      func(int)
}

type closer struct {
	name string
	fn   func() error
}

// Start loads .env and the STOREFRONT_ config, then builds the service
// logger. A bad config exits the process.
func Start(name string) *Process {
	boot := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		boot.Debug(context.Background(), "no .env file, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = name
	return newProcess(name, cfg, logger.ForApp(name, cfg.App))
}

func newProcess(name string, cfg *config.Config, logg *logger.Logger) *Process {
	return &Process{Name: name, Config: cfg, Logger: logg, exit: os.Exit}
}

// Must logs and exits when err is set. Everything opened so far is closed
// first.
func (p *Process) Must(what string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), "failed to "+what, err)
	p.Close()
	p.exit(1)
}

// OnClose registers fn to run during Close, after everything registered later.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

func (p *Process) Close() {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, err)
			p.Logger.Error(p.Logger.WithField(context.Background(), "resource", c.name), "close failed", err)
		}
	}
	p.closers = nil
	if errs != nil {
		p.Logger.Warn(context.Background(), "shutdown finished with errors")
	}
}

// DB opens the database once and applies dev migrations when enabled.
func (p *Process) DB() *db.Client {
	if p.db != nil {
		return p.db
	}
	ctx := context.Background()
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	p.Must("connect database", err)
	p.OnClose("database", client.Close)
	p.Must("run dev migrations", migrate.MaybeRunDev(ctx, p.Config, p.Logger, client))
	p.db = client
	return client
}

func (p *Process) Redis() *redis.Client {
	if p.redis != nil {
		return p.redis
	}
	client, err := redis.New(context.Background(), p.Config.Redis, p.Logger)
	p.Must("connect redis", err)
	p.OnClose("redis", client.Close)
	p.redis = client
	return client
}

// Publisher opens the configured event transport (pubsub or kafka).
func (p *Process) Publisher() messaging.Publisher {
	if p.publisher != nil {
		return p.publisher
	}
	pub, err := messaging.NewPublisher(context.Background(), p.Config, p.Logger)
	p.Must("open event transport", err)
	p.OnClose("event transport", pub.Close)
	p.publisher = pub
	return pub
}

// Instance is this process's id for lock ownership and logs.
func (p *Process) Instance() string {
	return instance.ID(p.Name)
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the service
// identity plus fields as log context.
func (p *Process) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"serviceKind": p.Name,
		"instance":    p.Instance(),
	})
	if len(fields) > 0 {
		ctx = p.Logger.WithFields(ctx, fields)
	}
	return ctx, stop
}
