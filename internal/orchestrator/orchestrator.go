package orchestrator

import (
	"context"
	"log"

	"github.com/observatory-sec/observatory/internal/config"
	"github.com/observatory-sec/observatory/internal/eventbus"
	"github.com/observatory-sec/observatory/internal/health"
	"github.com/observatory-sec/observatory/internal/reconcile"
	"github.com/observatory-sec/observatory/internal/service"
	"github.com/observatory-sec/observatory/internal/statecache"
	"github.com/observatory-sec/observatory/internal/store"
)

// Orchestrator connects the store, event bus and gate state cache and
// assembles the service the API layer works against.
type Orchestrator struct {
	config   *config.Config
	store    store.Store
	notifier eventbus.Notifier
	cache    statecache.Cache
	service  *service.Service

	// rules is nil until a rule engine is attached via SetRuleEngine
	rules reconcile.RuleEngine
}

func NewOrchestrator(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		config: cfg,
	}
}

// SetRuleEngine attaches the external rule engine. Must be called before
// Start.
func (o *Orchestrator) SetRuleEngine(rules reconcile.RuleEngine) {
	o.rules = rules
}

func (o *Orchestrator) Start(ctx context.Context) error {
	log.Printf("Starting Observatory Orchestrator...")

	var err error
	o.store, err = store.NewStore(o.config.StoreDriver, o.config.StoreConnString)
	if err != nil {
		return err
	}

	log.Printf("Connecting to store (%s)", o.config.StoreDriver)
	if err := o.store.Connect(ctx); err != nil {
		return err
	}
	log.Printf("Store connected.")

	if err := o.store.HealthCheck(ctx); err != nil {
		return err
	}
	log.Printf("Store healthy.")

	if o.config.EnableEventPublishing {
		o.notifier, err = eventbus.NewPublisher(o.config.NatsURL)
		if err != nil {
			return err
		}
	} else {
		o.notifier = eventbus.NopNotifier{}
		log.Printf("Event publishing disabled")
	}

	switch o.config.GateCacheDriver {
	case "redis":
		o.cache, err = statecache.NewRedisCache(o.config.RedisAddr, o.config.RedisPassword, o.config.RedisDB)
		if err != nil {
			return err
		}
	default:
		o.cache = statecache.NewMemoryCache()
		log.Printf("Using in-memory gate state cache")
	}

	o.service = service.New(o.store, o.notifier, o.cache, o.rules)
	log.Printf("Service ready.")

	return nil
}

// Service returns the assembled service. Nil before Start.
func (o *Orchestrator) Service() *service.Service {
	return o.service
}

// HealthServer builds the health endpoint over the started dependencies.
// Must be called after Start.
func (o *Orchestrator) HealthServer() *health.HealthServer {
	var checker health.ConnectionChecker
	if pub, ok := o.notifier.(health.ConnectionChecker); ok {
		checker = pub
	}
	return health.NewHealthServer(o.store, checker)
}

func (o *Orchestrator) Stop() error {
	if o.notifier != nil {
		o.notifier.Close()
	}
	if o.cache != nil {
		if err := o.cache.Close(); err != nil {
			log.Printf("Error closing gate state cache: %v", err)
		}
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			return err
		}
	}
	return nil
}
