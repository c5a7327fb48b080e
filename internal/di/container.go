// Package di wires the object graph. Providers are lazy: the train
// workflow never constructs a triage policy, and run/review never
// construct a trainer.
package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/inbox-triage/internal/adapters/jmap"
	"github.com/mikey/inbox-triage/internal/adapters/statistical"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/factory"
	"github.com/mikey/inbox-triage/internal/keeplist"
)

// BuildContainer builds the dependency container for one CLI invocation
func BuildContainer(cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger },

		func(cfg *config.Config, logger *zap.Logger) (core.Mailbox, error) {
			return jmap.NewClient(cfg.GetJMAP(), logger)
		},

		func(cfg *config.Config, logger *zap.Logger) (core.CacheRepository, error) {
			return factory.NewCacheFactory(cfg, logger).CreateCacheRepository()
		},

		func(cfg *config.Config, logger *zap.Logger, cache core.CacheRepository) (core.TriagePolicy, error) {
			return factory.NewPolicyFactory(cfg, logger).CreatePolicy(cache)
		},

		func(cfg *config.Config, logger *zap.Logger) *keeplist.Keeplist {
			return keeplist.New(cfg.GetTriage().ProtectedDomains, logger)
		},

		func(mailbox core.Mailbox, policy core.TriagePolicy, protected *keeplist.Keeplist, logger *zap.Logger) *core.TriageService {
			return core.NewTriageService(mailbox, policy, protected, logger)
		},

		func(mailbox core.Mailbox, logger *zap.Logger) *statistical.Trainer {
			return statistical.NewTrainer(mailbox, logger)
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider: %w", err)
		}
	}

	return container, nil
}
