package bootstrap

import (
	"github.com/wolfman30/crm-voice-sync/internal/calls"
	appconfig "github.com/wolfman30/crm-voice-sync/internal/config"
	"github.com/wolfman30/crm-voice-sync/internal/contacts"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// BuildRetellClient creates the shared provider client. The configured key is
// only the fallback; tenants with their own key override it per request.
func BuildRetellClient(cfg *appconfig.Config, observer retellclient.RequestObserver, logger *logging.Logger) *retellclient.Client {
	if logger == nil {
		logger = logging.Default()
	}
	return retellclient.New(retellclient.Config{
		BaseURL:    cfg.RetellBaseURL,
		APIKey:     cfg.RetellAPIKey,
		Timeout:    cfg.RetellTimeout,
		MaxRetries: cfg.RetellMaxRetries,
		Logger:     logger.Logger,
		Observer:   observer,
	})
}

// BuildSynchronizer wires call sync over stores and the provider client.
func BuildSynchronizer(cfg *appconfig.Config, stores *Stores, client *retellclient.Client, notifier calls.FollowUpNotifier, logger *logging.Logger) *calls.Synchronizer {
	return calls.NewSynchronizer(calls.SynchronizerConfig{
		Calls:                stores.Calls,
		Contacts:             contacts.NewResolver(stores.Contacts, logger),
		Fetcher:              calls.RetellFetcher(client),
		FallbackAPIKey:       cfg.RetellAPIKey,
		DefaultCostPerMinute: cfg.DefaultCostPerMinute,
		Notifier:             notifier,
		Logger:               logger,
	})
}
