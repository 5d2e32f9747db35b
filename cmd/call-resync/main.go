// Command call-resync re-pulls ended calls for one tenant from the voice
// provider and merges them into the CRM call records. Use it to repair calls
// whose webhooks were lost or soft-failed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/crm-voice-sync/internal/app/bootstrap"
	"github.com/wolfman30/crm-voice-sync/internal/calls"
	appconfig "github.com/wolfman30/crm-voice-sync/internal/config"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

type options struct {
	tenantID string
	limit    int
	since    time.Duration
	dryRun   bool
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("call-resync", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.tenantID, "tenant", "", "tenant id to resync (required)")
	fs.IntVar(&opts.limit, "limit", 100, "maximum calls to pull")
	fs.DurationVar(&opts.since, "since", 24*time.Hour, "only calls started within this window")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "list calls without writing")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.tenantID = strings.TrimSpace(opts.tenantID)
	if opts.tenantID == "" {
		return options{}, errors.New("-tenant is required")
	}
	if opts.limit <= 0 || opts.limit > 1000 {
		return options{}, fmt.Errorf("-limit must be between 1 and 1000, got %d", opts.limit)
	}
	if opts.since <= 0 {
		return options{}, fmt.Errorf("-since must be positive, got %s", opts.since)
	}
	return opts, nil
}

func main() {
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := bootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()
	if stores.Memory() {
		logger.Warn("resync running against in-memory stores; results are discarded on exit")
	}

	tenant, err := tenancy.NewResolver(stores.Tenants).Resolve(ctx, opts.tenantID)
	if err != nil {
		logger.Error("tenant not resolved", "tenant_id", opts.tenantID, "error", err)
		os.Exit(1)
	}

	client := bootstrap.BuildRetellClient(cfg, nil, logger)
	notifier := bootstrap.BuildFollowUpNotifier(cfg, redisClient, logger)
	r := &resyncer{
		lister: client.WithAPIKey(tenant.Credentials(cfg.RetellAPIKey).APIKey),
		syncer: bootstrap.BuildSynchronizer(cfg, stores, client, notifier, logger),
		logger: logger,
		now:    time.Now,
	}

	summary, err := r.run(ctx, tenant, opts)
	if err != nil {
		logger.Error("resync failed", "tenant_id", tenant.ID, "error", err)
		os.Exit(1)
	}
	logger.Info("resync complete",
		"tenant_id", tenant.ID,
		"listed", summary.listed,
		"synced", summary.synced,
		"skipped", summary.skipped,
		"failed", summary.failed,
	)
	if summary.failed > 0 {
		os.Exit(1)
	}
}

type callLister interface {
	ListCalls(ctx context.Context, req retellclient.ListCallsRequest) ([]retellclient.Call, error)
}

type providerSyncer interface {
	SyncProviderCall(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*calls.Call, error)
}

type resyncer struct {
	lister callLister
	syncer providerSyncer
	logger *logging.Logger
	now    func() time.Time
}

type summary struct {
	listed  int
	synced  int
	skipped int
	failed  int
}

func (r *resyncer) run(ctx context.Context, tenant *tenancy.Tenant, opts options) (summary, error) {
	var out summary
	listed, err := r.lister.ListCalls(ctx, retellclient.ListCallsRequest{
		FilterCriteria: retellclient.FilterCriteria{
			CallStatus: []string{"ended"},
			StartTimestamp: &retellclient.TimestampRange{
				LowerThreshold: r.now().Add(-opts.since).UnixMilli(),
			},
		},
		Limit:     opts.limit,
		SortOrder: "descending",
	})
	if err != nil {
		return out, fmt.Errorf("list calls: %w", err)
	}
	out.listed = len(listed)

	for _, call := range listed {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		owner := call.MetadataString("tenant_id", "tenantId")
		if call.CallID == "" || (owner != "" && !strings.EqualFold(owner, tenant.ID)) {
			out.skipped++
			r.logger.Warn("skipping call not owned by tenant", "call_id", call.CallID, "owner", owner)
			continue
		}
		if opts.dryRun {
			out.skipped++
			r.logger.Info("dry run: would sync call", "call_id", call.CallID)
			continue
		}
		if _, err := r.syncer.SyncProviderCall(ctx, tenant, call); err != nil {
			out.failed++
			r.logger.Error("call resync failed", "call_id", call.CallID, "error", err)
			continue
		}
		out.synced++
	}
	return out, nil
}
