package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/adapter"
	"github.com/pithecene-io/warden/adapter/redis"
	"github.com/pithecene-io/warden/adapter/webhook"
	wardenconfig "github.com/pithecene-io/warden/cli/config"
	"github.com/pithecene-io/warden/lode"
	"github.com/pithecene-io/warden/runtime"
	"github.com/pithecene-io/warden/types"
)

const (
	defaultAdapterTimeout = 10 * time.Second
	defaultAdapterRetries = 3
)

// storageChoice holds the resolved Lode storage settings.
type storageChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

// enabled reports whether a ledger export target is configured.
func (s storageChoice) enabled() bool {
	return s.path != ""
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

func resolveStorage(c *cli.Context, cfg *wardenconfig.Config) (storageChoice, error) {
	sc := storageChoice{
		backend:   resolveString(c, "lode-backend", configVal(cfg, func(c *wardenconfig.Config) string { return c.Storage.Backend })),
		path:      resolveString(c, "lode-path", configVal(cfg, func(c *wardenconfig.Config) string { return c.Storage.Path })),
		dataset:   resolveString(c, "lode-dataset", configVal(cfg, func(c *wardenconfig.Config) string { return c.Storage.Dataset })),
		region:    resolveString(c, "lode-s3-region", configVal(cfg, func(c *wardenconfig.Config) string { return c.Storage.Region })),
		endpoint:  resolveString(c, "lode-s3-endpoint", configVal(cfg, func(c *wardenconfig.Config) string { return c.Storage.Endpoint })),
		pathStyle: resolveBool(c, "lode-s3-path-style", configVal(cfg, func(c *wardenconfig.Config) bool { return c.Storage.S3PathStyle })),
	}
	if sc.dataset == "" {
		sc.dataset = lode.DefaultDataset
	}
	switch sc.backend {
	case "fs", "s3":
	default:
		return sc, fmt.Errorf("unknown --lode-backend %q (must be fs or s3)", sc.backend)
	}
	if sc.backend == "s3" && sc.enabled() {
		if bucket, _ := lode.ParseS3Path(sc.path); bucket == "" {
			return sc, fmt.Errorf("--lode-path must be bucket/prefix for the s3 backend, got %q", sc.path)
		}
	}
	return sc, nil
}

// buildLodeClient opens the export target for one run.
func buildLodeClient(ctx context.Context, sc storageChoice, day, runID string) (lode.Client, error) {
	cfg := lode.Config{Dataset: sc.dataset, Day: day, RunID: runID}
	switch sc.backend {
	case "fs":
		return lode.NewLodeClient(cfg, sc.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, sc.s3Config())
	default:
		return nil, fmt.Errorf("unknown lode backend: %s", sc.backend)
	}
}

// openReadDataset opens the dataset for inspect.
func openReadDataset(ctx context.Context, sc storageChoice) (lodelib.Dataset, error) {
	switch sc.backend {
	case "fs":
		return lode.NewReadDatasetFS(sc.dataset, sc.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, sc.dataset, sc.s3Config())
	default:
		return nil, fmt.Errorf("unknown lode backend: %s", sc.backend)
	}
}

// buildStoragePath renders where a run's partition lives, for notifications.
// Unknown backends get the bare partition path.
func buildStoragePath(sc storageChoice, day, runID string) string {
	partition := fmt.Sprintf("datasets/%s/partitions/day=%s/run_id=%s", sc.dataset, day, runID)
	switch sc.backend {
	case "fs":
		root, err := filepath.Abs(sc.path)
		if err != nil {
			root = sc.path
		}
		return "file://" + filepath.ToSlash(filepath.Join(root, partition))
	case "s3":
		bucket, prefix := lode.ParseS3Path(sc.path)
		if prefix == "" {
			return fmt.Sprintf("s3://%s/%s", bucket, partition)
		}
		return fmt.Sprintf("s3://%s/%s/%s", bucket, strings.Trim(prefix, "/"), partition)
	default:
		return partition
	}
}

// adapterChoice holds the resolved run-finished adapter settings.
type adapterChoice struct {
	adapterType string
	url         string
	headers     map[string]string
	channel     string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfigWithPrecedence resolves adapter settings for adapterType.
// Config headers are applied first; --adapter-header entries override them.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *wardenconfig.Config, adapterType string) (*adapterChoice, error) {
	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *wardenconfig.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *wardenconfig.Config) string { return c.Adapter.Channel })),
		timeout:     resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *wardenconfig.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:     c.Int("adapter-retries"),
		headers:     make(map[string]string),
	}

	switch adapterType {
	case "webhook", "redis":
		if ac.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=%s", adapterType)
		}
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}

	if !c.IsSet("adapter-retries") {
		if r := configVal(cfg, func(c *wardenconfig.Config) *int { return c.Adapter.Retries }); r != nil {
			ac.retries = *r
		}
	}

	for k, v := range configVal(cfg, func(c *wardenconfig.Config) map[string]string { return c.Adapter.Headers }) {
		ac.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: expected key=value", h)
		}
		ac.headers[strings.TrimSpace(k)] = v
	}
	return ac, nil
}

// resolveAdapter returns nil when no adapter is configured.
func resolveAdapter(c *cli.Context, cfg *wardenconfig.Config) (*adapterChoice, error) {
	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *wardenconfig.Config) string { return c.Adapter.Type }))
	if adapterType == "" {
		return nil, nil
	}
	return parseAdapterConfigWithPrecedence(c, cfg, adapterType)
}

func buildAdapter(ac *adapterChoice) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.adapterType)
	}
}

// buildRunFinishedEvent maps a run result onto the notification payload.
func buildRunFinishedEvent(result *runtime.RunResult, exitCode int, storagePath string) *adapter.RunFinishedEvent {
	event := &adapter.RunFinishedEvent{
		ContractVersion:   types.ContractVersion,
		EventType:         adapter.EventTypeRunFinished,
		RunID:             result.RunID,
		SessionID:         result.SessionID,
		Task:              result.Task,
		ExitCode:          exitCode,
		Iterations:        len(result.Iterations),
		TotalLinesSampled: result.TotalLinesSampled,
		TotalRetries:      result.TotalRetries,
		StoragePath:       storagePath,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		DurationMs:        result.Duration.Milliseconds(),
	}
	if result.Outcome != nil {
		event.Outcome = string(result.Outcome.Status)
		event.Message = result.Outcome.Message
	}
	return event
}
