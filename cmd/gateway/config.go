package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/logging"
)

const envPrefix = "CAREFOLIO_"

func getEnvDefault(key, def string) string {
	if v := os.Getenv(envPrefix + key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getEnvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// applyEnv overlays CAREFOLIO_* environment variables on cfg.
func applyEnv(cfg *config.Config) {
	cfg.Server.ListenAddr = getEnvDefault("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.AdminToken = getEnvDefault("ADMIN_TOKEN", cfg.Server.AdminToken)
	cfg.Server.EnableMetrics = getEnvBoolDefault("ENABLE_METRICS", cfg.Server.EnableMetrics)
	cfg.Server.MaxConnections = getEnvIntDefault("MAX_CONNECTIONS", cfg.Server.MaxConnections)
	cfg.Server.RateLimitPerMinute = getEnvIntDefault("RATE_LIMIT_PER_MINUTE", cfg.Server.RateLimitPerMinute)
	cfg.Server.TrustProxyHeaders = getEnvBoolDefault("TRUST_PROXY_HEADERS", cfg.Server.TrustProxyHeaders)

	cfg.Ledger.RPCURL = getEnvDefault("LEDGER_RPC_URL", cfg.Ledger.RPCURL)
	cfg.Ledger.ProgramID = getEnvDefault("PROGRAM_ID", cfg.Ledger.ProgramID)
	cfg.Ledger.SignerKey = getEnvDefault("SIGNER_KEY", cfg.Ledger.SignerKey)
	cfg.Ledger.SignerKeyFile = getEnvDefault("SIGNER_KEY_FILE", cfg.Ledger.SignerKeyFile)

	cfg.BlobStore.Driver = getEnvDefault("BLOBSTORE_DRIVER", cfg.BlobStore.Driver)
	cfg.BlobStore.ClusterAPIURL = getEnvDefault("IPFS_CLUSTER_API_URL", cfg.BlobStore.ClusterAPIURL)
	cfg.BlobStore.IPFSAPIURL = getEnvDefault("IPFS_API_URL", cfg.BlobStore.IPFSAPIURL)
	cfg.BlobStore.GatewayURL = getEnvDefault("BLOB_GATEWAY_URL", cfg.BlobStore.GatewayURL)
	cfg.BlobStore.EncryptionKey = getEnvDefault("BLOB_ENCRYPTION_KEY", cfg.BlobStore.EncryptionKey)
	cfg.BlobStore.S3.Bucket = getEnvDefault("S3_BUCKET", cfg.BlobStore.S3.Bucket)
	cfg.BlobStore.S3.Endpoint = getEnvDefault("S3_ENDPOINT", cfg.BlobStore.S3.Endpoint)

	cfg.Index.Driver = getEnvDefault("INDEX_DRIVER", cfg.Index.Driver)
	cfg.Index.DSN = getEnvDefault("INDEX_DSN", cfg.Index.DSN)

	if servers := getEnvDefault("CACHE_SERVERS", ""); servers != "" {
		cfg.Cache.Servers = splitList(servers)
	}
	cfg.Intents.Path = getEnvDefault("INTENTS_PATH", cfg.Intents.Path)

	cfg.Logging.Level = getEnvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvDefault("LOG_FORMAT", cfg.Logging.Format)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// loadConfig resolves the gateway configuration.
// Priority: flags > env > config file > defaults.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", getEnvDefault("CONFIG", ""), "Path to a YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (e.g., :5000)")
	rpcURL := flag.String("ledger-rpc", "", "Ledger JSON-RPC endpoint")
	dsn := flag.String("index-dsn", "", "Index database DSN")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")

	// Do not call flag.Parse() elsewhere to avoid double-parsing
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	if *rpcURL != "" {
		cfg.Ledger.RPCURL = *rpcURL
	}
	if *dsn != "" {
		cfg.Index.DSN = *dsn
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}

func logConfig(logger *logging.ColoredLogger, cfg *config.Config) {
	logger.ComponentInfo(logging.ComponentGeneral, "Loaded gateway configuration",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.String("ledger_rpc", cfg.Ledger.RPCURL),
		zap.String("program_id", cfg.Ledger.ProgramID),
		zap.String("blobstore", cfg.BlobStore.Driver),
		zap.String("index_driver", cfg.Index.Driver),
		zap.Int("cache_servers", len(cfg.Cache.Servers)),
		zap.Bool("intent_log", cfg.Intents.Path != ""),
		zap.Bool("admin_routes", cfg.Server.AdminToken != ""),
	)
}
