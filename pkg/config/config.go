package config

import (
	"time"
)

// Config represents the full configuration of the records gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	BlobStore BlobStoreConfig `yaml:"blobstore"`
	Index     IndexConfig     `yaml:"index"`
	Cache     CacheConfig     `yaml:"cache"`
	Intents   IntentsConfig   `yaml:"intents"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP listener configuration
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MaxConnections int           `yaml:"max_connections"` // 0 means unlimited
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AdminToken     string        `yaml:"admin_token"` // Empty disables /api/admin routes
	EnableMetrics  bool          `yaml:"enable_metrics"`

	// Per-client token bucket on /api; RateLimitPerMinute 0 disables it.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int `yaml:"rate_limit_burst"`

	// Honor X-Forwarded-For / X-Real-IP only when behind a trusted proxy.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// LedgerConfig contains ledger RPC and signing configuration
type LedgerConfig struct {
	RPCURL    string `yaml:"rpc_url"`
	ProgramID string `yaml:"program_id"` // hex address of the records program

	// Exactly one of SignerKey (hex secp256k1 key) or SignerKeyFile must be set.
	SignerKey     string `yaml:"signer_key"`
	SignerKeyFile string `yaml:"signer_key_file"`

	CallTimeout     time.Duration `yaml:"call_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

// BlobStoreConfig contains content-addressable storage configuration
type BlobStoreConfig struct {
	Driver string `yaml:"driver"` // ipfs or s3

	// IPFS cluster driver
	ClusterAPIURL     string `yaml:"cluster_api_url"`
	IPFSAPIURL        string `yaml:"ipfs_api_url"`
	ReplicationFactor int    `yaml:"replication_factor"`

	// GatewayURL is the public base used to build ipfsUrl/notesUrl values.
	GatewayURL string `yaml:"gateway_url"`

	// EncryptionKey is a hex 32-byte key; when set payloads are sealed before upload.
	EncryptionKey string `yaml:"encryption_key"`

	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`

	S3 S3Config `yaml:"s3"`
}

// S3Config contains the S3-compatible driver settings
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
}

// IndexConfig contains local index database configuration
type IndexConfig struct {
	Driver       string `yaml:"driver"` // rqlite, sqlite, sqlite3 or postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CacheConfig contains the Olric blob cache configuration
type CacheConfig struct {
	Servers []string `yaml:"servers"` // Empty disables the cache
	DMap    string   `yaml:"dmap"`
}

// IntentsConfig contains the durable intent log and reconciler configuration
type IntentsConfig struct {
	Path              string        `yaml:"path"` // Empty disables the intent log
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, console
	OutputFile string `yaml:"output_file"` // Empty for stdout
	Colors     bool   `yaml:"colors"`
}

// DefaultConfig returns a configuration suitable for a local development stack.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":5000",
			RequestTimeout: 60 * time.Second,
			MaxBodyBytes:   4 << 20,
			EnableMetrics:  true,

			RateLimitPerMinute: 600,
			RateLimitBurst:     100,
		},
		Ledger: LedgerConfig{
			RPCURL:          "http://localhost:8899",
			CallTimeout:     15 * time.Second,
			MaxAttempts:     3,
			InitialInterval: 250 * time.Millisecond,
		},
		BlobStore: BlobStoreConfig{
			Driver:            "ipfs",
			ClusterAPIURL:     "http://localhost:9094",
			IPFSAPIURL:        "http://localhost:5001",
			ReplicationFactor: 3,
			GatewayURL:        "https://gateway.pinata.cloud/ipfs",
			Timeout:           60 * time.Second,
			MaxAttempts:       3,
			InitialInterval:   250 * time.Millisecond,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Index: IndexConfig{
			Driver:       "rqlite",
			DSN:          "http://localhost:4001",
			MaxOpenConns: 50,
		},
		Cache: CacheConfig{
			DMap: "carefolio-blobs",
		},
		Intents: IntentsConfig{
			ReconcileInterval: 30 * time.Second,
			StaleAfter:        2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Colors: true,
		},
	}
}
