package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "ledger.program_id"
	Message string // e.g., "must be a hex address"
	Hint    string // e.g., "generate one with cmd/identity"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLedger()...)
	errs = append(errs, c.validateBlobStore()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateIntents()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error
	sc := c.Server

	if _, _, err := net.SplitHostPort(sc.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Path:    "server.listen_addr",
			Message: fmt.Sprintf("invalid listen address: %v", err),
			Hint:    "expected host:port or :port",
		})
	}
	if sc.MaxConnections < 0 {
		errs = append(errs, ValidationError{Path: "server.max_connections", Message: "must be >= 0"})
	}
	if sc.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{Path: "server.request_timeout", Message: "must be positive"})
	}
	if sc.MaxBodyBytes <= 0 {
		errs = append(errs, ValidationError{Path: "server.max_body_bytes", Message: "must be positive"})
	}
	if sc.RateLimitPerMinute < 0 {
		errs = append(errs, ValidationError{Path: "server.rate_limit_per_minute", Message: "must be >= 0"})
	}
	if sc.RateLimitPerMinute > 0 && sc.RateLimitBurst < 1 {
		errs = append(errs, ValidationError{
			Path:    "server.rate_limit_burst",
			Message: "must be >= 1 when rate limiting is enabled",
		})
	}
	return errs
}

func (c *Config) validateLedger() []error {
	var errs []error
	lc := c.Ledger

	if err := validateURL(lc.RPCURL, "http", "https", "ws", "wss"); err != nil {
		errs = append(errs, ValidationError{Path: "ledger.rpc_url", Message: err.Error()})
	}
	if !common.IsHexAddress(lc.ProgramID) {
		errs = append(errs, ValidationError{
			Path:    "ledger.program_id",
			Message: "must be a 20-byte hex address",
		})
	}
	switch {
	case lc.SignerKey == "" && lc.SignerKeyFile == "":
		errs = append(errs, ValidationError{
			Path:    "ledger.signer_key",
			Message: "signer_key or signer_key_file is required",
			Hint:    "generate one with the identity command",
		})
	case lc.SignerKey != "" && lc.SignerKeyFile != "":
		errs = append(errs, ValidationError{
			Path:    "ledger.signer_key",
			Message: "signer_key and signer_key_file are mutually exclusive",
		})
	}
	if lc.CallTimeout <= 0 {
		errs = append(errs, ValidationError{Path: "ledger.call_timeout", Message: "must be positive"})
	}
	if lc.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Path: "ledger.max_attempts", Message: "must be >= 1"})
	}
	return errs
}

func (c *Config) validateBlobStore() []error {
	var errs []error
	bc := c.BlobStore

	switch bc.Driver {
	case "ipfs":
		if err := validateURL(bc.ClusterAPIURL, "http", "https"); err != nil {
			errs = append(errs, ValidationError{Path: "blobstore.cluster_api_url", Message: err.Error()})
		}
		if err := validateURL(bc.IPFSAPIURL, "http", "https"); err != nil {
			errs = append(errs, ValidationError{Path: "blobstore.ipfs_api_url", Message: err.Error()})
		}
	case "s3":
		if bc.S3.Bucket == "" {
			errs = append(errs, ValidationError{Path: "blobstore.s3.bucket", Message: "required for the s3 driver"})
		}
	default:
		errs = append(errs, ValidationError{
			Path:    "blobstore.driver",
			Message: fmt.Sprintf("unknown driver %q", bc.Driver),
			Hint:    "use ipfs or s3",
		})
	}

	if err := validateURL(bc.GatewayURL, "http", "https"); err != nil {
		errs = append(errs, ValidationError{Path: "blobstore.gateway_url", Message: err.Error()})
	}
	if bc.EncryptionKey != "" {
		key, err := hex.DecodeString(strings.TrimPrefix(bc.EncryptionKey, "0x"))
		if err != nil || len(key) != 32 {
			errs = append(errs, ValidationError{
				Path:    "blobstore.encryption_key",
				Message: "must be 32 bytes of hex",
			})
		}
	}
	if bc.Timeout <= 0 {
		errs = append(errs, ValidationError{Path: "blobstore.timeout", Message: "must be positive"})
	}
	if bc.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Path: "blobstore.max_attempts", Message: "must be >= 1"})
	}
	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error
	ic := c.Index

	switch ic.Driver {
	case "rqlite", "sqlite", "sqlite3", "postgres":
	default:
		errs = append(errs, ValidationError{
			Path:    "index.driver",
			Message: fmt.Sprintf("unknown driver %q", ic.Driver),
			Hint:    "use rqlite, sqlite, sqlite3 or postgres",
		})
	}
	if ic.DSN == "" {
		errs = append(errs, ValidationError{Path: "index.dsn", Message: "must not be empty"})
	}
	return errs
}

func (c *Config) validateIntents() []error {
	var errs []error
	if c.Intents.Path == "" {
		return nil
	}
	if c.Intents.ReconcileInterval <= 0 {
		errs = append(errs, ValidationError{Path: "intents.reconcile_interval", Message: "must be positive"})
	}
	if c.Intents.StaleAfter <= 0 {
		errs = append(errs, ValidationError{Path: "intents.stale_after", Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	lc := c.Logging

	switch strings.ToLower(lc.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid level %q", lc.Level),
			Hint:    "use debug, info, warn or error",
		})
	}
	switch strings.ToLower(lc.Format) {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid format %q", lc.Format),
			Hint:    "use json or console",
		})
	}
	return errs
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host")
			}
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}
