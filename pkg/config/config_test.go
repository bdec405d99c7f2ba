package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Ledger.ProgramID = "0x00000000000000000000000000000000000000aa"
	cfg.Ledger.SignerKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	return cfg
}

func TestDefaultConfigNeedsLedgerIdentity(t *testing.T) {
	errs := DefaultConfig().Validate()
	paths := map[string]bool{}
	for _, err := range errs {
		paths[err.(ValidationError).Path] = true
	}
	if !paths["ledger.program_id"] || !paths["ledger.signer_key"] {
		t.Fatalf("expected program_id and signer_key errors, got %v", errs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad listen addr", func(c *Config) { c.Server.ListenAddr = "5000" }, "server.listen_addr"},
		{"both signer sources", func(c *Config) { c.Ledger.SignerKeyFile = "/tmp/key" }, "ledger.signer_key"},
		{"rpc scheme", func(c *Config) { c.Ledger.RPCURL = "ftp://ledger" }, "ledger.rpc_url"},
		{"unknown blob driver", func(c *Config) { c.BlobStore.Driver = "gcs" }, "blobstore.driver"},
		{"s3 without bucket", func(c *Config) { c.BlobStore.Driver = "s3" }, "blobstore.s3.bucket"},
		{"short encryption key", func(c *Config) { c.BlobStore.EncryptionKey = "abcd" }, "blobstore.encryption_key"},
		{"unknown index driver", func(c *Config) { c.Index.Driver = "mongo" }, "index.driver"},
		{"intents interval", func(c *Config) {
			c.Intents.Path = "/var/lib/carefolio/intents"
			c.Intents.ReconcileInterval = 0
		}, "intents.reconcile_interval"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()

			if tt.wantPath == "" {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			found := false
			for _, err := range errs {
				if ve, ok := err.(ValidationError); ok && ve.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error at %s, got %v", tt.wantPath, errs)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "gateway.yaml")
		yaml := `
server:
  listen_addr: ":7000"
ledger:
  program_id: "0x00000000000000000000000000000000000000aa"
  call_timeout: 5s
index:
  driver: sqlite
  dsn: /var/lib/carefolio/index.db
`
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Server.ListenAddr != ":7000" {
			t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
		}
		if cfg.Ledger.CallTimeout != 5*time.Second {
			t.Errorf("call_timeout = %v", cfg.Ledger.CallTimeout)
		}
		if cfg.Index.Driver != "sqlite" {
			t.Errorf("index.driver = %q", cfg.Index.Driver)
		}
		if cfg.BlobStore.Driver != "ipfs" {
			t.Errorf("blobstore default lost: %q", cfg.BlobStore.Driver)
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("server:\n  listen: \":1\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "invalid config") {
			t.Fatalf("expected strict decode error, got %v", err)
		}
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Server.ListenAddr != ":5000" {
			t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
		}
	})
}
