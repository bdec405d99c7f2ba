package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/retry"
)

// LoadSigner returns the signer named by cfg: the inline key when set,
// otherwise the key file.
func LoadSigner(cfg config.LedgerConfig) (*KeySigner, error) {
	if cfg.SignerKey != "" {
		return ParseKeySigner(cfg.SignerKey)
	}
	if cfg.SignerKeyFile != "" {
		return LoadKeySigner(cfg.SignerKeyFile)
	}
	return nil, fmt.Errorf("no signer key configured")
}

// Open dials the configured endpoint with the configured signer and retry policy.
func Open(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.ProgramID) {
		return nil, fmt.Errorf("invalid program id %q", cfg.ProgramID)
	}
	signer, err := LoadSigner(cfg)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, cfg.RPCURL, Config{
		Program: common.HexToAddress(cfg.ProgramID),
		Signer:  signer,
		Policy: retry.Policy{
			AttemptTimeout:  cfg.CallTimeout,
			MaxAttempts:     cfg.MaxAttempts,
			InitialInterval: cfg.InitialInterval,
		},
		Logger: logger,
	})
}
