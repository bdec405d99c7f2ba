// Package ledger talks to the records program over JSON-RPC: it derives
// account addresses, signs and submits calls, and reads account state.
package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/retry"
)

const (
	methodSubmit     = "ledger_submit"
	methodGetAccount = "ledger_getAccount"
)

// Client submits signed calls to the records program.
type Client struct {
	rpc     *rpc.Client
	program common.Address
	signer  Signer
	policy  retry.Policy
	logger  *zap.Logger
}

// Config holds ledger client construction parameters.
type Config struct {
	Program common.Address
	Signer  Signer
	Policy  retry.Policy
	Logger  *zap.Logger
}

// Dial connects to the ledger RPC endpoint at url.
func Dial(ctx context.Context, url string, cfg Config) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", url, err)
	}
	return NewClient(rc, cfg)
}

// NewClient wraps an existing RPC client.
func NewClient(rc *rpc.Client, cfg Config) (*Client, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("ledger client requires a signer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		rpc:     rc,
		program: cfg.Program,
		signer:  cfg.Signer,
		policy:  cfg.Policy,
		logger:  logger,
	}, nil
}

// ProgramID returns the records program address.
func (c *Client) ProgramID() common.Address { return c.program }

// SignerAddress returns the address calls are signed with.
func (c *Client) SignerAddress() common.Address { return c.signer.Address() }

// DeriveAddress derives an account address under this client's program.
func (c *Client) DeriveAddress(ns Namespace, parts ...[]byte) common.Address {
	return DeriveAddress(c.program, ns, parts...)
}

// Submit signs call and submits it, returning the transaction id. The call
// is signed once with a fresh nonce; retries resend the same envelope so the
// program can recognize a duplicate delivery, while a second Submit of equal
// arguments is a new call.
func (c *Client) Submit(ctx context.Context, call Call) (string, error) {
	if call.Nonce == "" {
		call.Nonce = uuid.NewString()
	}
	signed, err := SignCall(c.signer, c.program, call)
	if err != nil {
		return "", errors.NewInternalError("sign ledger call", err).WithOperation(string(call.Instruction))
	}

	op := string(call.Instruction)
	txID, err := retry.Do(ctx, c.policy, c.logger, op, func(ctx context.Context) (string, error) {
		var tx string
		if err := c.rpc.CallContext(ctx, &tx, methodSubmit, signed); err != nil {
			return "", classify(op, err)
		}
		return tx, nil
	})
	if err != nil {
		c.logger.Warn("Ledger submit failed",
			zap.String("instruction", op),
			zap.String("account", call.Account.Hex()),
			zap.Error(err))
		return "", err
	}

	c.logger.Debug("Ledger call accepted",
		zap.String("instruction", op),
		zap.String("account", call.Account.Hex()),
		zap.String("tx", txID))
	return txID, nil
}

// ReadState returns the state of account, or a not found error when the
// account does not exist.
func (c *Client) ReadState(ctx context.Context, account common.Address) (*AccountState, error) {
	state, err := retry.Do(ctx, c.policy, c.logger, "get_account", func(ctx context.Context) (*AccountState, error) {
		var st *AccountState
		if err := c.rpc.CallContext(ctx, &st, methodGetAccount, account); err != nil {
			return nil, classify("get_account", err)
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.NewNotFoundError("ledger account", account.Hex())
	}
	return state, nil
}

// Health checks that the endpoint serves the ledger namespace.
func (c *Client) Health(ctx context.Context) error {
	var modules map[string]string
	if err := c.rpc.CallContext(ctx, &modules, "rpc_modules"); err != nil {
		return classify("health", err)
	}
	if _, ok := modules["ledger"]; !ok {
		return fmt.Errorf("endpoint does not serve the ledger namespace")
	}
	return nil
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}
