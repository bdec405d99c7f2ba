package ledger

import (
	stderrors "errors"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/carefolio/records/pkg/errors"
)

// JSON-RPC error codes returned by the records program.
const (
	CodeInternal       = -32603
	CodeUnavailable    = -32005
	CodeUnauthorized   = -32010
	CodeInvalidCall    = -32011
	CodeAccountExists  = -32012
	CodeAccountMissing = -32013
	CodeAlreadyRevoked = -32014
	CodeNotCertified   = -32015
	CodeFieldTooLong   = -32016
)

// classify maps a transport or RPC error to LedgerRejected or LedgerUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var httpErr rpc.HTTPError
	if stderrors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500, httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusRequestTimeout:
			return errors.NewLedgerUnavailableError(op, err)
		default:
			return errors.NewLedgerRejectedError(op, httpErr.StatusCode, err)
		}
	}

	var rpcErr rpc.Error
	if stderrors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUnavailable, CodeInternal:
			return errors.NewLedgerUnavailableError(op, err)
		default:
			return errors.NewLedgerRejectedError(op, rpcErr.ErrorCode(), err)
		}
	}

	// Timeouts, refused connections and closed clients are transient.
	return errors.NewLedgerUnavailableError(op, err)
}
