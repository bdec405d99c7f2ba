package gateway

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/logging"
)

type repairRequest struct {
	Kind     string `json:"kind"`
	Subject  string `json:"subject"`
	Sequence uint64 `json:"sequence"`
}

// repairHandler rebuilds one index row from ledger state.
func (g *Gateway) repairHandler(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if !g.decode(w, r, &req) {
		return
	}
	res, err := g.deps.Writer.RepairIndex(r.Context(), index.Kind(req.Kind), req.Subject, req.Sequence)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	g.logger.ComponentInfo(logging.ComponentGateway, "index repaired",
		zap.String("kind", req.Kind),
		zap.String("subject", res.Subject),
		zap.Uint64("sequence", res.Sequence),
		zap.String("request_id", RequestID(r.Context())))
	httputil.WriteSuccess(w, map[string]any{"repair": res})
}

func (g *Gateway) listIntentsHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Intents == nil {
		writeFailure(w, http.StatusServiceUnavailable, "intent journal disabled")
		return
	}
	intents, err := g.deps.Intents.List()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"intents": intents, "count": len(intents)})
}

func (g *Gateway) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Reconciler == nil {
		writeFailure(w, http.StatusServiceUnavailable, "reconciler disabled")
		return
	}
	sum, err := g.deps.Reconciler.RunOnce(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"summary": sum})
}
