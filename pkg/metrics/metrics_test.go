package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carefolio/records/pkg/errors"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveStage("certify_doctor", StageStore, time.Now(), nil)
	r.ObserveStage("certify_doctor", StageAttest, time.Now(), errors.NewLedgerUnavailableError("submit", nil))
	r.ObserveOutcome("certify_doctor", OutcomeFailed)
	r.ObserveRepair("user_log", nil)
	r.SetPendingIntents(2)

	body := scrape(t, reg)
	for _, want := range []string{
		`carefolio_stage_total{code="LEDGER_UNAVAILABLE",operation="certify_doctor",stage="attest"} 1`,
		`carefolio_stage_total{code="OK",operation="certify_doctor",stage="store"} 1`,
		`carefolio_operations_total{operation="certify_doctor",outcome="failed"} 1`,
		`carefolio_index_repairs_total{kind="user_log",result="ok"} 1`,
		`carefolio_pending_intents 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveStage("x", StageIndex, time.Now(), nil)
	r.ObserveOutcome("x", OutcomeDone)
	r.ObserveRepair("x", nil)
	r.SetPendingIntents(1)
}
