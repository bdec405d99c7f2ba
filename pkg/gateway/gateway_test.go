package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/carefolio/records/pkg/blobstore"
	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/intentlog"
	"github.com/carefolio/records/pkg/ledger"
	"github.com/carefolio/records/pkg/ledger/ledgersim"
	"github.com/carefolio/records/pkg/logging"
	"github.com/carefolio/records/pkg/metrics"
	"github.com/carefolio/records/pkg/orchestrator"
	"github.com/carefolio/records/pkg/query"
	"github.com/carefolio/records/pkg/reconcile"
	"github.com/carefolio/records/pkg/retry"
)

const (
	testDoctor  = "0x1111111111111111111111111111111111111111"
	testUser    = "0x2222222222222222222222222222222222222222"
	testPatient = "0x3333333333333333333333333333333333333333"
	adminToken  = "s3cret"
)

var testProgram = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// flakyIndex fails consultation inserts while fail is set.
type flakyIndex struct {
	*index.Store
	mu   sync.Mutex
	fail bool
}

func (f *flakyIndex) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyIndex) InsertConsultation(ctx context.Context, c *index.ConsultationRecord) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.NewIndexWriteError("consultations", stderrors.New("database is locked"))
	}
	return f.Store.InsertConsultation(ctx, c)
}

type testServer struct {
	handler http.Handler
	sim     *ledgersim.Simulator
	index   *flakyIndex
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	sim := ledgersim.New(testProgram)
	rc, err := sim.DialInProc()
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	signer, err := ledger.ParseKeySigner("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	lc, err := ledger.NewClient(rc, ledger.Config{
		Program: testProgram,
		Signer:  signer,
		Policy:  retry.Policy{AttemptTimeout: time.Second, MaxAttempts: 1},
	})
	require.NoError(t, err)

	store, err := index.Open(ctx, config.IndexConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "index.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	idx := &flakyIndex{Store: store}

	journal, err := intentlog.OpenStorage(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	blobs := blobstore.New(blobstore.NewMemoryBackend(), blobstore.Options{GatewayURL: "https://blobs.test/ipfs"})
	orch := orchestrator.New(orchestrator.Config{
		Blobs:   blobs,
		Ledger:  lc,
		Index:   idx,
		Journal: journal,
		Metrics: rec,
	})
	rcl := reconcile.New(reconcile.Config{
		Journal:  journal,
		Repairer: orch,
		Metrics:  rec,
		Settle:   -1,
	})

	logger, err := logging.NewColoredLogger(false)
	require.NoError(t, err)
	cfg := config.DefaultConfig().Server
	cfg.AdminToken = adminToken
	cfg.RateLimitPerMinute = 0
	cfg.EnableMetrics = true

	g := New(logger, cfg, Deps{
		Writer:     orch,
		Reader:     query.New(blobs, lc, store, nil),
		Intents:    journal,
		Reconciler: rcl,
		Gatherer:   reg,
		Checks: map[string]HealthCheck{
			"ledger": lc.Health,
			"index":  store.Health,
			"blobs":  blobs.Health,
		},
		ProgramID:     testProgram.Hex(),
		SignerAddress: lc.SignerAddress().Hex(),
	})
	return &testServer{handler: g.Routes(), sim: sim, index: idx}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) (int, map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out, w
}

func (s *testServer) certify(t *testing.T) map[string]any {
	t.Helper()
	code, body, _ := s.do(t, http.MethodPost, "/api/doctor/certify", map[string]any{
		"doctorAddress":  testDoctor,
		"doctorName":     "Jane Doe",
		"specialization": "Cardiology",
		"licenseNumber":  "LIC-1",
	})
	require.Equal(t, http.StatusOK, code, body)
	return body
}

func TestCertifyThenVerify(t *testing.T) {
	s := newTestServer(t)
	body := s.certify(t)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["txSignature"])
	require.Contains(t, body["ipfsUrl"], "https://blobs.test/ipfs/")

	code, body, _ := s.do(t, http.MethodGet, "/api/doctor/verify/"+testDoctor, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["isValid"])
	require.Equal(t, "Jane Doe", body["doctorName"])
	require.Equal(t, false, body["revoked"])

	code, body, _ = s.do(t, http.MethodGet, "/api/doctors", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["doctors"], 1)

	code, body, _ = s.do(t, http.MethodPost, "/api/doctor/certify", map[string]any{
		"doctorAddress":  testDoctor,
		"doctorName":     "Jane Doe",
		"specialization": "Cardiology",
		"licenseNumber":  "LIC-1",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["success"])
}

func TestRevokeThenVerify(t *testing.T) {
	s := newTestServer(t)
	s.certify(t)

	code, body, _ := s.do(t, http.MethodPost, "/api/doctor/revoke", map[string]any{
		"doctorAddress": testDoctor,
		"reason":        "license expired",
	})
	require.Equal(t, http.StatusOK, code, body)
	require.NotEmpty(t, body["txSignature"])

	_, body, _ = s.do(t, http.MethodGet, "/api/doctor/verify/"+testDoctor, nil)
	require.Equal(t, false, body["isValid"])
	require.Equal(t, true, body["revoked"])

	code, _, _ = s.do(t, http.MethodPost, "/api/doctor/revoke", map[string]any{"doctorAddress": testDoctor})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestVerifyUnknownDoctor(t *testing.T) {
	s := newTestServer(t)

	code, body, _ := s.do(t, http.MethodGet, "/api/doctor/verify/"+testDoctor, nil)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, false, body["isValid"])
	require.NotEmpty(t, body["error"])

	code, body, _ = s.do(t, http.MethodGet, "/api/doctor/verify/not-an-address", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["isValid"])

	code, _, _ = s.do(t, http.MethodGet, "/api/doctor/"+testDoctor, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestUserLogs(t *testing.T) {
	s := newTestServer(t)
	for i, mins := range []int{30, 45} {
		code, body, _ := s.do(t, http.MethodPost, "/api/user/log", map[string]any{
			"userAddress":     testUser,
			"logType":         "Fitness",
			"healthData":      map[string]any{"steps": 1000 * (i + 1)},
			"notes":           "run",
			"activityType":    "running",
			"durationMinutes": mins,
		})
		require.Equal(t, http.StatusOK, code, body)
		log := body["log"].(map[string]any)
		require.EqualValues(t, i, log["logIndex"])
	}

	code, body, _ := s.do(t, http.MethodGet, "/api/user/logs/"+testUser+"?logType=Fitness", nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["count"])
	logs := body["logs"].([]any)
	require.EqualValues(t, 1, logs[0].(map[string]any)["logIndex"])

	code, body, _ = s.do(t, http.MethodGet, "/api/user/logs/"+testUser+"?logType=PatientHealth", nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 0, body["count"])

	code, _, _ = s.do(t, http.MethodGet, "/api/user/logs/"+testUser+"?logType=Sleep", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, body, _ = s.do(t, http.MethodGet, "/api/user/log/"+testUser+"/0", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]any{"steps": float64(1000)}, body["data"])

	code, _, _ = s.do(t, http.MethodGet, "/api/user/log/"+testUser+"/abc", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _, _ = s.do(t, http.MethodGet, "/api/user/log/"+testUser+"/9", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestConsultationRequiresCertifiedDoctor(t *testing.T) {
	s := newTestServer(t)
	code, body, _ := s.do(t, http.MethodPost, "/api/consultation/create", map[string]any{
		"patientAddress":   testPatient,
		"doctorAddress":    testDoctor,
		"consultationData": map[string]any{"notes": "fever"},
		"diagnosis":        "flu",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["success"])
	require.EqualValues(t, 0, s.sim.TxCount())
}

func TestConsultationIndexFailureIsPartial(t *testing.T) {
	s := newTestServer(t)
	s.certify(t)
	s.index.setFail(true)

	code, body, _ := s.do(t, http.MethodPost, "/api/consultation/create", map[string]any{
		"patientAddress":   testPatient,
		"doctorAddress":    testDoctor,
		"consultationData": map[string]any{"notes": "fever"},
		"diagnosis":        "flu",
		"prescriptionData": map[string]any{"drug": "rest"},
	})
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, false, body["success"])
	require.Equal(t, true, body["partial"])
	require.NotEmpty(t, body["txSignature"])

	account := ledger.ConsultationAddress(testProgram, common.HexToAddress(testPatient), 0)
	st, ok := s.sim.Account(account)
	require.True(t, ok)
	require.Equal(t, "flu", st.Consultation.Diagnosis)

	code, _, _ = s.do(t, http.MethodGet, "/api/consultation/"+testPatient+"/0", nil)
	require.Equal(t, http.StatusNotFound, code)

	auth := []string{"Authorization", "Bearer " + adminToken}
	code, body, _ = s.do(t, http.MethodGet, "/api/admin/intents", nil, auth...)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["count"])

	s.index.setFail(false)
	txBefore := s.sim.TxCount()
	code, body, _ = s.do(t, http.MethodPost, "/api/admin/reconcile", nil, auth...)
	require.Equal(t, http.StatusOK, code, body)
	require.EqualValues(t, 1, body["summary"].(map[string]any)["repaired"])
	require.Equal(t, txBefore, s.sim.TxCount())

	code, body, _ = s.do(t, http.MethodGet, "/api/consultation/"+testPatient+"/0", nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, map[string]any{"notes": "fever"}, body["notes"])
	require.Equal(t, map[string]any{"drug": "rest"}, body["prescription"])

	code, body, _ = s.do(t, http.MethodGet, "/api/consultation/"+testPatient, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["count"])
}

func TestAdminRepair(t *testing.T) {
	s := newTestServer(t)
	s.certify(t)

	req := map[string]any{"kind": "doctor_cert", "subject": testDoctor}
	code, _, w := s.do(t, http.MethodPost, "/api/admin/repair", req)
	require.Equal(t, http.StatusUnauthorized, code)
	require.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	code, _, _ = s.do(t, http.MethodPost, "/api/admin/repair", req, "Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, code)

	code, body, _ := s.do(t, http.MethodPost, "/api/admin/repair", req, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, code, body)
	require.NotNil(t, body["repair"])

	req["kind"] = "bogus"
	code, _, _ = s.do(t, http.MethodPost, "/api/admin/repair", req, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestFetchBlob(t *testing.T) {
	s := newTestServer(t)
	body := s.certify(t)
	cert := body["cert"].(map[string]any)

	code, body, _ := s.do(t, http.MethodGet, "/api/ipfs/"+cert["credentialCid"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	require.Equal(t, "Jane Doe", data["doctorName"])

	code, _, _ = s.do(t, http.MethodGet, "/api/ipfs/not-a-cid", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/user/log", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	code, body, _ := s.do(t, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, false, body["success"])
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)
	_, _, w := s.do(t, http.MethodGet, "/api/doctors", nil, "X-Request-ID", "abc-123")
	require.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	_, _, w = s.do(t, http.MethodGet, "/api/doctors", nil)
	require.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	code, body, _ := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "OK", body["status"])
	require.Equal(t, testProgram.Hex(), body["programId"])
	checks := body["checks"].(map[string]any)
	require.Equal(t, "ok", checks["ledger"])

	s.certify(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "certify_doctor")
}
