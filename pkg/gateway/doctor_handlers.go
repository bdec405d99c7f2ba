package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/orchestrator"
)

func (g *Gateway) certifyDoctorHandler(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CertifyRequest
	if !g.decode(w, r, &req) {
		return
	}
	res, err := g.deps.Writer.CertifyDoctor(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"cert":        res.Cert,
		"txSignature": res.TxSignature,
		"ipfsUrl":     res.IPFSURL,
	})
}

func (g *Gateway) listDoctorsHandler(w http.ResponseWriter, r *http.Request) {
	doctors, err := g.deps.Reader.ListDoctors(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"doctors": doctors})
}

func (g *Gateway) getDoctorHandler(w http.ResponseWriter, r *http.Request) {
	doctor, err := g.deps.Reader.GetDoctor(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"doctor": doctor})
}

// verifyDoctorHandler reports the ledger's view. Any failure other than a
// malformed address is a 500 with isValid:false.
func (g *Gateway) verifyDoctorHandler(w http.ResponseWriter, r *http.Request) {
	v, err := g.deps.Reader.VerifyDoctor(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsValidation(err) {
			status = http.StatusBadRequest
		}
		httputil.WriteJSON(w, status, map[string]any{
			"success": false,
			"isValid": false,
			"error":   err.Error(),
			"code":    errors.GetErrorCode(err),
		})
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"isValid":        v.IsValid,
		"doctorName":     v.DoctorName,
		"specialization": v.Specialization,
		"licenseNumber":  v.LicenseNumber,
		"issuedAt":       v.IssuedAt,
		"revoked":        v.Revoked,
	})
}

func (g *Gateway) revokeDoctorHandler(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RevokeRequest
	if !g.decode(w, r, &req) {
		return
	}
	res, err := g.deps.Writer.RevokeCertification(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"txSignature": res.TxSignature})
}
