package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/orchestrator"
)

func (g *Gateway) appendLogHandler(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.LogRequest
	if !g.decode(w, r, &req) {
		return
	}
	res, err := g.deps.Writer.AppendUserLog(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"log":         res.Log,
		"txSignature": res.TxSignature,
		"ipfsUrl":     res.IPFSURL,
	})
}

func (g *Gateway) listLogsHandler(w http.ResponseWriter, r *http.Request) {
	logs, err := g.deps.Reader.ListLogs(r.Context(), chi.URLParam(r, "address"), httputil.QueryParam(r, "logType", ""))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"logs": logs, "count": len(logs)})
}

func (g *Gateway) getLogHandler(w http.ResponseWriter, r *http.Request) {
	seq, ok := sequenceParam(w, r)
	if !ok {
		return
	}
	view, err := g.deps.Reader.GetLog(r.Context(), chi.URLParam(r, "address"), seq)
	if err != nil {
		if view != nil {
			writeErrWith(w, r, err, map[string]any{"log": view.Log, "data": nil})
			return
		}
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"log": view.Log, "data": view.Data})
}

func (g *Gateway) createConsultationHandler(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ConsultationRequest
	if !g.decode(w, r, &req) {
		return
	}
	res, err := g.deps.Writer.CreateConsultation(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"consultation":    res.Consultation,
		"txSignature":     res.TxSignature,
		"notesUrl":        res.NotesURL,
		"prescriptionUrl": res.PrescriptionURL,
	})
}

func (g *Gateway) listConsultationsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := g.deps.Reader.ListConsultations(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"consultations": list, "count": len(list)})
}

func (g *Gateway) getConsultationHandler(w http.ResponseWriter, r *http.Request) {
	seq, ok := sequenceParam(w, r)
	if !ok {
		return
	}
	view, err := g.deps.Reader.GetConsultation(r.Context(), chi.URLParam(r, "address"), seq)
	if err != nil {
		if view != nil {
			writeErrWith(w, r, err, map[string]any{
				"consultation": view.Consultation,
				"notes":        view.Notes,
				"prescription": view.Prescription,
			})
			return
		}
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{
		"consultation": view.Consultation,
		"notes":        view.Notes,
		"prescription": view.Prescription,
	})
}

func (g *Gateway) fetchBlobHandler(w http.ResponseWriter, r *http.Request) {
	data, err := g.deps.Reader.FetchBlob(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"data": data})
}
