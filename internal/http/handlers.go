package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"arcreceipts/internal/export"
	applog "arcreceipts/internal/log"
	"arcreceipts/internal/services"

	"github.com/go-chi/chi/v5"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "component", "http", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, StateChainUnavailable, "chain backend unavailable").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) scanContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.scanTimeout)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := FromError(err)
	if resp.statusCode >= 500 {
		fields := applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path)
		if addr := chi.URLParam(r, "address"); addr != "" {
			fields = fields.WithAddress(addr)
		}
		applog.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, fields)
	}
	resp.Write(w)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	subject, err := ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, applog.OpLatest, err)
		return
	}
	ctx, cancel := s.scanContext(r)
	defer cancel()

	latest, err := s.receipts.Latest(ctx, subject)
	if err != nil {
		s.fail(w, r, applog.OpLatest, err)
		return
	}
	NewJSONResponse().Body(latest).Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	subject, err := ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, applog.OpHistory, err)
		return
	}
	q, err := ParseHistoryQuery(subject, r.URL.Query())
	if err != nil {
		s.fail(w, r, applog.OpHistory, err)
		return
	}
	ctx, cancel := s.scanContext(r)
	defer cancel()

	h, err := s.receipts.History(ctx, q)
	if err != nil {
		s.fail(w, r, applog.OpHistory, err)
		return
	}
	NewJSONResponse().Body(h).Write(w)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	subject, err := ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, applog.OpAnalytics, err)
		return
	}
	ctx, cancel := s.scanContext(r)
	defer cancel()

	a, ok, err := s.receipts.Analytics(ctx, subject)
	if err != nil {
		s.fail(w, r, applog.OpAnalytics, err)
		return
	}
	setWindowHeaders(w.Header(), a.Window)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	NewJSONResponse().Body(a).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	subject, err := ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, applog.OpExport, err)
		return
	}
	ctx, cancel := s.scanContext(r)
	defer cancel()

	file, err := s.receipts.Export(ctx, subject)
	if err != nil {
		s.fail(w, r, applog.OpExport, err)
		return
	}
	setWindowHeaders(w.Header(), file.Window)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := ParseReceiptID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, applog.OpDetail, err)
		return
	}
	q := r.URL.Query()
	ctx, cancel := s.scanContext(r)
	defer cancel()

	d, err := s.receipts.Detail(ctx, id, sanitizeInput(q.Get("viewer")), sanitizeInput(q.Get("tx")))
	if err != nil {
		s.fail(w, r, applog.OpDetail, err)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

// setWindowHeaders reports the lookback boundary on responses whose body
// has no room for it.
func setWindowHeaders(h http.Header, win services.Window) {
	h.Set(HeaderScanTruncated, strconv.FormatBool(win.Truncated))
	h.Set(HeaderOldestScanned, strconv.FormatUint(win.OldestScanned, 10))
}
