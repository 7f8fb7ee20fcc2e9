package audit

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Handlers serves the audit trail. Callers must be authenticated and hold
// audit.view before reaching them.
type Handlers struct {
	recorder *Recorder
}

// NewHandlers creates audit handlers
func NewHandlers(recorder *Recorder) *Handlers {
	return &Handlers{recorder: recorder}
}

// RegisterRoutes registers the audit routes under /audit on router. mws
// guard only these routes.
func (h *Handlers) RegisterRoutes(router *mux.Router, mws ...mux.MiddlewareFunc) {
	sub := router.PathPrefix("/audit").Subrouter()
	sub.Use(mws...)
	sub.HandleFunc("/events", h.searchEvents).Methods(http.MethodGet)
	sub.HandleFunc("/export", h.exportEvents).Methods(http.MethodGet)
	sub.HandleFunc("/{entityType}/{entityID}", h.getTrail).Methods(http.MethodGet)
}

// getTrail handles GET /audit/{entityType}/{entityID}
func (h *Handlers) getTrail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	logs, err := h.recorder.GetAuditTrail(r.Context(), vars["entityType"], vars["entityID"])
	if err != nil {
		writeReadError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": logs,
		"count":  len(logs),
	})
}

// searchEvents handles GET /audit/events
func (h *Handlers) searchEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	logs, err := h.recorder.Search(r.Context(), filter)
	if err != nil {
		writeReadError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": logs,
		"count":  len(logs),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// exportEvents handles GET /audit/export
func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ExportFormatJSON
	}

	data, err := h.recorder.Export(r.Context(), filter, format)
	if err != nil {
		writeReadError(w, err)
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.json")
	}
	w.Write(data)
}

func writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrNoTenantContext), errors.Is(err, tenant.ErrBypassReasonRequired):
		httputil.WriteForbidden(w, httputil.MsgForbidden)
	case errors.Is(err, ErrUnsupportedFormat):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w)
	}
}

func parseFilter(r *http.Request) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Limit:      100,
	}

	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid user_id")
		}
		filter.UserID = &id
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = strings.Split(v, ",")
	}
	for key, dst := range map[string]**time.Time{"start_time": &filter.StartTime, "end_time": &filter.EndTime} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, errors.New("invalid " + key)
			}
			*dst = &t
		}
	}

	limit, err := httputil.ParseQueryInt(r, "limit", filter.Limit)
	if err != nil || limit < 1 || limit > 1000 {
		return filter, errors.New("limit must be between 1 and 1000")
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		return filter, errors.New("invalid offset")
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}
