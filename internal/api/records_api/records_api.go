package records_api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/lifecycle"
	"github.com/BearBump/LoanBox/internal/models"
	"github.com/BearBump/LoanBox/internal/services/records"
)

const maxDeriveBody = 1 << 20

type RecordsAPI struct {
	svc      *records.Service
	validate *validator.Validate
}

func New(svc *records.Service) *RecordsAPI {
	return &RecordsAPI{svc: svc, validate: validator.New()}
}

// Routes registers the v1 JSON endpoints on r.
func (a *RecordsAPI) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/records", a.CreateRecords)
		r.Get("/records", a.GetRecordsByIds)
		r.Get("/records/search", a.ListRecords)
		r.Get("/records/{id}/events", a.ListStatusEvents)
		r.Post("/records/{id}/refresh", a.RefreshRecord)
		r.Post("/derive/{kind}", a.Derive)
		r.Post("/fines/transition", a.TransitionFine)
	})
}

type createRecordsRequest struct {
	Items []recordCreateInput `json:"items" validate:"required,min=1,max=10000,dive"`
}

type recordCreateInput struct {
	Kind       string `json:"kind" validate:"required,oneof=borrow return delivery"`
	ExternalID string `json:"externalId" validate:"required,max=128"`
}

type recordsResponse struct {
	Records []recordDTO `json:"records"`
}

type recordDTO struct {
	ID             uint64       `json:"id"`
	Kind           models.Kind  `json:"kind"`
	ExternalID     string       `json:"externalId"`
	Status         string       `json:"status"`
	StatusRaw      string       `json:"statusRaw"`
	View           *models.View `json:"view,omitempty"`
	DueAt          *time.Time   `json:"dueAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	LastCheckedAt  *time.Time   `json:"lastCheckedAt,omitempty"`
	NextCheckAt    time.Time    `json:"nextCheckAt"`
	CheckFailCount int32        `json:"checkFailCount"`
	LastError      string       `json:"lastError,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type statusEventDTO struct {
	ID          uint64    `json:"id"`
	RecordID    uint64    `json:"recordId"`
	Status      string    `json:"status"`
	StatusRaw   string    `json:"statusRaw"`
	EventTime   time.Time `json:"eventTime"`
	Description string    `json:"description,omitempty"`
	OutOfOrder  bool      `json:"outOfOrder,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type transitionFineRequest struct {
	Fine   models.FineRecord `json:"fine"`
	To     string            `json:"to" validate:"required,oneof=unpaid pending_cash_payment paid failed"`
	Method string            `json:"method" validate:"omitempty,oneof=cash card"`
}

type transitionFineResponse struct {
	Fine   models.FineRecord `json:"fine"`
	Reason string            `json:"reason,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (a *RecordsAPI) CreateRecords(w http.ResponseWriter, r *http.Request) {
	var req createRecordsRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := make([]models.RecordCreateInput, 0, len(req.Items))
	for _, it := range req.Items {
		in = append(in, models.RecordCreateInput{Kind: models.Kind(it.Kind), ExternalID: it.ExternalID})
	}
	recs, err := a.svc.CreateRecords(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: toRecordDTOs(recs)})
}

// GetRecordsByIds accepts ids as a comma separated list, repeated
// parameters, or both.
func (a *RecordsAPI) GetRecordsByIds(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query()["ids"])
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := a.svc.GetRecordsByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: toRecordDTOs(recs)})
}

func (a *RecordsAPI) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.RecordFilter{Kind: models.Kind(q.Get("kind"))}
	for _, v := range q["status"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Statuses = append(f.Statuses, s)
			}
		}
	}
	if v := q.Get("overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, badRequest("overdue must be a boolean"))
			return
		}
		f.Overdue = &b
	}
	var err error
	if f.Limit, f.Offset, err = paging(q.Get("limit"), q.Get("offset")); err != nil {
		writeError(w, err)
		return
	}

	recs, err := a.svc.ListRecords(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: toRecordDTOs(recs)})
}

func (a *RecordsAPI) ListStatusEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, offset, err := paging(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	evs, err := a.svc.ListStatusEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]statusEventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, statusEventDTO{
			ID:          e.ID,
			RecordID:    e.RecordID,
			Status:      e.Status,
			StatusRaw:   e.StatusRaw,
			EventTime:   e.EventTime,
			Description: derefString(e.Description),
			OutOfOrder:  e.OutOfOrder,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *RecordsAPI) RefreshRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.svc.RefreshRecord(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Derive returns the view of an ad-hoc backend payload without storing it.
func (a *RecordsAPI) Derive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDeriveBody))
	if err != nil {
		writeError(w, badRequest("read body: "+err.Error()))
		return
	}
	v, err := a.svc.Derive(r.Context(), models.Kind(chi.URLParam(r, "kind")), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// TransitionFine applies one payment step. A refused step answers 409 with
// the unchanged fine and the reason code.
func (a *RecordsAPI) TransitionFine(w http.ResponseWriter, r *http.Request) {
	var req transitionFineRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Fine.Status == "" {
		req.Fine.Status = models.FineUnpaid
	}
	f, err := a.svc.TransitionFine(req.Fine, models.FineStatus(req.To), models.PaymentMethod(req.Method))
	if err != nil {
		reason, ok := models.NoOpReason(err)
		if !ok {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusConflict, transitionFineResponse{Fine: f, Reason: string(reason), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transitionFineResponse{Fine: f})
}

func (a *RecordsAPI) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("decode body: " + err.Error())
	}
	if err := a.validate.Struct(dst); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func badRequest(msg string) error {
	return errors.Wrap(records.ErrInvalidArgument, msg)
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return id, nil
}

func parseIDs(values []string) ([]uint64, error) {
	var out []uint64
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, badRequest("ids must be positive integers")
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func paging(limit, offset string) (int, int, error) {
	var l, o int
	var err error
	if limit != "" {
		if l, err = strconv.Atoi(limit); err != nil || l < 0 {
			return 0, 0, badRequest("limit must be a non-negative integer")
		}
	}
	if offset != "" {
		if o, err = strconv.Atoi(offset); err != nil || o < 0 {
			return 0, 0, badRequest("offset must be a non-negative integer")
		}
	}
	return l, o, nil
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, records.ErrInvalidArgument), errors.Is(err, lifecycle.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoOp):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		slog.Error("records api", "error", err.Error())
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func toRecordDTOs(recs []*models.Record) []recordDTO {
	out := make([]recordDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordDTO{
			ID:             r.ID,
			Kind:           r.Kind,
			ExternalID:     r.ExternalID,
			Status:         r.Status,
			StatusRaw:      r.StatusRaw,
			View:           r.View,
			DueAt:          r.DueAt,
			CompletedAt:    r.CompletedAt,
			LastCheckedAt:  r.LastCheckedAt,
			NextCheckAt:    r.NextCheckAt,
			CheckFailCount: r.CheckFailCount,
			LastError:      derefString(r.LastError),
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
