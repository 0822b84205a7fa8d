package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an error category to the response status.
func statusFor(err error) int {
	switch {
	case errors.HasCategory(err, errors.CategoryValidation),
		errors.HasCategory(err, errors.CategoryBadInput):
		return http.StatusBadRequest
	case errors.HasCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.HasCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)

	var body *errors.Error
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			logging.FieldMethod, r.Method,
			logging.FieldPath, r.URL.Path,
			logging.Err(err),
		)
		body = errors.New("internal server error", errors.CategoryInternal).WithTextCode("INTERNAL_ERROR")
	} else {
		var e *errors.Error
		if errors.As(err, &e) {
			body = e.Clone()
			body.Source = nil
		} else {
			body = errors.New(err.Error(), errors.HTTPStatusToCategory(status))
		}
	}
	body.Code = status

	writeJSON(w, status, body.ToErrorResponse(false, nil))
}

func badInput(msg, code string) error {
	return errors.New(msg, errors.CategoryBadInput).WithTextCode(code)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "malformed request body").
			WithTextCode("MALFORMED_BODY")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, badInput(name+" must be a UUID", "INVALID_ID")
	}
	return id, nil
}

func parseDate(value, name string) (time.Time, error) {
	d, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, badInput(name+" must be a YYYY-MM-DD date", "INVALID_DATE")
	}
	return d, nil
}

// queryDateRange reads the required start and end query parameters.
func queryDateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := parseDate(q.Get("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(q.Get("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func pathYearMonth(r *http.Request) (int, time.Month, error) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil || year < 1 {
		return 0, 0, badInput("year must be a positive number", "INVALID_YEAR")
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, badInput("month must be between 1 and 12", "INVALID_MONTH")
	}
	return year, time.Month(month), nil
}

func parseType(value string) (model.TransactionType, error) {
	typ := model.TransactionType(value)
	if !typ.IsValid() {
		return "", badInput("type must be income or expense", "INVALID_TYPE")
	}
	return typ, nil
}

func notFound(msg, code string) error {
	return errors.New(msg, errors.CategoryNotFound).WithTextCode(code)
}
