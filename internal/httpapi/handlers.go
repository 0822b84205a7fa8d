package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-ledger-cache/ledger"
	"github.com/goliatone/go-ledger-cache/model"
)

type totalsResponse struct {
	UserID  *uuid.UUID      `json:"user_id,omitempty"`
	Income  decimal.Decimal `json:"total_income"`
	Expense decimal.Decimal `json:"total_expense"`
	Net     decimal.Decimal `json:"net_balance"`
}

func newTotalsResponse(t model.Totals) totalsResponse {
	return totalsResponse{Income: t.Income, Expense: t.Expense, Net: t.Net()}
}

func (s *Server) systemTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.totals.GetSystemTotals(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTotalsResponse(totals))
}

func (s *Server) userTotals(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.totals.GetUserTotals(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := newTotalsResponse(totals)
	resp.UserID = &id
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) categoryBreakdown(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reader.CategoryBreakdown(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in ledger.NewUser
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.ledger.CreateUser(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.ledger.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.DeleteUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reconcileUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.ledger.ReconcileUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"daily_records": n})
}

func (s *Server) userDailyRecords(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, end, err := queryDateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.requireUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	records, err := s.reader.DailyRecordsForUserInRange(r.Context(), id, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) monthlySummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	year, month, err := pathYearMonth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.requireUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.reader.MonthlySummary(r.Context(), id, year, month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := newTotalsResponse(totals)
	resp.UserID = &id
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) userCategories(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, end, err := queryDateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.requireUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.reader.UserTransactionSummary(r.Context(), id, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// requireUser turns an unknown user id into NotFound instead of an empty read.
func (s *Server) requireUser(ctx context.Context, id uuid.UUID) error {
	ok, err := s.reader.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("user not found", ledger.TextCodeUserNotFound)
	}
	return nil
}

func (s *Server) dailyRecordsOnDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"), "date")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records, err := s.reader.DailyRecordsOnDate(r.Context(), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) recordTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var typ *model.TransactionType
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := parseType(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		typ = &t
	}

	ok, err := s.reader.DailyRecordExists(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, notFound("daily record not found", "DAILY_RECORD_NOT_FOUND"))
		return
	}

	txs, err := s.reader.TransactionsForDailyRecord(r.Context(), id, typ)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

// transactions searches by type and category when type is given, and by
// date range otherwise.
func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		typ, err := parseType(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		category := q.Get("category")
		if category == "" {
			s.fail(w, r, badInput("category is required with type", "MISSING_CATEGORY"))
			return
		}
		ci, _ := strconv.ParseBool(q.Get("case_insensitive"))

		txs, err := s.reader.TransactionsByTypeAndCategory(r.Context(), typ, category, ci)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(txs))
		return
	}

	start, end, err := queryDateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	txs, err := s.reader.TransactionsInDateRange(r.Context(), start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.reader.TransactionByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type transactionRequest struct {
	UserID   uuid.UUID             `json:"user_id"`
	Date     string                `json:"date"`
	Type     model.TransactionType `json:"type"`
	Category string                `json:"category"`
	Amount   decimal.Decimal       `json:"amount"`
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	in := ledger.NewTransaction{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Amount:   req.Amount,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date, "date")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		in.Date = date
	}

	tx, err := s.ledger.RecordTransaction(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

type transactionPatch struct {
	Date     *string                `json:"date"`
	Type     *model.TransactionType `json:"type"`
	Category *string                `json:"category"`
	Amount   *decimal.Decimal       `json:"amount"`
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req transactionPatch
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	in := ledger.TransactionUpdate{Type: req.Type, Category: req.Category, Amount: req.Amount}
	if req.Date != nil {
		date, err := parseDate(*req.Date, "date")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		in.Date = &date
	}

	tx, err := s.ledger.UpdateTransaction(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil renders empty results as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
