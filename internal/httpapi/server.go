// Package httpapi exposes the ledger, its cached totals and the query layer
// as JSON over HTTP.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/ledger"
	"github.com/goliatone/go-ledger-cache/model"
)

// Totals serves cached aggregates.
type Totals interface {
	GetSystemTotals(ctx context.Context) (model.Totals, error)
	GetUserTotals(ctx context.Context, userID uuid.UUID) (model.Totals, error)
}

// Reader is the read side of the query layer.
type Reader interface {
	DailyRecordsForUserInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]model.DailyRecord, error)
	DailyRecordsOnDate(ctx context.Context, date time.Time) ([]model.DailyRecord, error)
	MonthlySummary(ctx context.Context, userID uuid.UUID, year int, month time.Month) (model.Totals, error)
	TransactionsForDailyRecord(ctx context.Context, recordID uuid.UUID, typ *model.TransactionType) ([]model.Transaction, error)
	TransactionsByTypeAndCategory(ctx context.Context, typ model.TransactionType, category string, caseInsensitive bool) ([]model.Transaction, error)
	TransactionsInDateRange(ctx context.Context, start, end time.Time) ([]model.Transaction, error)
	UserTransactionSummary(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]model.CategorySummary, error)
	CategoryBreakdown(ctx context.Context) ([]model.CategoryStat, error)
	Stats(ctx context.Context) (model.DatabaseStats, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	DailyRecordExists(ctx context.Context, id uuid.UUID) (bool, error)
	TransactionByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
}

// Ledger is the write side.
type Ledger interface {
	CreateUser(ctx context.Context, in ledger.NewUser) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	RecordTransaction(ctx context.Context, in ledger.NewTransaction) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, in ledger.TransactionUpdate) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ReconcileUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// Server routes API requests to the services.
type Server struct {
	totals Totals
	reader Reader
	ledger Ledger
	logger *slog.Logger
	router *mux.Router
}

func NewServer(totals Totals, reader Reader, ledger Ledger, logger *slog.Logger) *Server {
	s := &Server{
		totals: totals,
		reader: reader,
		ledger: ledger,
		logger: logging.Component(logger, logging.ComponentHTTP),
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/totals", s.systemTotals).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/stats/categories", s.categoryBreakdown).Methods(http.MethodGet)

	api.HandleFunc("/users", s.createUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", s.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.deleteUser).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/totals", s.userTotals).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/daily-records", s.userDailyRecords).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/summary/{year:[0-9]+}/{month:[0-9]+}", s.monthlySummary).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/categories", s.userCategories).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/reconcile", s.reconcileUser).Methods(http.MethodPost)

	api.HandleFunc("/daily-records", s.dailyRecordsOnDate).Methods(http.MethodGet)
	api.HandleFunc("/daily-records/{id}/transactions", s.recordTransactions).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.transactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.recordTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.getTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.updateTransaction).Methods(http.MethodPatch)
	api.HandleFunc("/transactions/{id}", s.deleteTransaction).Methods(http.MethodDelete)
}

// Handler returns the router wrapped with panic recovery and access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info("request",
		logging.FieldMethod, p.Request.Method,
		logging.FieldPath, p.URL.Path,
		logging.FieldStatus, p.StatusCode,
		"size", p.Size,
		logging.FieldDuration, time.Since(p.TimeStamp).Milliseconds(),
	)
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("panic recovered", "panic", v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, s.logger, err)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
