// Package handlers maps HTTP requests to the client core.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rmachado/ledger/internal/core/client"
	"go.opentelemetry.io/otel/trace"
)

func APIMux(s *Server, tracer trace.Tracer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /clients/{id}/transactions", middlewareWeb(tracer, s.Transactions))
	mux.Handle("GET /clients/{id}/statement", middlewareWeb(tracer, s.Statement))

	return mux
}

type Server struct {
	log    *slog.Logger
	client *client.Core
}

func NewServer(log *slog.Logger, c *client.Core) *Server {
	return &Server{log: log, client: c}
}

func (s *Server) Transactions(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s,
		func(ctx context.Context, id int, req TransactionReq) (TransactionResp, error) {
			nt, err := req.toNewTransaction()
			if err != nil {
				return TransactionResp{}, err
			}

			c, err := s.client.AddTransaction(ctx, id, nt)
			if err != nil {
				return TransactionResp{}, err
			}

			return TransactionResp{
				Limit:   c.Limit,
				Balance: c.Balance,
			}, nil
		},
	)
}

func (s *Server) Statement(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s,
		func(ctx context.Context, id int, req struct{}) (StatementResp, error) {
			st, err := s.client.Statement(ctx, id)
			if err != nil {
				return StatementResp{}, err
			}

			return toStatementResp(st), nil
		},
	)
}

func getID(r *http.Request) (int, error) {
	sID := r.PathValue("id")
	return strconv.Atoi(sID)
}

func serveJSON[Req any, Resp any](
	w http.ResponseWriter,
	r *http.Request,
	s *Server,
	fn func(ctx context.Context, id int, req Req) (Resp, error),
) {
	var req Req
	if r.Method != http.MethodGet {
		if r.Header.Get("Content-Type") != "application/json" {
			s.log.Error("request must be a json")
			http.Error(w, "request must be a json", http.StatusBadRequest)
			return
		}

		err := json.NewDecoder(r.Body).Decode(&req)
		r.Body.Close()
		if err != nil {
			s.log.Error("decoding json", "ERROR", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}

	id, err := getID(r)
	if err != nil {
		s.log.Error("getID", "ERROR", err)
		http.Error(w, "invalid id", http.StatusNotFound)
		return
	}

	resp, err := fn(r.Context(), id, req)
	if err != nil {
		s.log.Error("fn", "ERROR", err)
		status := statusCode(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		http.Error(w, msg, status)
		return
	}

	bs, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to encode response", "ERROR", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(bs)
}

// statusCode maps core errors to HTTP statuses. Validation failures and
// denied debits are 422, unknown clients 404, a store timeout 503 so
// the caller knows a retry may succeed.
func statusCode(err error) int {
	switch {
	case errors.Is(err, client.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, client.ErrInvalidKind),
		errors.Is(err, client.ErrInvalidAmount),
		errors.Is(err, client.ErrInvalidDescription),
		errors.Is(err, client.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
