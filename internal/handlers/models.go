package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rmachado/ledger/internal/core/client"
)

// TransactionReq carries the amount as a json.Number so a fractional
// amount maps to the validation error instead of a malformed request.
type TransactionReq struct {
	Amount      json.Number `json:"amount"`
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
}

func (r TransactionReq) toNewTransaction() (client.NewTransaction, error) {
	amount, err := strconv.ParseInt(r.Amount.String(), 10, 64)
	if err != nil {
		return client.NewTransaction{}, client.ErrInvalidAmount
	}

	return client.NewTransaction{
		Amount:      amount,
		Kind:        client.Kind(r.Kind),
		Description: r.Description,
	}, nil
}

type TransactionResp struct {
	Limit   int64 `json:"limit"`
	Balance int64 `json:"balance"`
}

type StatementResp struct {
	Balance      int64         `json:"balance"`
	Limit        int64         `json:"limit"`
	AsOf         time.Time     `json:"as_of"`
	Transactions []Transaction `json:"transactions"`
}

type Transaction struct {
	Amount      int64     `json:"amount"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	PerformedAt time.Time `json:"performed_at"`
}

func toStatementResp(st client.Statement) StatementResp {
	return StatementResp{
		Balance:      st.Balance,
		Limit:        st.Limit,
		AsOf:         st.AsOf,
		Transactions: toTransactions(st.LastTransactions),
	}
}

func toTransactions(ts []client.Transaction) []Transaction {
	slice := make([]Transaction, len(ts))
	for i, t := range ts {
		slice[i] = toTransaction(t)
	}
	return slice
}

func toTransaction(t client.Transaction) Transaction {
	return Transaction{
		Amount:      t.Amount,
		Kind:        string(t.Kind),
		Description: t.Description,
		PerformedAt: t.PerformedAt,
	}
}
