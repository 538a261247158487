package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/ledger"
)

type creditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Proof  string          `json:"proof" validate:"max=500"`
}

type debitRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	RideRequestID string          `json:"rideRequestId" validate:"omitempty,uuid"`
	Remarks       string          `json:"remarks" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed cancelled"`
	Note   string `json:"note" validate:"max=500"`
}

type listQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending confirmed cancelled"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

type walletResponse struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	Balance           string `json:"balance"`
	Currency          string `json:"currency"`
	LastTransactionID string `json:"lastTransactionId,omitempty"`
	UpdatedAt         string `json:"updatedAt"`
}

type logEntryResponse struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Note   string `json:"note,omitempty"`
	At     string `json:"at"`
}

type transactionResponse struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	WalletID      string             `json:"walletId"`
	Type          string             `json:"type"`
	Amount        string             `json:"amount"`
	Status        string             `json:"status"`
	Proof         string             `json:"proof,omitempty"`
	Remarks       string             `json:"remarks,omitempty"`
	RideRequestID string             `json:"rideRequestId,omitempty"`
	BalanceAfter  string             `json:"balanceAfter"`
	Log           []logEntryResponse `json:"log"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt"`
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:                w.ID,
		UserID:            w.UserID,
		Balance:           w.Balance.StringFixed(2),
		Currency:          w.Currency,
		LastTransactionID: w.LastTransactionID,
		UpdatedAt:         w.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionResponse(tx ledger.Transaction) transactionResponse {
	entries := make([]logEntryResponse, 0, len(tx.Log))
	for _, e := range tx.Log {
		entries = append(entries, logEntryResponse{Action: e.Action, Actor: e.Actor, Note: e.Note, At: e.At.Format(time.RFC3339)})
	}
	return transactionResponse{
		ID:            tx.ID,
		UserID:        tx.UserID,
		WalletID:      tx.WalletID,
		Type:          string(tx.Type),
		Amount:        tx.Amount.StringFixed(2),
		Status:        string(tx.Status),
		Proof:         tx.Proof,
		Remarks:       tx.Remarks,
		RideRequestID: tx.RideRequestID,
		BalanceAfter:  tx.BalanceAfter.StringFixed(2),
		Log:           entries,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     tx.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionResponses(txs []ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return out
}
