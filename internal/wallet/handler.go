package wallet

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/ledger"
	"github.com/towlink/towlink/internal/middleware"
	"github.com/towlink/towlink/internal/responses"
	"github.com/towlink/towlink/internal/validation"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get returns the caller's wallet, creating it on first access.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.GetOrCreate(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return responses.OK(c, toWalletResponse(w))
}

// Transactions lists the caller's history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	var q listQuery
	if err := validation.BindQuery(c, &q); err != nil {
		return err
	}
	txs, err := h.service.Transactions(c.UserContext(), middleware.UserID(c), q.Limit)
	if err != nil {
		return err
	}
	return responses.OK(c, toTransactionResponses(txs))
}

// Credit records a pending top-up for admin review.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req creditRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	tx, err := h.service.Credit(c.UserContext(), CreditInput{UserID: middleware.UserID(c), Amount: req.Amount, Proof: req.Proof})
	if err != nil {
		return err
	}
	return responses.Created(c, toTransactionResponse(tx))
}

// Debit decrements the caller's balance immediately.
func (h *Handler) Debit(c *fiber.Ctx) error {
	var req debitRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	tx, err := h.service.Debit(c.UserContext(), DebitInput{
		UserID:        middleware.UserID(c),
		Amount:        req.Amount,
		RideRequestID: req.RideRequestID,
		Remarks:       req.Remarks,
	})
	if err != nil {
		return err
	}
	return responses.Created(c, toTransactionResponse(tx))
}

// SetStatus confirms or rejects a pending credit.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	var (
		tx  ledger.Transaction
		err error
	)
	if req.Status == string(ledger.StatusConfirmed) {
		tx, err = h.service.ConfirmCredit(c.UserContext(), c.Params("id"), middleware.UserID(c), req.Note)
	} else {
		tx, err = h.service.RejectCredit(c.UserContext(), c.Params("id"), middleware.UserID(c), req.Note)
	}
	if err != nil {
		return err
	}
	return responses.OK(c, toTransactionResponse(tx))
}

// AdminTransactions lists transactions for moderation, pending credits by default.
func (h *Handler) AdminTransactions(c *fiber.Ctx) error {
	var q listQuery
	if err := validation.BindQuery(c, &q); err != nil {
		return err
	}
	var (
		txs []ledger.Transaction
		err error
	)
	if q.Status == "" || q.Status == string(ledger.StatusPending) {
		txs, err = h.service.PendingCredits(c.UserContext(), q.Limit)
	} else {
		txs, err = h.service.ByStatus(c.UserContext(), ledger.TransactionStatus(q.Status), q.Limit)
	}
	if err != nil {
		return err
	}
	return responses.OK(c, toTransactionResponses(txs))
}
