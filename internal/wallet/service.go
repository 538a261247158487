package wallet

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/infra"
	"github.com/towlink/towlink/internal/ledger"
	"github.com/towlink/towlink/internal/metrics"
)

const (
	// MaxProofLength bounds the free-text proof attached to a credit request.
	MaxProofLength = 500
	// DefaultListLimit caps history reads when the caller gives no limit.
	DefaultListLimit = 100
)

var (
	// MaxCreditAmount is the sanity ceiling for a single credit request.
	MaxCreditAmount = decimal.NewFromInt(1_000_000)

	commissionRate = decimal.New(10, -2)
)

// ErrAlreadyProcessed reports a settle attempt on a non-pending transaction.
var ErrAlreadyProcessed = errors.New("transaction already processed")

// Commission returns the platform fee for an offered price: 10% rounded
// half-up at the cent.
func Commission(price decimal.Decimal) decimal.Decimal {
	return price.Mul(commissionRate).Round(2)
}

// Service implements the wallet ledger on top of a ledger.Store. Every
// balance mutation happens inside a unit of work together with the
// transaction record explaining it.
type Service struct {
	store       ledger.Store
	tx          infra.Transactor
	houseUserID string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService builds a wallet service. houseUserID owns the platform wallet
// that receives commissions.
func NewService(store ledger.Store, tx infra.Transactor, houseUserID string, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		tx:          tx,
		houseUserID: houseUserID,
		logger:      logger.With().Str("component", "wallet").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HouseUserID returns the owner of the platform wallet.
func (s *Service) HouseUserID() string {
	return s.houseUserID
}

// EnsureHouseWallet provisions the platform wallet at startup.
func (s *Service) EnsureHouseWallet(ctx context.Context) error {
	if s.houseUserID == "" {
		return errors.New("house user id is not configured")
	}
	_, err := s.store.EnsureWallet(ctx, s.houseUserID)
	return err
}

// GetOrCreate returns the user's wallet, creating an empty one on first access.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (ledger.Wallet, error) {
	if userID == "" {
		return ledger.Wallet{}, apperr.Validation("validation failed", map[string]string{"userId": "is required"})
	}
	return s.store.EnsureWallet(ctx, userID)
}

// CreditInput describes a top-up request awaiting admin review.
type CreditInput struct {
	UserID string
	Amount decimal.Decimal
	Proof  string
}

// Credit records a pending credit. The balance changes only on confirmation.
func (s *Service) Credit(ctx context.Context, in CreditInput) (tx ledger.Transaction, err error) {
	defer func() { observe("credit", err) }()

	in.Amount = in.Amount.Round(2)
	fields := map[string]string{}
	if !in.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	} else if in.Amount.GreaterThan(MaxCreditAmount) {
		fields["amount"] = "must be at most " + MaxCreditAmount.String()
	}
	if utf8.RuneCountInString(in.Proof) > MaxProofLength {
		fields["proof"] = "must be at most 500 characters"
	}
	if len(fields) > 0 {
		return ledger.Transaction{}, apperr.Validation("invalid credit request", fields)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.store.EnsureWallet(ctx, in.UserID)
		if err != nil {
			return err
		}
		now := s.now()
		tx = ledger.Transaction{
			ID:           uuid.NewString(),
			UserID:       in.UserID,
			WalletID:     w.ID,
			Type:         ledger.TypeCredit,
			Amount:       in.Amount,
			Status:       ledger.StatusPending,
			Proof:        in.Proof,
			BalanceAfter: w.Balance,
			Log:          []ledger.LogEntry{{Action: ledger.ActionRequested, Actor: in.UserID, At: now}},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.store.InsertTransaction(ctx, tx)
	})
	if err != nil {
		return ledger.Transaction{}, infra.ConflictOnRetryable(err)
	}
	s.logger.Info().Str("transaction_id", tx.ID).Str("user_id", in.UserID).Str("amount", tx.Amount.StringFixed(2)).Msg("wallet.credit_requested")
	return tx, nil
}

// ConfirmCredit applies a pending credit to the wallet balance. A second call
// fails and leaves the balance untouched.
func (s *Service) ConfirmCredit(ctx context.Context, txID, adminID, note string) (ledger.Transaction, error) {
	return s.settleCredit(ctx, txID, adminID, note, ledger.StatusConfirmed)
}

// RejectCredit cancels a pending credit without touching the balance.
func (s *Service) RejectCredit(ctx context.Context, txID, adminID, note string) (ledger.Transaction, error) {
	return s.settleCredit(ctx, txID, adminID, note, ledger.StatusCancelled)
}

func (s *Service) settleCredit(ctx context.Context, txID, adminID, note string, status ledger.TransactionStatus) (out ledger.Transaction, err error) {
	op := "credit_confirm"
	action := ledger.ActionConfirmed
	if status == ledger.StatusCancelled {
		op, action = "credit_reject", ledger.ActionCancelled
	}
	defer func() { observe(op, err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		tx, err := s.store.LockTransaction(ctx, txID)
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return apperr.Wrap(apperr.CodeNotFound, err, "transaction not found").WithReason(apperr.ReasonMissing)
		}
		if err != nil {
			return err
		}
		if tx.Type != ledger.TypeCredit {
			return apperr.Validation("only credit transactions can be reviewed", map[string]string{"type": string(tx.Type)})
		}
		if tx.Status != ledger.StatusPending {
			return apperr.Wrap(apperr.CodeValidation, ErrAlreadyProcessed, "transaction already processed").
				WithDetails(map[string]string{"status": string(tx.Status)})
		}

		w, err := s.store.LockWalletByID(ctx, tx.WalletID)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return apperr.Wrap(apperr.CodeDependency, err, "wallet not found")
		}
		if err != nil {
			return err
		}

		balance := w.Balance
		if status == ledger.StatusConfirmed {
			balance = balance.Add(tx.Amount)
			if err := s.store.UpdateBalance(ctx, w.ID, balance, tx.ID); err != nil {
				return err
			}
		}

		entry := ledger.LogEntry{Action: action, Actor: adminID, Note: note, At: s.now()}
		if err := s.store.SettleTransaction(ctx, tx.ID, status, balance, entry); err != nil {
			if errors.Is(err, ledger.ErrTransactionNotFound) {
				return apperr.Conflict("transaction not found", err)
			}
			return err
		}

		out, err = s.store.LockTransaction(ctx, tx.ID)
		return err
	})
	if err != nil {
		return ledger.Transaction{}, infra.ConflictOnRetryable(err)
	}
	s.logger.Info().Str("transaction_id", out.ID).Str("admin_id", adminID).Str("status", string(out.Status)).Msg("wallet." + op)
	return out, nil
}

// DebitInput describes an immediate balance decrement.
type DebitInput struct {
	UserID        string
	Amount        decimal.Decimal
	RideRequestID string
	Remarks       string
}

// Debit checks the balance, decrements it and records a confirmed debit in
// one unit of work. The wallet must already exist.
func (s *Service) Debit(ctx context.Context, in DebitInput) (tx ledger.Transaction, err error) {
	defer func() { observe("debit", err) }()

	in.Amount = in.Amount.Round(2)
	if !in.Amount.IsPositive() {
		return ledger.Transaction{}, apperr.Validation("invalid debit request", map[string]string{"amount": "must be greater than 0"})
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.store.LockWallet(ctx, in.UserID)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return apperr.Wrap(apperr.CodeNotFound, err, "wallet not found").WithReason(apperr.ReasonMissing)
		}
		if err != nil {
			return err
		}
		tx, err = s.applyDebit(ctx, w, in.Amount, in.RideRequestID, ledger.ActionDebited, in.UserID, in.Remarks)
		return err
	})
	if err != nil {
		return ledger.Transaction{}, infra.ConflictOnRetryable(err)
	}
	s.logger.Info().Str("transaction_id", tx.ID).Str("user_id", in.UserID).Str("amount", tx.Amount.StringFixed(2)).Msg("wallet.debited")
	return tx, nil
}

// ReverseInput moves Amount from DebitUserID back to CreditUserID.
type ReverseInput struct {
	CreditUserID  string
	DebitUserID   string
	Amount        decimal.Decimal
	RideRequestID string
	Actor         string
	Note          string
}

// Transfer is the pair of confirmed transactions written by Reverse and
// ChargeCommission.
type Transfer struct {
	Credit ledger.Transaction
	Debit  ledger.Transaction
}

// Reverse credits one wallet and debits another by the same amount, writing a
// paired confirmed transaction for each side. Nothing is written when either
// wallet is missing or the debited side would go negative.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (Transfer, error) {
	return s.transfer(ctx, "reverse", in.DebitUserID, in.CreditUserID, in.Amount, in.RideRequestID, ledger.ActionReversal, in.Actor, in.Note)
}

// EnsureCanCover reports whether the user's balance covers amount. Nothing is
// reserved.
func (s *Service) EnsureCanCover(ctx context.Context, userID string, amount decimal.Decimal) error {
	w, err := s.store.FindWallet(ctx, userID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, "wallet not found").WithReason(apperr.ReasonMissing)
	}
	if err != nil {
		return err
	}
	if w.Balance.LessThan(amount) {
		return insufficient(amount, w.Balance)
	}
	return nil
}

// ChargeCommission moves the commission for an accepted offer from the
// trucker's wallet to the house wallet.
func (s *Service) ChargeCommission(ctx context.Context, truckerID string, amount decimal.Decimal, rideRequestID string) (Transfer, error) {
	return s.transfer(ctx, "commission_charge", truckerID, s.houseUserID, amount, rideRequestID, ledger.ActionCommission, truckerID, "ride commission")
}

// LockCommissionWallets takes the row locks of the trucker's and the house
// wallets in transfer order. Called first inside a caller's unit of work, it
// makes that unit queue behind any other commission move of the same trucker
// before it locks anything else.
func (s *Service) LockCommissionWallets(ctx context.Context, truckerID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, userID := range lockOrder(truckerID, s.houseUserID) {
			if _, err := s.store.LockWallet(ctx, userID); err != nil {
				if errors.Is(err, ledger.ErrWalletNotFound) {
					return apperr.Wrap(apperr.CodeDependency, err, "wallet not found")
				}
				return err
			}
		}
		return nil
	})
}

// RefundCommission returns a previously charged commission to the trucker.
func (s *Service) RefundCommission(ctx context.Context, truckerID string, amount decimal.Decimal, rideRequestID, actor, note string) (Transfer, error) {
	return s.Reverse(ctx, ReverseInput{
		CreditUserID:  truckerID,
		DebitUserID:   s.houseUserID,
		Amount:        amount,
		RideRequestID: rideRequestID,
		Actor:         actor,
		Note:          note,
	})
}

func (s *Service) transfer(ctx context.Context, op, fromUserID, toUserID string, amount decimal.Decimal, rideRequestID, action, actor, note string) (out Transfer, err error) {
	defer func() {
		if err != nil {
			observe(op, err)
		}
	}()

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return Transfer{}, apperr.Validation("invalid transfer", map[string]string{"amount": "must be greater than 0"})
	}
	if fromUserID == toUserID {
		return Transfer{}, apperr.Validation("invalid transfer", map[string]string{"wallet": "source and destination must differ"})
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Lock in a stable order so two opposite transfers cannot deadlock.
		wallets := map[string]ledger.Wallet{}
		for _, userID := range lockOrder(fromUserID, toUserID) {
			w, err := s.store.LockWallet(ctx, userID)
			if errors.Is(err, ledger.ErrWalletNotFound) {
				return apperr.Wrap(apperr.CodeDependency, err, "wallet not found")
			}
			if err != nil {
				return err
			}
			wallets[userID] = w
		}

		debit, err := s.applyDebit(ctx, wallets[fromUserID], amount, rideRequestID, action, actor, note)
		if err != nil {
			return err
		}
		credit, err := s.applyCredit(ctx, wallets[toUserID], amount, rideRequestID, action, actor, note)
		if err != nil {
			return err
		}
		out = Transfer{Credit: credit, Debit: debit}
		return nil
	})
	if err != nil {
		return Transfer{}, infra.ConflictOnRetryable(err)
	}
	// Inside a caller's unit of work the transfer is not settled until that
	// unit commits.
	infra.AfterCommit(ctx, func() {
		observe(op, nil)
		s.logger.Info().
			Str("from_user_id", fromUserID).
			Str("to_user_id", toUserID).
			Str("ride_request_id", rideRequestID).
			Str("amount", amount.StringFixed(2)).
			Msg("wallet." + op)
	})
	return out, nil
}

func (s *Service) applyDebit(ctx context.Context, w ledger.Wallet, amount decimal.Decimal, rideRequestID, action, actor, note string) (ledger.Transaction, error) {
	if w.Balance.LessThan(amount) {
		return ledger.Transaction{}, insufficient(amount, w.Balance)
	}
	return s.applyConfirmed(ctx, w, ledger.TypeDebit, w.Balance.Sub(amount), amount, rideRequestID, action, actor, note)
}

func (s *Service) applyCredit(ctx context.Context, w ledger.Wallet, amount decimal.Decimal, rideRequestID, action, actor, note string) (ledger.Transaction, error) {
	return s.applyConfirmed(ctx, w, ledger.TypeCredit, w.Balance.Add(amount), amount, rideRequestID, action, actor, note)
}

func (s *Service) applyConfirmed(ctx context.Context, w ledger.Wallet, typ ledger.TransactionType, balance, amount decimal.Decimal, rideRequestID, action, actor, note string) (ledger.Transaction, error) {
	now := s.now()
	tx := ledger.Transaction{
		ID:            uuid.NewString(),
		UserID:        w.UserID,
		WalletID:      w.ID,
		Type:          typ,
		Amount:        amount,
		Status:        ledger.StatusConfirmed,
		Remarks:       note,
		RideRequestID: rideRequestID,
		BalanceAfter:  balance,
		Log:           []ledger.LogEntry{{Action: action, Actor: actor, Note: note, At: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return ledger.Transaction{}, err
	}
	if err := s.store.UpdateBalance(ctx, w.ID, balance, tx.ID); err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

// Transactions returns the user's history, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{UserID: userID, Limit: listLimit(limit)})
}

// PendingCredits returns the admin moderation queue.
func (s *Service) PendingCredits(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{
		Status: ledger.StatusPending,
		Type:   ledger.TypeCredit,
		Limit:  listLimit(limit),
	})
}

// ByStatus lists transactions of every user in the given status.
func (s *Service) ByStatus(ctx context.Context, status ledger.TransactionStatus, limit int) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{Status: status, Limit: listLimit(limit)})
}

func listLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}

func lockOrder(a, b string) []string {
	if a < b {
		return []string{a, b}
	}
	return []string{b, a}
}

func insufficient(required, balance decimal.Decimal) error {
	return apperr.New(apperr.CodeInsufficientBalance, "insufficient balance").WithDetails(map[string]string{
		"required": required.StringFixed(2),
		"balance":  balance.StringFixed(2),
	})
}

func observe(op string, err error) {
	metrics.WalletOperations.WithLabelValues(op, metrics.Outcome(err, isRejection)).Inc()
}

// isRejection separates business rejections from infrastructure failures.
func isRejection(err error) bool {
	typed := apperr.As(err)
	return typed != nil && typed.Code() != apperr.CodeInternal
}
