package ride

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/infra"
	"github.com/towlink/towlink/internal/metrics"
	"github.com/towlink/towlink/internal/notification"
	"github.com/towlink/towlink/internal/wallet"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	// maxOpenScan bounds how many posted rides are distance-sorted per query.
	maxOpenScan     = 500
	maxReasonLength = 500
	maxETALength    = 64
)

// Ledger is the part of the wallet service the state machine settles through.
type Ledger interface {
	EnsureCanCover(ctx context.Context, userID string, amount decimal.Decimal) error
	LockCommissionWallets(ctx context.Context, truckerID string) error
	ChargeCommission(ctx context.Context, truckerID string, amount decimal.Decimal, rideRequestID string) (wallet.Transfer, error)
	RefundCommission(ctx context.Context, truckerID string, amount decimal.Decimal, rideRequestID, actor, note string) (wallet.Transfer, error)
}

// Publisher queues push events. It is only called after a unit of work commits.
type Publisher interface {
	Enqueue(events ...notification.Event)
}

// Directory resolves public profiles for offer listings.
type Directory interface {
	Profiles(ctx context.Context, ids []string) (map[string]identity.Profile, error)
}

// Service runs the ride request state machine. Each transition locks the
// aggregate, applies wallet side effects and writes the ride back inside a
// single unit of work.
type Service struct {
	repo      Repository
	ledger    Ledger
	tx        infra.Transactor
	records   notification.Store
	events    Publisher
	directory Directory
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, ledger Ledger, tx infra.Transactor, records notification.Store, events Publisher, directory Directory, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		tx:        tx,
		records:   records,
		events:    events,
		directory: directory,
		logger:    logger.With().Str("component", "ride").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput holds a new ride request.
type CreateInput struct {
	RequesterID string
	Origin      Point
	Destination Point
	PickupAt    time.Time
	Vehicle     Vehicle
}

// Create stores a new ride request in the created state with no offers.
func (s *Service) Create(ctx context.Context, in CreateInput) (RideRequest, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Origin.Address) == "" {
		fields["origin"] = "is required"
	}
	if strings.TrimSpace(in.Destination.Address) == "" {
		fields["destination"] = "is required"
	}
	if in.PickupAt.IsZero() {
		fields["pickupDate"] = "is required"
	}
	if in.RequesterID == "" {
		fields["requester"] = "is required"
	}
	if len(fields) > 0 {
		err := apperr.Validation("invalid ride request", fields)
		observe("create", err)
		return RideRequest{}, err
	}

	now := s.now()
	r := RideRequest{
		ID:          uuid.NewString(),
		RequesterID: in.RequesterID,
		Origin:      in.Origin,
		Destination: in.Destination,
		PickupAt:    in.PickupAt.UTC(),
		Vehicle:     in.Vehicle,
		Status:      StatusCreated,
		Version:     1,
		Commission:  decimal.Zero,
		Offers:      []Offer{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.Create(ctx, r)
	observe("create", err)
	if err != nil {
		return RideRequest{}, err
	}
	s.logger.Info().Str("ride_request_id", r.ID).Str("requester_id", r.RequesterID).Msg("ride.created")
	return r, nil
}

// Post publishes a created ride so truckers can bid on it.
func (s *Service) Post(ctx context.Context, requesterID, rideID string) (RideRequest, error) {
	r, err := s.mutate(ctx, "post", rideID, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		if r.RequesterID != requesterID {
			return nil, notFound(apperr.ReasonNotOwner)
		}
		if r.Status != StatusCreated {
			return nil, notFound(apperr.ReasonWrongStatus)
		}
		r.Status = StatusPosted
		return nil, nil
	})
	if err != nil {
		return RideRequest{}, err
	}
	s.logger.Info().Str("ride_request_id", r.ID).Msg("ride.posted")
	return r, nil
}

// Accept assigns the ride to one offer. The trucker pays the commission to the
// house wallet and their offers on every other posted ride are suppressed.
func (s *Service) Accept(ctx context.Context, requesterID, rideID, offerID string) (RideRequest, error) {
	// Wallets are locked ahead of the ride so that two accepts of one trucker
	// queue on the wallets rather than on each other's rides during the
	// availability fan-out.
	lock := s.lockWallets(s.commissionPayer(ctx, requesterID, rideID, offerID))
	r, err := s.mutateAfter(ctx, "accept", rideID, lock, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		if r.RequesterID != requesterID {
			return nil, notFound(apperr.ReasonNotOwner)
		}
		if r.Status != StatusPosted {
			return nil, notFound(apperr.ReasonWrongStatus)
		}
		i := r.OfferIndex(offerID)
		if i < 0 {
			return nil, notFound(apperr.ReasonMissing)
		}
		offer := &r.Offers[i]
		if !offer.Available {
			return nil, notFound(apperr.ReasonUnavailable)
		}

		commission := wallet.Commission(offer.Price)
		if commission.IsPositive() {
			if _, err := s.ledger.ChargeCommission(ctx, offer.TruckerID, commission, r.ID); err != nil {
				return nil, err
			}
		}
		// Checked after the wallet lock: a concurrent accept for the same
		// trucker on another ride has either committed or not started.
		engaged, err := s.repo.IsTruckerEngaged(ctx, offer.TruckerID, r.ID)
		if err != nil {
			return nil, err
		}
		if engaged {
			return nil, notFound(apperr.ReasonUnavailable)
		}

		now := s.now()
		r.Status = StatusAccepted
		r.AcceptedOfferID = offer.ID
		r.TruckerID = offer.TruckerID
		r.Commission = commission
		r.AcceptedAt = &now
		offer.Available = false
		offer.UpdatedAt = now

		if _, err := s.repo.SetTruckerAvailability(ctx, offer.TruckerID, r.ID, false); err != nil {
			return nil, err
		}
		if err := s.record(ctx, offer.TruckerID, identity.RoleTrucker, notification.KindOfferAccepted, r.ID,
			"Offer accepted", "Your offer was accepted. Head to the pickup point."); err != nil {
			return nil, err
		}
		data := map[string]string{"rideRequestId": r.ID, "offerId": offer.ID, "commission": commission.StringFixed(2)}
		return []notification.Event{
			s.event(notification.KindOfferAccepted, identity.RoleTrucker, offer.TruckerID, r.ID, data),
			s.event(notification.KindReloadNotifications, identity.RoleTrucker, offer.TruckerID, r.ID, nil),
		}, nil
	})
	if err != nil {
		return RideRequest{}, err
	}
	s.logger.Info().
		Str("ride_request_id", r.ID).
		Str("offer_id", r.AcceptedOfferID).
		Str("trucker_id", r.TruckerID).
		Str("commission", r.Commission.StringFixed(2)).
		Msg("ride.accepted")
	return r, nil
}

// Complete closes an accepted ride. Only the assigned trucker may do so; their
// suppressed offers elsewhere become available again.
func (s *Service) Complete(ctx context.Context, truckerID, rideID string) (RideRequest, error) {
	r, err := s.mutate(ctx, "complete", rideID, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		if r.Status != StatusAccepted {
			return nil, notFound(apperr.ReasonWrongStatus)
		}
		if r.TruckerID != truckerID {
			return nil, notFound(apperr.ReasonNotOwner)
		}
		now := s.now()
		r.Status = StatusCompleted
		r.AcceptedOfferID = ""
		r.CompletedAt = &now

		if _, err := s.repo.SetTruckerAvailability(ctx, truckerID, r.ID, true); err != nil {
			return nil, err
		}
		if err := s.record(ctx, r.RequesterID, identity.RoleClient, notification.KindRideCompleted, r.ID,
			"Ride completed", "Your tow has been completed."); err != nil {
			return nil, err
		}
		data := map[string]string{"rideRequestId": r.ID, "truckerId": truckerID}
		return []notification.Event{
			s.event(notification.KindRideCompleted, identity.RoleClient, r.RequesterID, r.ID, data),
			s.event(notification.KindReloadNotifications, identity.RoleClient, r.RequesterID, r.ID, nil),
		}, nil
	})
	if err != nil {
		return RideRequest{}, err
	}
	s.logger.Info().Str("ride_request_id", r.ID).Str("trucker_id", truckerID).Msg("ride.completed")
	return r, nil
}

// Cancel withdraws a ride at any point before it ends. Cancelling an accepted
// ride refunds the commission to the trucker, restores their offers elsewhere
// and tells them.
func (s *Service) Cancel(ctx context.Context, requesterID, rideID string) (RideRequest, error) {
	lock := s.lockWallets(s.refundPayee(ctx, rideID))
	r, err := s.mutateAfter(ctx, "cancel", rideID, lock, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		if r.RequesterID != requesterID {
			return nil, notFound(apperr.ReasonNotOwner)
		}
		if !CanTransition(r.Status, StatusCancelled) {
			return nil, notFound(apperr.ReasonWrongStatus)
		}

		var events []notification.Event
		if r.Status == StatusAccepted {
			truckerID := r.TruckerID
			if r.Commission.IsPositive() {
				if _, err := s.ledger.RefundCommission(ctx, truckerID, r.Commission, r.ID, requesterID, "ride cancelled"); err != nil {
					return nil, err
				}
			}
			if _, err := s.repo.SetTruckerAvailability(ctx, truckerID, r.ID, true); err != nil {
				return nil, err
			}
			if err := s.record(ctx, truckerID, identity.RoleTrucker, notification.KindRideCancelled, r.ID,
				"Ride cancelled", "The client cancelled the ride. Your commission was refunded."); err != nil {
				return nil, err
			}
			data := map[string]string{"rideRequestId": r.ID, "refunded": r.Commission.StringFixed(2)}
			events = []notification.Event{
				s.event(notification.KindRideCancelled, identity.RoleTrucker, truckerID, r.ID, data),
				s.event(notification.KindReloadNotifications, identity.RoleTrucker, truckerID, r.ID, nil),
			}
			r.AcceptedOfferID = ""
			r.Commission = decimal.Zero
		}

		now := s.now()
		r.Status = StatusCancelled
		r.CancelledAt = &now
		return events, nil
	})
	if err != nil {
		return RideRequest{}, err
	}
	s.logger.Info().Str("ride_request_id", r.ID).Str("trucker_id", r.TruckerID).Msg("ride.cancelled")
	return r, nil
}

// Reopen returns an accepted ride to posted. The commission goes back to the
// trucker, their other offers are restored and the counter-party is told.
func (s *Service) Reopen(ctx context.Context, actorID, rideID, reason string) (RideRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReasonLength {
		err := apperr.Validation("invalid reopen", map[string]string{"reason": "must be between 1 and 500 characters"})
		observe("reopen", err)
		return RideRequest{}, err
	}

	lock := s.lockWallets(s.refundPayee(ctx, rideID))
	r, err := s.mutateAfter(ctx, "reopen", rideID, lock, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		truckerID := r.TruckerID
		if actorID != r.RequesterID && (truckerID == "" || actorID != truckerID) {
			return nil, apperr.New(apperr.CodeForbidden, "not a party to this ride request")
		}
		if r.Status != StatusAccepted {
			return nil, notFound(apperr.ReasonWrongStatus)
		}

		if r.Commission.IsPositive() {
			if _, err := s.ledger.RefundCommission(ctx, truckerID, r.Commission, r.ID, actorID, reason); err != nil {
				return nil, err
			}
		}
		if _, err := s.repo.SetTruckerAvailability(ctx, truckerID, r.ID, true); err != nil {
			return nil, err
		}

		now := s.now()
		acceptedID := r.AcceptedOfferID
		r.Status = StatusPosted
		r.AcceptedOfferID = ""
		r.TruckerID = ""
		r.Commission = decimal.Zero
		r.AcceptedAt = nil
		r.Reopen = &ReopenInfo{ActorID: actorID, Reason: reason, At: now}
		for i := range r.Offers {
			o := &r.Offers[i]
			switch {
			case o.ID == acceptedID:
				o.Available = false
				o.Released = true
			case o.Released:
				continue
			default:
				engaged, err := s.repo.IsTruckerEngaged(ctx, o.TruckerID, r.ID)
				if err != nil {
					return nil, err
				}
				o.Available = !engaged
			}
			o.UpdatedAt = now
		}

		role, userID := identity.RoleTrucker, truckerID
		if actorID == truckerID {
			role, userID = identity.RoleClient, r.RequesterID
		}
		if err := s.record(ctx, userID, role, notification.KindRideReopened, r.ID,
			"Ride reopened", "The ride was reopened: "+reason); err != nil {
			return nil, err
		}
		data := map[string]string{"rideRequestId": r.ID, "reason": reason, "by": actorID}
		return []notification.Event{
			s.event(notification.KindRideReopened, role, userID, r.ID, data),
			s.event(notification.KindReloadNotifications, role, userID, r.ID, nil),
		}, nil
	})
	if err != nil {
		return RideRequest{}, err
	}
	s.logger.Info().Str("ride_request_id", r.ID).Str("actor_id", actorID).Str("reason", reason).Msg("ride.reopened")
	return r, nil
}

// Get returns a ride visible to the caller: its requester, its assigned
// trucker, or any trucker while it is open for offers.
func (s *Service) Get(ctx context.Context, actorID, role, rideID string) (RideRequest, error) {
	r, err := s.repo.Get(ctx, rideID)
	if errors.Is(err, ErrNotFound) {
		return RideRequest{}, notFound(apperr.ReasonMissing)
	}
	if err != nil {
		return RideRequest{}, err
	}
	visible := r.RequesterID == actorID ||
		(r.TruckerID != "" && r.TruckerID == actorID) ||
		(role == identity.RoleTrucker && r.Status == StatusPosted)
	if !visible {
		return RideRequest{}, notFound(apperr.ReasonNotOwner)
	}
	return r, nil
}

// ListMine returns the requester's rides, newest first.
func (s *Service) ListMine(ctx context.Context, requesterID string, limit int) ([]RideRequest, error) {
	return s.repo.ListByRequester(ctx, requesterID, listLimit(limit))
}

// OpenQuery narrows ListOpen. A nil Center disables distance ordering.
type OpenQuery struct {
	Center   *Point
	RadiusKm float64
	Limit    int
}

// ListOpen returns posted rides, nearest pickup first when a center is given.
func (s *Service) ListOpen(ctx context.Context, q OpenQuery) ([]Nearby, error) {
	limit := listLimit(q.Limit)
	if q.Center == nil {
		rides, err := s.repo.ListPosted(ctx, limit)
		if err != nil {
			return nil, err
		}
		out := make([]Nearby, 0, len(rides))
		for _, r := range rides {
			out = append(out, Nearby{Ride: r})
		}
		return out, nil
	}
	rides, err := s.repo.ListPosted(ctx, maxOpenScan)
	if err != nil {
		return nil, err
	}
	return nearest(rides, *q.Center, q.RadiusKm, limit), nil
}

type mutation func(ctx context.Context, r *RideRequest) ([]notification.Event, error)

// mutate loads the ride under lock, applies fn and writes it back guarded by
// the status and version it was loaded with. Events are queued only once the
// unit of work has committed.
func (s *Service) mutate(ctx context.Context, op, rideID string, fn mutation) (RideRequest, error) {
	return s.mutateAfter(ctx, op, rideID, nil, fn)
}

// mutateAfter is mutate with a first step run inside the unit of work before
// the ride is locked.
func (s *Service) mutateAfter(ctx context.Context, op, rideID string, first func(ctx context.Context) error, fn mutation) (RideRequest, error) {
	var (
		out    RideRequest
		events []notification.Event
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if first != nil {
			if err := first(ctx); err != nil {
				return err
			}
		}
		r, err := s.repo.GetForUpdate(ctx, rideID)
		if errors.Is(err, ErrNotFound) {
			return notFound(apperr.ReasonMissing)
		}
		if err != nil {
			return err
		}
		expected := r.Status

		evs, err := fn(ctx, &r)
		if err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, r, expected); err != nil {
			if errors.Is(err, ErrStale) {
				return apperr.Conflict("ride request not found", err)
			}
			return err
		}
		r.Version++
		out, events = r, evs
		return nil
	})
	err = infra.ConflictOnRetryable(err)
	observe(op, err)
	if err != nil {
		if typed := apperr.As(err); typed != nil && typed.Reason() != "" {
			s.logger.Debug().Str("ride_request_id", rideID).Str("op", op).Str("reason", typed.Reason()).Msg("ride.rejected")
		}
		return RideRequest{}, err
	}
	if s.events != nil && len(events) > 0 {
		s.events.Enqueue(events...)
	}
	return out, nil
}

// commissionPayer returns the trucker who would pay the commission if offerID
// were accepted now, or "" when an unlocked read already rules the accept out.
func (s *Service) commissionPayer(ctx context.Context, requesterID, rideID, offerID string) string {
	r, err := s.repo.Get(ctx, rideID)
	if err != nil || r.RequesterID != requesterID || r.Status != StatusPosted {
		return ""
	}
	i := r.OfferIndex(offerID)
	if i < 0 || !r.Offers[i].Available || !wallet.Commission(r.Offers[i].Price).IsPositive() {
		return ""
	}
	return r.Offers[i].TruckerID
}

// refundPayee returns the trucker a cancel or reopen of rideID would refund.
func (s *Service) refundPayee(ctx context.Context, rideID string) string {
	r, err := s.repo.Get(ctx, rideID)
	if err != nil || r.Status != StatusAccepted || !r.Commission.IsPositive() {
		return ""
	}
	return r.TruckerID
}

// lockWallets builds the first step of a commission-moving mutation. Every
// such mutation takes the wallet locks before the ride lock.
func (s *Service) lockWallets(truckerID string) func(ctx context.Context) error {
	if truckerID == "" {
		return nil
	}
	return func(ctx context.Context) error {
		return s.ledger.LockCommissionWallets(ctx, truckerID)
	}
}

func (s *Service) record(ctx context.Context, userID, role, kind, rideID, title, body string) error {
	if s.records == nil {
		return nil
	}
	return s.records.Insert(ctx, notification.Record{
		ID:            uuid.NewString(),
		UserID:        userID,
		Role:          role,
		Kind:          kind,
		Title:         title,
		Body:          body,
		RideRequestID: rideID,
		CreatedAt:     s.now(),
	})
}

func (s *Service) event(kind, role, userID, rideID string, data any) notification.Event {
	return notification.Event{Kind: kind, Role: role, UserID: userID, RideRequestID: rideID, Data: data, At: s.now()}
}

func notFound(reason string) error {
	return apperr.NotFound("ride request not found", reason).WithCause(ErrNotFound)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func observe(op string, err error) {
	metrics.RideTransitions.WithLabelValues(op, metrics.Outcome(err, isRejection)).Inc()
}

func isRejection(err error) bool {
	typed := apperr.As(err)
	return typed != nil && typed.Code() != apperr.CodeInternal
}
