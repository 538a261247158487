package ride

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/notification"
	"github.com/towlink/towlink/internal/wallet"
)

// MaxOfferPrice is the sanity ceiling for offered and counter prices.
var MaxOfferPrice = decimal.NewFromInt(1_000_000)

// OfferInput is a trucker's bid on a posted ride.
type OfferInput struct {
	TruckerID string
	RideID    string
	Price     decimal.Decimal
	ETA       string
}

// OfferView is an offer together with the public profile of its trucker.
type OfferView struct {
	Offer   Offer
	Trucker identity.Profile
}

// SubmitOffer creates the trucker's offer on a posted ride or updates it in
// place. The trucker must be able to cover the commission at submission time;
// nothing is reserved. created reports whether a new offer was appended.
func (s *Service) SubmitOffer(ctx context.Context, in OfferInput) (offer Offer, created bool, err error) {
	price := in.Price.Round(2)
	eta := strings.TrimSpace(in.ETA)
	fields := map[string]string{}
	if msg := checkPrice(price); msg != "" {
		fields["price"] = msg
	}
	if eta == "" || utf8.RuneCountInString(eta) > maxETALength {
		fields["eta"] = "must be between 1 and 64 characters"
	}
	if len(fields) > 0 {
		err := apperr.Validation("invalid offer", fields)
		observe("submit_offer", err)
		return Offer{}, false, err
	}

	_, err = s.mutate(ctx, "submit_offer", in.RideID, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		if r.Status != StatusPosted {
			return nil, notFound(apperr.ReasonWrongStatus)
		}
		if err := s.ledger.EnsureCanCover(ctx, in.TruckerID, wallet.Commission(price)); err != nil {
			return nil, err
		}

		now := s.now()
		if i := r.TruckerOfferIndex(in.TruckerID); i >= 0 {
			o := &r.Offers[i]
			if o.Released {
				return nil, notFound(apperr.ReasonUnavailable)
			}
			o.Price = price
			o.ETA = eta
			o.UpdatedAt = now
			offer, created = *o, false
		} else {
			engaged, err := s.repo.IsTruckerEngaged(ctx, in.TruckerID, r.ID)
			if err != nil {
				return nil, err
			}
			offer = Offer{
				ID:        uuid.NewString(),
				TruckerID: in.TruckerID,
				Price:     price,
				ETA:       eta,
				Available: !engaged,
				CreatedAt: now,
				UpdatedAt: now,
			}
			r.Offers = append(r.Offers, offer)
			created = true
		}
		if !offer.Available {
			return nil, nil
		}
		return []notification.Event{
			s.event(notification.KindNewOffer, identity.RoleClient, r.RequesterID, r.ID, offerEventData(r.ID, offer)),
		}, nil
	})
	if err != nil {
		return Offer{}, false, err
	}
	s.logger.Info().
		Str("ride_request_id", in.RideID).
		Str("offer_id", offer.ID).
		Str("trucker_id", in.TruckerID).
		Str("price", offer.Price.StringFixed(2)).
		Bool("created", created).
		Msg("ride.offer_submitted")
	return offer, created, nil
}

// CounterOffer records the requester's counter price on an available offer of
// their posted ride.
func (s *Service) CounterOffer(ctx context.Context, requesterID, offerID string, counterPrice decimal.Decimal) (Offer, error) {
	counterPrice = counterPrice.Round(2)
	if msg := checkPrice(counterPrice); msg != "" {
		err := apperr.Validation("invalid counter offer", map[string]string{"counterPrice": msg})
		observe("counter_offer", err)
		return Offer{}, err
	}

	rideID, err := s.repo.FindRideIDByOffer(ctx, offerID)
	if errors.Is(err, ErrNotFound) {
		err = notFound(apperr.ReasonMissing)
	}
	if err != nil {
		observe("counter_offer", err)
		return Offer{}, err
	}

	var offer Offer
	_, err = s.mutate(ctx, "counter_offer", rideID, func(ctx context.Context, r *RideRequest) ([]notification.Event, error) {
		if r.RequesterID != requesterID {
			return nil, notFound(apperr.ReasonNotOwner)
		}
		i := r.OfferIndex(offerID)
		if i < 0 {
			return nil, notFound(apperr.ReasonMissing)
		}
		if r.Status != StatusPosted {
			return nil, apperr.Validation("offer is closed", map[string]string{"offerId": "ride request is not open for offers"})
		}
		o := &r.Offers[i]
		if !o.Available {
			return nil, apperr.Validation("offer is unavailable", map[string]string{"offerId": "offer is no longer available"})
		}
		cp := counterPrice
		o.CounterPrice = &cp
		o.UpdatedAt = s.now()
		offer = *o
		return []notification.Event{
			s.event(notification.KindCounterOffer, identity.RoleTrucker, o.TruckerID, r.ID, offerEventData(r.ID, *o)),
		}, nil
	})
	if err != nil {
		return Offer{}, err
	}
	s.logger.Info().
		Str("ride_request_id", rideID).
		Str("offer_id", offerID).
		Str("counter_price", counterPrice.StringFixed(2)).
		Msg("ride.counter_offered")
	return offer, nil
}

// ListOffers returns the available offers on the requester's ride with their
// truckers' public profiles.
func (s *Service) ListOffers(ctx context.Context, requesterID, rideID string) ([]OfferView, error) {
	r, err := s.repo.Get(ctx, rideID)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(apperr.ReasonMissing)
	}
	if err != nil {
		return nil, err
	}
	if r.RequesterID != requesterID {
		return nil, notFound(apperr.ReasonNotOwner)
	}

	var (
		available []Offer
		ids       []string
	)
	for _, o := range r.Offers {
		if o.Available {
			available = append(available, o)
			ids = append(ids, o.TruckerID)
		}
	}
	profiles := map[string]identity.Profile{}
	if s.directory != nil && len(ids) > 0 {
		if profiles, err = s.directory.Profiles(ctx, ids); err != nil {
			return nil, err
		}
	}

	out := make([]OfferView, 0, len(available))
	for _, o := range available {
		p, ok := profiles[o.TruckerID]
		if !ok {
			p = identity.Profile{ID: o.TruckerID}
		}
		out = append(out, OfferView{Offer: o, Trucker: p})
	}
	return out, nil
}

func checkPrice(price decimal.Decimal) string {
	if !price.IsPositive() {
		return "must be greater than 0"
	}
	if price.GreaterThan(MaxOfferPrice) {
		return "must not exceed 1000000"
	}
	return ""
}

func offerEventData(rideID string, o Offer) map[string]string {
	data := map[string]string{
		"rideRequestId": rideID,
		"offerId":       o.ID,
		"truckId":       o.TruckerID,
		"offeredPrice":  o.Price.StringFixed(2),
		"estimatedTime": o.ETA,
	}
	if o.CounterPrice != nil {
		data["clientCounterPrice"] = o.CounterPrice.StringFixed(2)
	}
	return data
}
