package ride

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/identity"
)

type pointRequest struct {
	Lat     *float64 `json:"lat" validate:"required,latitude"`
	Lng     *float64 `json:"lng" validate:"required,longitude"`
	Address string   `json:"address" validate:"required,max=300"`
}

func (p *pointRequest) point() Point {
	return Point{Lat: *p.Lat, Lng: *p.Lng, Address: p.Address}
}

type vehicleRequest struct {
	Category   string `json:"category" validate:"required,max=64"`
	LoadState  string `json:"loadState" validate:"max=64"`
	WheelState string `json:"wheelState" validate:"max=64"`
}

type createRequest struct {
	Origin      *pointRequest  `json:"origin" validate:"required"`
	Destination *pointRequest  `json:"destination" validate:"required"`
	PickupDate  *time.Time     `json:"pickupDate" validate:"required"`
	Vehicle     vehicleRequest `json:"vehicle"`
}

type rideIDRequest struct {
	RideID string `json:"rideId" validate:"required,uuid"`
}

type offerRequest struct {
	RideID string          `json:"rideId" validate:"required,uuid"`
	Price  decimal.Decimal `json:"price"`
	ETA    string          `json:"eta" validate:"required,max=64"`
}

type counterOfferRequest struct {
	OfferID      string          `json:"offerId" validate:"required,uuid"`
	CounterPrice decimal.Decimal `json:"counterPrice"`
}

type acceptRequest struct {
	RideID  string `json:"rideId" validate:"required,uuid"`
	OfferID string `json:"offerId" validate:"required,uuid"`
}

type reopenRequest struct {
	RideID string `json:"rideId" validate:"required,uuid"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type listQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

type openQuery struct {
	Lat      *float64 `query:"lat" validate:"omitempty,latitude"`
	Lng      *float64 `query:"lng" validate:"omitempty,longitude"`
	RadiusKm float64  `query:"radiusKm" validate:"omitempty,gt=0,max=1000"`
	Limit    int      `query:"limit" validate:"omitempty,min=1,max=100"`
}

type offerResponse struct {
	ID                 string            `json:"id"`
	TruckID            string            `json:"truckId"`
	OfferedPrice       string            `json:"offeredPrice"`
	EstimatedTime      string            `json:"estimatedTime"`
	ClientCounterPrice string            `json:"clientCounterPrice,omitempty"`
	Available          bool              `json:"available"`
	Trucker            *identity.Profile `json:"trucker,omitempty"`
	CreatedAt          string            `json:"createdAt"`
	UpdatedAt          string            `json:"updatedAt"`
}

type reopenResponse struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
	At     string `json:"at"`
}

type rideResponse struct {
	ID              string          `json:"id"`
	RequesterID     string          `json:"requesterId"`
	Origin          Point           `json:"origin"`
	Destination     Point           `json:"destination"`
	PickupDate      string          `json:"pickupDate"`
	Vehicle         Vehicle         `json:"vehicle"`
	Status          string          `json:"status"`
	AcceptedOfferID *string         `json:"acceptedOfferId"`
	TruckerID       string          `json:"truckerId,omitempty"`
	Commission      string          `json:"commission"`
	Offers          []offerResponse `json:"offers"`
	Reopen          *reopenResponse `json:"reopen,omitempty"`
	DistanceKm      *float64        `json:"distanceKm,omitempty"`
	AcceptedAt      string          `json:"acceptedAt,omitempty"`
	CompletedAt     string          `json:"completedAt,omitempty"`
	CancelledAt     string          `json:"cancelledAt,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

func toOfferResponse(o Offer) offerResponse {
	out := offerResponse{
		ID:            o.ID,
		TruckID:       o.TruckerID,
		OfferedPrice:  o.Price.StringFixed(2),
		EstimatedTime: o.ETA,
		Available:     o.Available,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
	}
	if o.CounterPrice != nil {
		out.ClientCounterPrice = o.CounterPrice.StringFixed(2)
	}
	return out
}

func toOfferViews(views []OfferView) []offerResponse {
	out := make([]offerResponse, 0, len(views))
	for _, v := range views {
		resp := toOfferResponse(v.Offer)
		trucker := v.Trucker
		resp.Trucker = &trucker
		out = append(out, resp)
	}
	return out
}

// toRideResponse renders r for viewerID. Only the requester sees every offer;
// anyone else sees their own.
func toRideResponse(r RideRequest, viewerID string) rideResponse {
	offers := make([]offerResponse, 0, len(r.Offers))
	for _, o := range r.Offers {
		if viewerID == r.RequesterID || o.TruckerID == viewerID {
			offers = append(offers, toOfferResponse(o))
		}
	}
	out := rideResponse{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		Origin:      r.Origin,
		Destination: r.Destination,
		PickupDate:  r.PickupAt.Format(time.RFC3339),
		Vehicle:     r.Vehicle,
		Status:      string(r.Status),
		Commission:  r.Commission.StringFixed(2),
		Offers:      offers,
		AcceptedAt:  formatTime(r.AcceptedAt),
		TruckerID:   r.TruckerID,
		CompletedAt: formatTime(r.CompletedAt),
		CancelledAt: formatTime(r.CancelledAt),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
	if r.AcceptedOfferID != "" {
		id := r.AcceptedOfferID
		out.AcceptedOfferID = &id
	}
	if r.Reopen != nil {
		out.Reopen = &reopenResponse{By: r.Reopen.ActorID, Reason: r.Reopen.Reason, At: r.Reopen.At.Format(time.RFC3339)}
	}
	return out
}

func toRideResponses(rides []RideRequest, viewerID string) []rideResponse {
	out := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r, viewerID))
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
