package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hotelhub/agency"
	"hotelhub/audit"
	"hotelhub/auth"
	"hotelhub/pricing"
	"hotelhub/upstream"
)

const maxRequestBody = 1 << 20

type agencyResponse struct {
	ID           string          `json:"id"`
	CompanyName  string          `json:"companyName"`
	DiscountRate decimal.Decimal `json:"discountRate"`
	Status       agency.Status   `json:"status"`
	CreatedAt    string          `json:"createdAt"`
}

func toAgencyResponse(a agency.Agency) agencyResponse {
	return agencyResponse{
		ID:           a.ID,
		CompanyName:  a.CompanyName,
		DiscountRate: a.DiscountRate,
		Status:       a.Status,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type quoteRequest struct {
	BasePrice decimal.Decimal `json:"basePrice"`
	HotelCode string          `json:"hotelCode"`
	BoardType string          `json:"boardType"`
	Currency  string          `json:"currency"`
}

type confirmRequest struct {
	quoteRequest
	ExpectedFinalPrice decimal.Decimal `json:"expectedFinalPrice"`
}

type confirmResponse struct {
	Confirmed bool           `json:"confirmed"`
	Result    pricing.Result `json:"result"`
}

type pricedOffer struct {
	upstream.HotelOffer
	Pricing *pricing.Result `json:"pricing,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgencies(w http.ResponseWriter, r *http.Request) {
	if callerFrom(r.Context()).Role != auth.RoleAdmin {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin role required"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	agencies, err := s.agencyService.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]agencyResponse, 0, len(agencies))
	for _, a := range agencies {
		items = append(items, toAgencyResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleAgency(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "agency id is required"})
		return
	}
	if !callerFrom(r.Context()).CanViewAgency(id) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not allowed to view this agency"})
		return
	}

	a, err := s.agencyService.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgencyResponse(a))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	pc, err := s.pricingContext(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pricer.ComputePrice(r.Context(), pc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.record(audit.NewPriceEvent(audit.EventPriceQuoted, pc, res))
	writeJSON(w, http.StatusOK, res)
}

// handleConfirm re-prices an offer at booking time and refuses the booking
// price when it no longer matches the quote.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	pc, err := s.pricingContext(r.Context(), callerFrom(r.Context()), req.quoteRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pricer.ComputePrice(r.Context(), pc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !res.FinalPrice.Equal(req.ExpectedFinalPrice.Round(2)) {
		s.record(audit.NewPriceEvent(audit.EventPriceMismatch, pc, res))
		writeJSON(w, http.StatusConflict, confirmResponse{Confirmed: false, Result: res})
		return
	}

	s.record(audit.NewPriceEvent(audit.EventPriceConfirmed, pc, res))
	writeJSON(w, http.StatusOK, confirmResponse{Confirmed: true, Result: res})
}

func (s *Server) handleHotelSearch(w http.ResponseWriter, r *http.Request) {
	var req upstream.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CheckIn == "" || req.CheckOut == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "checkIn and checkOut are required"})
		return
	}

	caller := callerFrom(r.Context())
	base, err := s.pricingContext(r.Context(), caller, quoteRequest{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	offers, err := s.hotels.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]pricedOffer, 0, len(offers))
	for _, offer := range offers {
		item := pricedOffer{HotelOffer: offer}
		if offer.Price.IsPositive() {
			pc := base
			pc.BasePrice = offer.Price
			pc.HotelCode = offer.HotelCode
			pc.BoardType = offer.BoardType
			pc.Currency = offer.Currency

			res, err := s.pricer.ComputePrice(r.Context(), pc)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			item.Pricing = &res
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// pricingContext builds the engine input for caller. Agency callers must
// belong to an approved agency.
func (s *Server) pricingContext(ctx context.Context, caller auth.Caller, req quoteRequest) (pricing.Context, error) {
	pc := pricing.Context{
		BasePrice:  req.BasePrice,
		CallerType: caller.CallerType(),
		HotelCode:  strings.TrimSpace(req.HotelCode),
		BoardType:  strings.TrimSpace(req.BoardType),
		Currency:   strings.ToUpper(strings.TrimSpace(req.Currency)),
	}
	if pc.CallerType == pricing.CallerAgency {
		if _, err := s.agencyService.GetApproved(ctx, caller.AgencyID); err != nil {
			return pricing.Context{}, err
		}
		pc.AgencyID = caller.AgencyID
	}
	return pc, nil
}

func (s *Server) record(e audit.Event) {
	if s.recorder != nil {
		s.recorder.Record(e)
	}
}

func (q quoteRequest) validate() string {
	if !q.BasePrice.IsPositive() {
		return "basePrice must be greater than zero"
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
