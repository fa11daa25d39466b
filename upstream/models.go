package upstream

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CachedToken is one bearer token issued by the upstream login endpoint.
type CachedToken struct {
	ID           string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// usableAt reports whether the token can still be sent at now, keeping skew
// in reserve before the real expiry.
func (t CachedToken) usableAt(now time.Time, skew time.Duration) bool {
	return t.AccessToken != "" && now.Add(skew).Before(t.ExpiresAt)
}

// envelope wraps every upstream response body.
type envelope struct {
	IsSuccess bool            `json:"isSuccess"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Expiration   string `json:"expiration"`
}

// SearchRequest is the availability query sent to the upstream provider.
type SearchRequest struct {
	Destination string   `json:"destination,omitempty"`
	HotelCodes  []string `json:"hotelCodes,omitempty"`
	CheckIn     string   `json:"checkIn"`
	CheckOut    string   `json:"checkOut"`
	Adults      int      `json:"adults"`
	Children    int      `json:"children,omitempty"`
	Currency    string   `json:"currency,omitempty"`
}

// HotelOffer is one priced room returned by the upstream search.
type HotelOffer struct {
	HotelCode string          `json:"hotelCode"`
	HotelName string          `json:"hotelName"`
	BoardType string          `json:"boardType"`
	RoomType  string          `json:"roomType"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
}
