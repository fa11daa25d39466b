package upstream

import (
	"context"
	"encoding/json"
	"net/http"
)

const searchPath = "/api/hotels/search"

// Requester sends one upstream API call and returns its envelope result.
type Requester interface {
	Execute(ctx context.Context, path, method string, body any) (json.RawMessage, error)
}

// HotelClient exposes typed upstream hotel operations.
type HotelClient struct {
	exec Requester
}

func NewHotelClient(exec Requester) *HotelClient {
	return &HotelClient{exec: exec}
}

// Search returns the offers available for req. Prices are upstream base prices.
func (c *HotelClient) Search(ctx context.Context, req SearchRequest) ([]HotelOffer, error) {
	raw, err := c.exec.Execute(ctx, searchPath, http.MethodPost, req)
	if err != nil {
		return nil, err
	}
	offers, err := DecodeResult[[]HotelOffer](raw)
	if err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []HotelOffer{}
	}
	return offers, nil
}
