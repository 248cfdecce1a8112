package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const coingeckoAPI = "https://api.coingecko.com/api/v3"

// CoinGeckoOracle fetches spot prices from the CoinGecko simple-price API.
type CoinGeckoOracle struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoOracle creates an oracle against the public CoinGecko API.
func NewCoinGeckoOracle() *CoinGeckoOracle {
	return &CoinGeckoOracle{
		baseURL: coingeckoAPI,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (o *CoinGeckoOracle) PriceUSD(ctx context.Context, coinID string) (string, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.baseURL, coinID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build price request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get price: status %d", resp.StatusCode)
	}

	var priceResp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return "", fmt.Errorf("failed to decode price: %w", err)
	}

	entry, ok := priceResp[coinID]
	if !ok || entry.USD <= 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, coinID)
	}
	return strconv.FormatFloat(entry.USD, 'f', -1, 64), nil
}
