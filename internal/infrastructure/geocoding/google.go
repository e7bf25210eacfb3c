package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"roadsense/internal/domain/port"
)

const defaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// placeholderKey значение из шаблона .env, ключом не считается
const placeholderKey = "your_key_here"

var (
	ErrNoAPIKey  = errors.New("geocoding api key missing")
	ErrNoResults = errors.New("no geocoding results")
)

// GoogleConfig настройки Google Geocoding API
type GoogleConfig struct {
	BaseURL string
	APIKey  string
}

func (cfg GoogleConfig) endpoint() string {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return defaultEndpoint
	}
	return base
}

// Google обратный геокодер
type Google struct {
	cfg    GoogleConfig
	client *http.Client
}

func NewGoogle(cfg GoogleConfig, client *http.Client) *Google {
	if client == nil {
		client = http.DefaultClient
	}
	return &Google{cfg: cfg, client: client}
}

// Reverse возвращает formatted_address первого результата
func (g *Google) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	key := strings.TrimSpace(g.cfg.APIKey)
	if key == "" || key == placeholderKey {
		return "", ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("latlng", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("key", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.endpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("geocoding status %d", resp.StatusCode)
	}

	var data struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Results      []struct {
			FormattedAddress string `json:"formatted_address"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}

	switch data.Status {
	case "", "OK":
	case "ZERO_RESULTS":
		return "", ErrNoResults
	default:
		return "", fmt.Errorf("geocoding %s: %s", data.Status, data.ErrorMessage)
	}
	if len(data.Results) == 0 || strings.TrimSpace(data.Results[0].FormattedAddress) == "" {
		return "", ErrNoResults
	}
	return data.Results[0].FormattedAddress, nil
}

// Проверка реализации интерфейса
var _ port.Geocoder = (*Google)(nil)
