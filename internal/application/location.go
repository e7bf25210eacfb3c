package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

// DefaultGeocodeTimeout ограничение на обратное геокодирование
const DefaultGeocodeTimeout = 10 * time.Second

// LocationResolver определяет адрес точки; ошибок наружу не отдаёт
type LocationResolver struct {
	geocoder port.Geocoder
	timeout  time.Duration
}

// NewLocationResolver geocoder может быть nil: тогда адресом всегда будут координаты
func NewLocationResolver(geocoder port.Geocoder, timeout time.Duration) *LocationResolver {
	if timeout <= 0 {
		timeout = DefaultGeocodeTimeout
	}
	return &LocationResolver{geocoder: geocoder, timeout: timeout}
}

// Resolve делает одну попытку геокодирования, при любой неудаче возвращает "<lat>, <lng>"
func (r *LocationResolver) Resolve(ctx context.Context, lat, lng float64) string {
	if r == nil || r.geocoder == nil {
		return FallbackAddress(lat, lng)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	address, err := r.geocoder.Reverse(callCtx, lat, lng)
	if err != nil {
		lgr.Logger.Warn("reverse geocoding failed, using coordinates", "lat", lat, "lng", lng, lgr.Err(err))
		return FallbackAddress(lat, lng)
	}
	if strings.TrimSpace(address) == "" {
		return FallbackAddress(lat, lng)
	}
	return address
}

// FallbackAddress координаты в кратчайшей записи, например "18.5204, 73.8567"
func FallbackAddress(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lng, 'f', -1, 64)
}
