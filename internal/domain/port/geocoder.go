package port

import "context"

// Geocoder интерфейс обратного геокодирования
type Geocoder interface {
	// Reverse возвращает адрес для координат
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}
