package roboflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
)

const (
	DefaultConfidence = 30
	DefaultOverlap    = 25

	maxErrorBody = 512
)

// Config параметры одной модели
type Config struct {
	Name       string
	URL        string
	APIKey     string
	Confidence int
	Overlap    int
}

// Detector клиент hosted-модели детекции дефектов покрытия
type Detector struct {
	cfg    Config
	client *http.Client
}

// NewDetector создаёт клиент модели. client может быть nil.
func NewDetector(cfg Config, client *http.Client) (*Detector, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("detector %s: url is empty", cfg.Name)
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = DefaultConfidence
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = DefaultOverlap
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Detector{cfg: cfg, client: client}, nil
}

func (d *Detector) Name() string {
	return d.cfg.Name
}

// prediction сырой элемент ответа; указатели отличают отсутствующее поле от нуля
type prediction struct {
	Class      *string  `json:"class"`
	Confidence *float64 `json:"confidence"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Width      *float64 `json:"width"`
	Height     *float64 `json:"height"`
}

type response struct {
	Predictions *[]prediction `json:"predictions"`
}

// Detect отправляет снимок в base64 и возвращает предсказания в порядке ответа.
// Любой некорректный элемент отвергает весь ответ.
func (d *Detector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image")
	}

	endpoint, err := d.endpoint()
	if err != nil {
		return nil, err
	}

	body := strings.NewReader(base64.StdEncoding.EncodeToString(imageData))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Predictions == nil {
		return nil, errors.New("malformed response: predictions missing")
	}

	out := make([]entity.Detection, 0, len(*payload.Predictions))
	for i, p := range *payload.Predictions {
		det, err := p.normalize()
		if err != nil {
			return nil, fmt.Errorf("malformed prediction %d: %w", i, err)
		}
		out = append(out, det)
	}
	return out, nil
}

func (d *Detector) endpoint() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", d.cfg.APIKey)
	q.Set("confidence", strconv.Itoa(d.cfg.Confidence))
	q.Set("overlap", strconv.Itoa(d.cfg.Overlap))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p prediction) normalize() (entity.Detection, error) {
	switch {
	case p.Class == nil:
		return entity.Detection{}, errors.New("class missing")
	case p.Confidence == nil:
		return entity.Detection{}, errors.New("confidence missing")
	case p.X == nil, p.Y == nil, p.Width == nil, p.Height == nil:
		return entity.Detection{}, errors.New("geometry missing")
	}
	det := entity.Detection{
		Class:      *p.Class,
		Confidence: *p.Confidence,
		X:          *p.X,
		Y:          *p.Y,
		Width:      *p.Width,
		Height:     *p.Height,
	}
	if err := det.Validate(); err != nil {
		return entity.Detection{}, err
	}
	return det, nil
}

// Проверка реализации интерфейса
var _ port.DefectDetector = (*Detector)(nil)
