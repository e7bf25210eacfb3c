package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

const (
	DefaultAttempts = 2
	DefaultBackoff  = time.Second
)

// SupabaseConfig настройки проверки сессий Supabase Auth
type SupabaseConfig struct {
	URL      string
	AnonKey  string
	Attempts int
	Backoff  time.Duration
}

// SupabaseVerifier проверяет токен через /auth/v1/user и читает роль из profiles
type SupabaseVerifier struct {
	cfg    SupabaseConfig
	client *http.Client
}

func NewSupabaseVerifier(cfg SupabaseConfig, client *http.Client) (*SupabaseVerifier, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		return nil, errors.New("supabase url is empty")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = DefaultBackoff
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SupabaseVerifier{cfg: cfg, client: client}, nil
}

// Verify проверяет токен с ограниченным числом повторов и фиксированной паузой
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (entity.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return entity.Identity{}, port.ErrInvalidToken
	}

	var (
		user    supabaseUser
		lastErr error
	)
	for attempt := 1; attempt <= v.cfg.Attempts; attempt++ {
		user, lastErr = v.fetchUser(ctx, token)
		if lastErr == nil {
			break
		}
		if attempt == v.cfg.Attempts {
			break
		}
		lgr.Logger.Debug("auth retry", "attempt", attempt, "left", v.cfg.Attempts-attempt)
		select {
		case <-ctx.Done():
			return entity.Identity{}, ctx.Err()
		case <-time.After(v.cfg.Backoff):
		}
	}
	if lastErr != nil {
		lgr.Logger.Warn("auth failed after retries", lgr.Err(lastErr))
		return entity.Identity{}, fmt.Errorf("%w: %v", port.ErrInvalidToken, lastErr)
	}

	role, err := v.fetchRole(ctx, token, user.ID)
	if err != nil {
		// без профиля пользователь остаётся инспектором
		lgr.Logger.Warn("profile lookup failed", "user_id", user.ID, lgr.Err(err))
		role = entity.RoleInspector
	}

	return entity.Identity{UserID: user.ID, Email: user.Email, Role: role}, nil
}

type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (v *SupabaseVerifier) fetchUser(ctx context.Context, token string) (supabaseUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.URL+"/auth/v1/user", nil)
	if err != nil {
		return supabaseUser{}, err
	}
	v.authorize(req, token)

	resp, err := v.client.Do(req)
	if err != nil {
		return supabaseUser{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return supabaseUser{}, fmt.Errorf("auth status %d", resp.StatusCode)
	}

	var user supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return supabaseUser{}, err
	}
	if user.ID == "" {
		return supabaseUser{}, errors.New("auth response without user id")
	}
	return user, nil
}

func (v *SupabaseVerifier) fetchRole(ctx context.Context, token, userID string) (entity.Role, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "role")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.URL+"/rest/v1/profiles?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	v.authorize(req, token)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("profiles status %d", resp.StatusCode)
	}

	var profiles []struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profiles); err != nil {
		return "", err
	}
	if len(profiles) == 0 || profiles[0].Role == "" {
		return entity.RoleInspector, nil
	}
	return entity.Role(profiles[0].Role), nil
}

func (v *SupabaseVerifier) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	if v.cfg.AnonKey != "" {
		req.Header.Set("apikey", v.cfg.AnonKey)
	}
}

// Проверка реализации интерфейса
var _ port.TokenVerifier = (*SupabaseVerifier)(nil)
