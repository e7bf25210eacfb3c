package app

import (
	"context"
	"errors"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
)

var (
	ErrDialogBusy = errors.New("photo is already being processed")
	ErrNoLocation = errors.New("inspection location is not set")
)

// UserService ведёт диалог инспектора с ботом: точка, затем снимок
type UserService struct {
	repo port.UserRepository
}

func NewUserService(repo port.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *UserService) SetState(ctx context.Context, userID, chatID int64, state entity.UserState) (*entity.User, error) {
	return s.update(ctx, userID, chatID, func(u *entity.User) {
		u.SetState(state)
	})
}

// Restart забывает прежний диалог и начинает новый в главном меню
func (s *UserService) Restart(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	if err := s.repo.Forget(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID, chatID)
}

// BeginInspection начинает новое обследование с запроса геопозиции
func (s *UserService) BeginInspection(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.update(ctx, userID, chatID, func(u *entity.User) {
		u.ResetLocation()
		u.SetState(entity.StateAwaitingLocation)
	})
}

// SetLocation запоминает точку и ждёт снимок
func (s *UserService) SetLocation(ctx context.Context, userID, chatID int64, lat, lng float64) (*entity.User, error) {
	return s.update(ctx, userID, chatID, func(u *entity.User) {
		u.SetLocation(lat, lng)
		u.SetState(entity.StateAwaitingPhoto)
	})
}

// StartProcessing принимает снимок в обработку. Проверка и смена состояния
// идут одним шагом, поэтому из двух одновременных снимков пройдёт один.
func (s *UserService) StartProcessing(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Update(ctx, userID, chatID, func(u *entity.User) error {
		switch {
		case u.State == entity.StateProcessing:
			return ErrDialogBusy
		case !u.Located:
			return ErrNoLocation
		}
		u.SetState(entity.StateProcessing)
		return nil
	})
}

// Finish завершает обследование и возвращает в главное меню
func (s *UserService) Finish(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.update(ctx, userID, chatID, func(u *entity.User) {
		u.ResetLocation()
		u.SetState(entity.StateMainMenu)
	})
}

// RetryPhoto возвращает к ожиданию снимка, точка сохраняется
func (s *UserService) RetryPhoto(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingPhoto)
}

func (s *UserService) Cancel(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.Finish(ctx, userID, chatID)
}

func (s *UserService) update(ctx context.Context, userID, chatID int64, fn func(*entity.User)) (*entity.User, error) {
	return s.repo.Update(ctx, userID, chatID, func(u *entity.User) error {
		fn(u)
		return nil
	})
}
