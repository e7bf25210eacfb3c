package storage

import (
	"context"
	"sync"
	"time"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
)

type dialog struct {
	user    entity.User
	touched time.Time
}

// MemoryUserRepository диалоги бота в памяти процесса.
// Диалог, к которому не обращались дольше idle, начинается заново.
type MemoryUserRepository struct {
	mu      sync.Mutex
	dialogs map[int64]dialog
	idle    time.Duration
	now     func() time.Time
}

// NewMemoryUserRepository idle <= 0 отключает забывание
func NewMemoryUserRepository(idle time.Duration) *MemoryUserRepository {
	return &MemoryUserRepository{
		dialogs: make(map[int64]dialog),
		idle:    idle,
		now:     time.Now,
	}
}

// Get возвращает копию, чтобы параллельные обработчики не делили один объект
func (r *MemoryUserRepository) Get(_ context.Context, userID, chatID int64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.touch(userID, chatID).user
	return &user, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, userID, chatID int64, fn func(*entity.User) error) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.touch(userID, chatID)
	user := d.user
	if err := fn(&user); err != nil {
		return nil, err
	}
	d.user = user
	r.dialogs[userID] = d

	out := user
	return &out, nil
}

// touch возвращает живой диалог, при необходимости начиная новый; вызывать под mu
func (r *MemoryUserRepository) touch(userID, chatID int64) dialog {
	now := r.now()
	d, ok := r.dialogs[userID]
	if !ok || r.expired(d, now) {
		d = dialog{user: *entity.NewUser(userID, chatID)}
	}
	d.user.ChatID = chatID
	d.touched = now
	r.dialogs[userID] = d
	return d
}

func (r *MemoryUserRepository) Forget(_ context.Context, userID int64) error {
	r.mu.Lock()
	delete(r.dialogs, userID)
	r.mu.Unlock()
	return nil
}

// Sweep удаляет просроченные диалоги и возвращает их число
func (r *MemoryUserRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, d := range r.dialogs {
		if r.expired(d, now) {
			delete(r.dialogs, id)
			removed++
		}
	}
	return removed
}

func (r *MemoryUserRepository) expired(d dialog, now time.Time) bool {
	return r.idle > 0 && now.Sub(d.touched) > r.idle
}

// Проверка реализации интерфейса
var _ port.UserRepository = (*MemoryUserRepository)(nil)
