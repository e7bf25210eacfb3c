package entity

import "strconv"

// UserState состояние инспектора в диалоге с ботом
type UserState string

const (
	StateMainMenu         UserState = "main_menu"         // В главном меню
	StateAwaitingLocation UserState = "awaiting_location" // Ожидание геопозиции участка
	StateAwaitingPhoto    UserState = "awaiting_photo"    // Ожидание фото покрытия
	StateProcessing       UserState = "processing"        // Обработка снимка
)

// User представляет инспектора, работающего через бота
type User struct {
	ID      int64     // Telegram User ID
	ChatID  int64     // Telegram Chat ID
	State   UserState // Текущее состояние пользователя
	Lat     float64   // Широта последней присланной точки
	Lng     float64   // Долгота последней присланной точки
	Located bool      // Точка получена в текущем обследовании
}

// NewUser создаёт нового пользователя с начальным состоянием
func NewUser(userID, chatID int64) *User {
	return &User{
		ID:     userID,
		ChatID: chatID,
		State:  StateMainMenu,
	}
}

// SetState обновляет состояние пользователя
func (u *User) SetState(state UserState) {
	u.State = state
}

// SetLocation запоминает координаты участка
func (u *User) SetLocation(lat, lng float64) {
	u.Lat = lat
	u.Lng = lng
	u.Located = true
}

// ResetLocation забывает координаты после завершения обследования
func (u *User) ResetLocation() {
	u.Lat = 0
	u.Lng = 0
	u.Located = false
}

// InspectorID идентификатор инспектора в записях обследований
func (u *User) InspectorID() string {
	return "tg:" + strconv.FormatInt(u.ID, 10)
}
