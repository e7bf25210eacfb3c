package entity

// Role роль пользователя сервиса
type Role string

const (
	RoleInspector Role = "inspector"
	RoleAdmin     Role = "admin"
)

// Identity проверенный владелец токена
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// IsAdmin сообщает, есть ли у пользователя права администратора
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Scope ограничение выборки: инспектор видит только свои записи
type Scope struct {
	InspectorID string
	All         bool
}

// Scope возвращает область видимости записей для пользователя
func (i Identity) Scope() Scope {
	if i.IsAdmin() {
		return Scope{All: true}
	}
	return Scope{InspectorID: i.UserID}
}
