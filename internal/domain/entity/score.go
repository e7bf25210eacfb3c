package entity

// Status трёхуровневая оценка состояния участка
type Status string

const (
	StatusGood     Status = "Good"
	StatusModerate Status = "Moderate"
	StatusCritical Status = "Critical"
)

const (
	MaxScore          = 100
	GoodThreshold     = 80
	ModerateThreshold = 50
)

// ScoreResult итог оценки качества покрытия
type ScoreResult struct {
	Score  int    `json:"score"`
	Status Status `json:"status"`
}

// StatusForScore вычисляет статус по баллу
func StatusForScore(score int) Status {
	switch {
	case score >= GoodThreshold:
		return StatusGood
	case score >= ModerateThreshold:
		return StatusModerate
	default:
		return StatusCritical
	}
}

// Valid сообщает, входит ли статус в перечень
func (s Status) Valid() bool {
	switch s {
	case StatusGood, StatusModerate, StatusCritical:
		return true
	}
	return false
}
