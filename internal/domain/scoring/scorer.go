// Package scoring считает балл качества покрытия по списку дефектов.
package scoring

import "roadsense/internal/domain/entity"

// DefaultPenalty штраф за класс, которого нет в таблице
const DefaultPenalty = 5

// penalties штраф за один дефект. Ключи в каноническом виде (см. entity.CanonicalClass).
var penalties = map[string]int{
	"pothole":            15,
	"alligator cracking": 10,
	"crack":              5,
	"weathering":         3,
}

// Penalty возвращает штраф за один дефект указанного класса
func Penalty(class string) int {
	if p, ok := penalties[entity.CanonicalClass(class)]; ok {
		return p
	}
	return DefaultPenalty
}

// Score вычисляет балл и статус. Результат не зависит от порядка дефектов.
func Score(defects []entity.Detection) entity.ScoreResult {
	total := 0
	for _, d := range defects {
		total += Penalty(d.Class)
	}

	score := entity.MaxScore - total
	if score < 0 {
		score = 0
	}

	return entity.ScoreResult{
		Score:  score,
		Status: entity.StatusForScore(score),
	}
}
