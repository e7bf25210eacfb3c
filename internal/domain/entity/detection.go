package entity

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefectType закрытый перечень типов дефектов покрытия
type DefectType int

const (
	DefectUnknown           DefectType = iota // класс, которого нет в перечне
	DefectPothole                             // выбоина
	DefectAlligatorCracking                   // сетка трещин
	DefectCrack                               // одиночная трещина
	DefectWeathering                          // выветривание покрытия
)

// String возвращает каноническое имя типа
func (t DefectType) String() string {
	switch t {
	case DefectPothole:
		return "pothole"
	case DefectAlligatorCracking:
		return "alligator cracking"
	case DefectCrack:
		return "crack"
	case DefectWeathering:
		return "weathering"
	default:
		return "unknown"
	}
}

// Detection одно наблюдение детектора. X и Y задают центр рамки в пикселях.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// DetectionSet объединённый список дефектов по одному снимку
type DetectionSet []Detection

// MergeDetections склеивает ответы детекторов в порядке аргументов, без дедупликации.
func MergeDetections(parts ...[]Detection) DetectionSet {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	set := make(DetectionSet, 0, total)
	for _, p := range parts {
		set = append(set, p...)
	}
	return set
}

// CanonicalClass приводит имя класса к виду, в котором оно хранится в таблицах.
func CanonicalClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}

// ClassifyDefect сопоставляет свободное имя класса с перечнем.
func ClassifyDefect(class string) DefectType {
	c := CanonicalClass(class)
	switch {
	case strings.Contains(c, "pothole"):
		return DefectPothole
	case strings.Contains(c, "alligator"):
		return DefectAlligatorCracking
	case c == "crack":
		return DefectCrack
	case c == "weathering":
		return DefectWeathering
	default:
		return DefectUnknown
	}
}

// Type возвращает тип дефекта по имени класса
func (d Detection) Type() DefectType {
	return ClassifyDefect(d.Class)
}

// Bounds возвращает левый верхний угол и размер рамки в целых пикселях
func (d Detection) Bounds() (x, y, width, height int) {
	return roundHalfUp(d.X - d.Width/2), roundHalfUp(d.Y - d.Height/2), roundHalfUp(d.Width), roundHalfUp(d.Height)
}

// Label подпись рамки на аннотированном снимке
func (d Detection) Label() string {
	return fmt.Sprintf("%s %.1f%%", d.Class, d.Confidence*100)
}

// MaxCoordinate предел координат и размеров рамки в пикселях;
// больше него значения не переводятся в int без переполнения при сложении.
const MaxCoordinate = 1e7

// Validate проверяет, что наблюдение пригодно для оценки и отрисовки.
func (d Detection) Validate() error {
	if strings.TrimSpace(d.Class) == "" {
		return errors.New("empty class")
	}
	for name, v := range map[string]float64{
		"confidence": d.Confidence,
		"x":          d.X,
		"y":          d.Y,
		"width":      d.Width,
		"height":     d.Height,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not a finite number", name)
		}
		if math.Abs(v) > MaxCoordinate {
			return fmt.Errorf("%s %v exceeds %v", name, v, MaxCoordinate)
		}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", d.Confidence)
	}
	if d.Width < 0 || d.Height < 0 {
		return fmt.Errorf("negative box size %vx%v", d.Width, d.Height)
	}
	return nil
}

// roundHalfUp округляет половину вверх: -0.5 -> 0, 2.5 -> 3
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
