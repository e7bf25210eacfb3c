package telegram

import (
	"fmt"
	"sort"
	"strings"

	"roadsense/internal/domain/entity"
)

var statusIcons = map[entity.Status]string{
	entity.StatusGood:     "✅",
	entity.StatusModerate: "⚠️",
	entity.StatusCritical: "🛑",
}

// formatReport подпись к аннотированному снимку
func formatReport(rec *entity.InspectionRecord) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s Оценка покрытия: %d/100 (%s)\n", statusIcons[rec.Status], rec.Score, rec.Status)
	fmt.Fprintf(&sb, "📍 %s\n", rec.Address)

	if rec.DefectCount == 0 {
		sb.WriteString("🔎 Дефекты не обнаружены.")
		return sb.String()
	}

	fmt.Fprintf(&sb, "🔎 Дефектов: %d", rec.DefectCount)
	for _, c := range countByClass(rec.Defects) {
		fmt.Fprintf(&sb, "\n• %s — %d", c.class, c.n)
	}
	return sb.String()
}

type classCount struct {
	class string
	n     int
}

// countByClass группирует дефекты по классу: сначала самые частые
func countByClass(defects []entity.Detection) []classCount {
	counts := map[string]int{}
	for _, d := range defects {
		counts[entity.CanonicalClass(d.Class)]++
	}

	out := make([]classCount, 0, len(counts))
	for class, n := range counts {
		out = append(out, classCount{class: class, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].class < out[j].class
	})
	return out
}
