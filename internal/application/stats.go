package app

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"roadsense/internal/domain/entity"
)

const recentInspections = 10

// Stats сводка для панели администратора
func (s *InspectionService) Stats(ctx context.Context, who entity.Identity) (*entity.Stats, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}

	summaries, err := s.repo.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.repo.List(ctx, entity.Scope{All: true}, recentInspections, 0)
	if err != nil {
		return nil, err
	}

	stats := summarize(summaries)
	stats.RecentInspections = recent
	return stats, nil
}

func summarize(summaries []entity.InspectionSummary) *entity.Stats {
	stats := &entity.Stats{
		TotalInspections: len(summaries),
		StatusBreakdown: map[entity.Status]int{
			entity.StatusGood:     0,
			entity.StatusModerate: 0,
			entity.StatusCritical: 0,
		},
		RecentInspections: []entity.InspectionRecord{},
	}
	if len(summaries) == 0 {
		return stats
	}

	scores := make([]float64, 0, len(summaries))
	for _, sm := range summaries {
		scores = append(scores, float64(sm.Score))
		stats.TotalDefects += sm.DefectCount
		if sm.Status == entity.StatusCritical {
			stats.CriticalZones++
		}
		if _, ok := stats.StatusBreakdown[sm.Status]; ok {
			stats.StatusBreakdown[sm.Status]++
		}
	}
	stats.AvgScore = int(math.Floor(stat.Mean(scores, nil) + 0.5))
	return stats
}

// Heatmap точки всех обследований; вес растёт при падении балла
func (s *InspectionService) Heatmap(ctx context.Context) ([]entity.HeatmapPoint, error) {
	summaries, err := s.repo.Summaries(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]entity.HeatmapPoint, 0, len(summaries))
	for _, sm := range summaries {
		points = append(points, entity.HeatmapPoint{
			ID:        sm.ID,
			Lat:       sm.Lat,
			Lng:       sm.Lng,
			Score:     sm.Score,
			Status:    sm.Status,
			Weight:    entity.MaxScore - sm.Score,
			Address:   sm.Address,
			CreatedAt: sm.CreatedAt,
		})
	}
	return points, nil
}
