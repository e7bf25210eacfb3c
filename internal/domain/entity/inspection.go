package entity

import "time"

// RepairStatus этап работ по ремонту участка
type RepairStatus string

const (
	RepairPending    RepairStatus = "pending"
	RepairApproved   RepairStatus = "approved"
	RepairInProgress RepairStatus = "in_progress"
	RepairCompleted  RepairStatus = "completed"
	RepairRejected   RepairStatus = "rejected"
)

// Valid сообщает, входит ли статус ремонта в перечень
func (s RepairStatus) Valid() bool {
	switch s {
	case RepairPending, RepairApproved, RepairInProgress, RepairCompleted, RepairRejected:
		return true
	}
	return false
}

// InspectionRecord сохранённый результат обследования участка дороги.
// Поля после InspectorID меняются только действиями ремонтного процесса.
type InspectionRecord struct {
	ID                string       `json:"id"`
	Lat               float64      `json:"lat"`
	Lng               float64      `json:"lng"`
	Address           string       `json:"address"`
	Timestamp         time.Time    `json:"timestamp"`
	Score             int          `json:"score"`
	Status            Status       `json:"status"`
	DefectCount       int          `json:"defect_count"`
	Defects           DetectionSet `json:"defects"`
	OriginalImageURL  string       `json:"original_image_url"`
	AnnotatedImageURL string       `json:"annotated_image_url"`
	InspectorID       string       `json:"inspector_id"`
	CreatedAt         time.Time    `json:"created_at"`

	RepairStatus            RepairStatus `json:"repair_status"`
	EstimatedCompletionDate string       `json:"estimated_completion_date,omitempty"`
	AdminNotes              string       `json:"admin_notes,omitempty"`
	ApprovedBy              string       `json:"approved_by,omitempty"`
	ApprovedAt              *time.Time   `json:"approved_at,omitempty"`
	AfterImageURL           string       `json:"after_image_url,omitempty"`
	CompletionDate          string       `json:"completion_date,omitempty"`
	UserFeedback            string       `json:"user_feedback,omitempty"`
	UserRating              int          `json:"user_rating,omitempty"`
	FeedbackAt              *time.Time   `json:"feedback_at,omitempty"`
}

// StatusUpdate решение администратора по участку
type StatusUpdate struct {
	RepairStatus            RepairStatus
	EstimatedCompletionDate string
	AdminNotes              string
	ApprovedBy              string
	ApprovedAt              time.Time
}

// Completion отметка о завершении ремонта
type Completion struct {
	AfterImageURL  string
	CompletionDate string
	AdminNotes     string
	ApprovedBy     string
	ApprovedAt     time.Time
}

// Feedback отзыв инспектора о выполненном ремонте
type Feedback struct {
	Text       string
	Rating     int
	FeedbackAt time.Time
}

// InspectionSummary сокращённая запись для статистики и тепловой карты
type InspectionSummary struct {
	ID          string
	Lat         float64
	Lng         float64
	Score       int
	Status      Status
	Address     string
	DefectCount int
	CreatedAt   time.Time
}

// HeatmapPoint точка тепловой карты: чем ниже балл, тем больше вес
type HeatmapPoint struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Score     int       `json:"score"`
	Status    Status    `json:"status"`
	Weight    int       `json:"weight"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats сводка по всем обследованиям
type Stats struct {
	TotalInspections  int                `json:"totalInspections"`
	CriticalZones     int                `json:"criticalZones"`
	AvgScore          int                `json:"avgScore"`
	TotalDefects      int                `json:"totalDefects"`
	StatusBreakdown   map[Status]int     `json:"statusBreakdown"`
	RecentInspections []InspectionRecord `json:"recentInspections"`
}
