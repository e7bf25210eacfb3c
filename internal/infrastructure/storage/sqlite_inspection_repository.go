package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

// timeLayout фиксированной ширины, чтобы строки сортировались как время
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const inspectionColumns = `id, lat, lng, address, timestamp, score, status, defect_count, defects,
	original_image_url, annotated_image_url, inspector_id, created_at,
	repair_status, estimated_completion_date, admin_notes, approved_by, approved_at,
	after_image_url, completion_date, user_feedback, user_rating, feedback_at`

// SQLiteInspectionRepository хранилище обследований в SQLite
type SQLiteInspectionRepository struct {
	db *sql.DB
}

// NewSQLiteInspectionRepository открывает базу и применяет миграции
func NewSQLiteInspectionRepository(path string) (*SQLiteInspectionRepository, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := schemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	lgr.Logger.Info("inspections db ready", "path", path, "schema_version", version)
	return &SQLiteInspectionRepository{db: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close закрывает соединение с базой
func (r *SQLiteInspectionRepository) Close() error {
	return r.db.Close()
}

// Create вставляет запись одной транзакцией
func (r *SQLiteInspectionRepository) Create(ctx context.Context, rec *entity.InspectionRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.New("inspection id is required")
	}
	if rec.DefectCount != len(rec.Defects) {
		return fmt.Errorf("defect_count %d does not match %d defects", rec.DefectCount, len(rec.Defects))
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("invalid status %q", rec.Status)
	}
	if rec.RepairStatus == "" {
		rec.RepairStatus = entity.RepairPending
	}

	defects := rec.Defects
	if defects == nil {
		defects = entity.DetectionSet{}
	}
	defectsJSON, err := json.Marshal(defects)
	if err != nil {
		return fmt.Errorf("marshal defects: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO inspections (`+inspectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Lat, rec.Lng, rec.Address, formatTime(rec.Timestamp),
		rec.Score, string(rec.Status), rec.DefectCount, string(defectsJSON),
		rec.OriginalImageURL, rec.AnnotatedImageURL, rec.InspectorID, formatTime(rec.CreatedAt),
		string(rec.RepairStatus), rec.EstimatedCompletionDate, rec.AdminNotes, rec.ApprovedBy, nullTime(rec.ApprovedAt),
		rec.AfterImageURL, rec.CompletionDate, rec.UserFeedback, rec.UserRating, nullTime(rec.FeedbackAt),
	)
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit inspection: %w", err)
	}
	return nil
}

// Get возвращает запись; чужая запись для инспектора считается отсутствующей
func (r *SQLiteInspectionRepository) Get(ctx context.Context, id string, scope entity.Scope) (*entity.InspectionRecord, error) {
	where, args := scopeFilter(scope)
	args = append([]any{id}, args...)
	row := r.db.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id = ?`+where, args...)
	return scanRecord(row)
}

// List страница записей, новые первыми
func (r *SQLiteInspectionRepository) List(ctx context.Context, scope entity.Scope, limit, offset int) ([]entity.InspectionRecord, int, error) {
	where, args := scopeFilter(scope)
	if where != "" {
		where = " WHERE 1=1" + where
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inspections`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count inspections: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inspectionColumns+` FROM inspections`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query inspections: %w", err)
	}
	defer rows.Close()

	records := make([]entity.InspectionRecord, 0, max(limit, 0))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate inspections: %w", err)
	}
	return records, total, nil
}

func (r *SQLiteInspectionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM inspections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete inspection: %w", err)
	}
	return requireAffected(res)
}

// UpdateRepairStatus пустые срок и заметки не затирают прежние значения
func (r *SQLiteInspectionRepository) UpdateRepairStatus(ctx context.Context, id string, u entity.StatusUpdate) (*entity.InspectionRecord, error) {
	return r.update(ctx, id, `UPDATE inspections SET
			repair_status = ?,
			estimated_completion_date = CASE WHEN ? = '' THEN estimated_completion_date ELSE ? END,
			admin_notes = CASE WHEN ? = '' THEN admin_notes ELSE ? END,
			approved_by = ?,
			approved_at = ?
		WHERE id = ?`,
		string(u.RepairStatus),
		u.EstimatedCompletionDate, u.EstimatedCompletionDate,
		u.AdminNotes, u.AdminNotes,
		u.ApprovedBy, formatTime(u.ApprovedAt),
		id,
	)
}

// Complete отмечает ремонт выполненным
func (r *SQLiteInspectionRepository) Complete(ctx context.Context, id string, c entity.Completion) (*entity.InspectionRecord, error) {
	return r.update(ctx, id, `UPDATE inspections SET
			repair_status = ?,
			after_image_url = ?,
			completion_date = ?,
			admin_notes = CASE WHEN ? = '' THEN admin_notes ELSE ? END,
			approved_by = ?,
			approved_at = ?
		WHERE id = ?`,
		string(entity.RepairCompleted),
		c.AfterImageURL,
		c.CompletionDate,
		c.AdminNotes, c.AdminNotes,
		c.ApprovedBy, formatTime(c.ApprovedAt),
		id,
	)
}

func (r *SQLiteInspectionRepository) AddFeedback(ctx context.Context, id string, f entity.Feedback) (*entity.InspectionRecord, error) {
	return r.update(ctx, id, `UPDATE inspections SET
			user_feedback = ?,
			user_rating = ?,
			feedback_at = ?
		WHERE id = ?`,
		f.Text, f.Rating, formatTime(f.FeedbackAt), id,
	)
}

// Summaries краткие данные всех записей, новые первыми
func (r *SQLiteInspectionRepository) Summaries(ctx context.Context) ([]entity.InspectionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, lat, lng, score, status, address, defect_count, created_at
		FROM inspections ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []entity.InspectionSummary
	for rows.Next() {
		var (
			s       entity.InspectionSummary
			status  string
			created string
		)
		if err := rows.Scan(&s.ID, &s.Lat, &s.Lng, &s.Score, &status, &s.Address, &s.DefectCount, &created); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Status = entity.Status(status)
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

// update выполняет изменение и читает запись в той же транзакции
func (r *SQLiteInspectionRepository) update(ctx context.Context, id, query string, args ...any) (*entity.InspectionRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update inspection: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*entity.InspectionRecord, error) {
	var (
		rec                     entity.InspectionRecord
		status, repair, defects string
		timestamp, created      string
		approvedAt, feedbackAt  sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.Lat, &rec.Lng, &rec.Address, &timestamp, &rec.Score, &status, &rec.DefectCount, &defects,
		&rec.OriginalImageURL, &rec.AnnotatedImageURL, &rec.InspectorID, &created,
		&repair, &rec.EstimatedCompletionDate, &rec.AdminNotes, &rec.ApprovedBy, &approvedAt,
		&rec.AfterImageURL, &rec.CompletionDate, &rec.UserFeedback, &rec.UserRating, &feedbackAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrInspectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan inspection: %w", err)
	}

	rec.Status = entity.Status(status)
	rec.RepairStatus = entity.RepairStatus(repair)
	if err := json.Unmarshal([]byte(defects), &rec.Defects); err != nil {
		return nil, fmt.Errorf("decode defects of %s: %w", rec.ID, err)
	}
	if rec.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, err
	}
	if rec.FeedbackAt, err = parseNullTime(feedbackAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scopeFilter(scope entity.Scope) (string, []any) {
	if scope.All {
		return "", nil
	}
	return " AND inspector_id = ?", []any{scope.InspectorID}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return port.ErrInspectionNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Проверка реализации интерфейса
var _ port.InspectionRepository = (*SQLiteInspectionRepository)(nil)
