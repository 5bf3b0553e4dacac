package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StrokeRepository durable storage and ordered retrieval of strokes by room
type StrokeRepository interface {
	// AppendStroke inserts one sealed stroke as a single row
	AppendStroke(ctx context.Context, room string, stroke domain.Stroke, authorID string) error
	// LoadStrokes returns all strokes for a room in insertion order
	LoadStrokes(ctx context.Context, room string) ([]domain.Stroke, error)
	// ClearRoom deletes every persisted stroke for the room
	ClearRoom(ctx context.Context, room string) error
}

// drawingRow one sealed stroke; the full point sequence is one jsonb value
type drawingRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RoomName  string    `gorm:"not null;index:idx_drawing_room_created"`
	Points    string    `gorm:"type:jsonb;not null"`
	CreatedBy string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_drawing_room_created"`
}

func (drawingRow) TableName() string { return "drawing_data" }

type strokeRepository struct {
	db  *gorm.DB
	pub channel.Publisher
}

// NewStrokeRepository create a StrokeRepository over postgres. Committed
// rows are replayed on the change feed through pub.
func NewStrokeRepository(db *gorm.DB, pub channel.Publisher) StrokeRepository {
	return &strokeRepository{db: db, pub: pub}
}

func (r *strokeRepository) AppendStroke(ctx context.Context, room string, stroke domain.Stroke, authorID string) error {
	if err := stroke.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if authorID == "" {
		return domain.ErrAuth
	}

	points, err := json.Marshal(stroke.Points)
	if err != nil {
		return fmt.Errorf("%w: encode points: %v", domain.ErrValidation, err)
	}

	row := drawingRow{
		RoomName:  room,
		Points:    string(points),
		CreatedBy: authorID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: append stroke: %v", domain.ErrPersistence, err)
	}

	if r.pub != nil {
		change := domain.StrokeChange{RoomName: room, Points: stroke.Points, CreatedBy: authorID}
		if err := r.pub.PublishChange(ctx, domain.TableDrawingData, change); err != nil {
			logger.Log.Warn("stroke change publish failed", zap.String("room", room), zap.Error(err))
		}
	}
	return nil
}

func (r *strokeRepository) LoadStrokes(ctx context.Context, room string) ([]domain.Stroke, error) {
	var rows []drawingRow
	err := r.db.WithContext(ctx).
		Where("room_name = ?", room).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load strokes: %v", domain.ErrPersistence, err)
	}

	strokes := make([]domain.Stroke, 0, len(rows))
	for _, row := range rows {
		var points []domain.DrawPoint
		if err := json.Unmarshal([]byte(row.Points), &points); err != nil {
			logger.Log.Warn("skip undecodable stroke row", zap.Int64("id", row.ID), zap.Error(err))
			continue
		}
		strokes = append(strokes, domain.Stroke{Points: points})
	}
	return strokes, nil
}

func (r *strokeRepository) ClearRoom(ctx context.Context, room string) error {
	if err := r.db.WithContext(ctx).Where("room_name = ?", room).Delete(&drawingRow{}).Error; err != nil {
		return fmt.Errorf("%w: clear room: %v", domain.ErrPersistence, err)
	}
	return nil
}
