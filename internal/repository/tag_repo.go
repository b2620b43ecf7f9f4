package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"

	"todoagent/internal/model"
)

type TagRepository struct {
	db     DBInterface
	logger *zap.Logger
}

func NewTagRepository(db DBInterface, logger *zap.Logger) *TagRepository {
	return &TagRepository{db: db, logger: logger}
}

func (r *TagRepository) CreateTag(ctx context.Context, tag *model.Tag) (*model.Tag, error) {
	r.logger.Debug("Inserting tag",
		zap.String("user_id", tag.UserID),
		zap.String("name", tag.Name),
	)

	query, args, err := psql.Insert("tags").
		Columns("user_id", "name", "color").
		Values(tag.UserID, tag.Name, tag.Color).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&tag.ID, &tag.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			r.logger.Info("Tag already exists",
				zap.String("user_id", tag.UserID),
				zap.String("name", tag.Name),
			)
			return nil, fmt.Errorf("tag %q: %w", tag.Name, ErrConflict)
		}
		r.logger.Error("Failed to insert tag",
			zap.Error(err),
			zap.String("user_id", tag.UserID),
		)
		return nil, fmt.Errorf("inserting tag: %w", err)
	}

	r.logger.Info("Tag inserted successfully",
		zap.Int64("tag_id", tag.ID),
		zap.String("user_id", tag.UserID),
	)
	return tag, nil
}

// ListTags returns the user's tags by name with the number of tasks using each.
func (r *TagRepository) ListTags(ctx context.Context, userID string) ([]*model.Tag, error) {
	query, args, err := psql.Select(
		"t.id", "t.user_id", "t.name", "t.color", "t.created_at",
		"COUNT(tt.task_id) AS task_count",
	).
		From("tags t").
		LeftJoin("task_tags tt ON tt.tag_id = t.id").
		Where(squirrel.Eq{"t.user_id": userID}).
		GroupBy("t.id").
		OrderBy("lower(t.name)", "t.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var tags []*model.Tag
	if err := pgxscan.Select(ctx, r.db, &tags, query, args...); err != nil {
		r.logger.Error("Failed to query tags",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return nil, fmt.Errorf("scanning tags: %w", err)
	}
	return tags, nil
}

// DeleteTag removes the tag; task_tags rows cascade and tasks are untouched.
func (r *TagRepository) DeleteTag(ctx context.Context, userID string, id int64) (*model.Tag, error) {
	query, args, err := psql.Delete("tags").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING id, user_id, name, color, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building delete query: %w", err)
	}

	var tag model.Tag
	if err := pgxscan.Get(ctx, r.db, &tag, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("tag %d: %w", id, ErrNotFound)
		}
		r.logger.Error("Failed to delete tag",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.Int64("tag_id", id),
		)
		return nil, fmt.Errorf("deleting tag: %w", err)
	}

	r.logger.Info("Tag deleted successfully",
		zap.String("user_id", userID),
		zap.Int64("tag_id", id),
	)
	return &tag, nil
}
