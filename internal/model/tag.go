package model

import "time"

type Tag struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Color     *string   `json:"color,omitempty" db:"color"`
	TaskCount int       `json:"task_count" db:"task_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
