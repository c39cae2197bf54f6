package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the generation lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the generation will not change state again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is the lifecycle record of one image transformation job.
// OutputImageKey points into owned object storage; the provider's own asset
// URL is never persisted because the provider does not retain results.
type Generation struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID         snowflake.ID `gorm:"not null;index" json:"user_id"`
	StyleSlug      string       `gorm:"type:text;not null" json:"style_slug"`
	RoomType       string       `gorm:"type:text;not null" json:"room_type"`
	Prompt         string       `gorm:"type:text;not null" json:"-"`
	InputImageKey  string       `gorm:"type:text;not null" json:"input_image_key"`
	OutputImageKey *string      `gorm:"type:text" json:"output_image_key,omitempty"`
	Status         Status       `gorm:"type:text;not null;index" json:"status"`
	Cost           int64        `gorm:"not null" json:"cost"`
	HDUnlocked     bool         `gorm:"not null;default:false" json:"hd_unlocked"`
	PaymentRef     *string      `gorm:"type:text" json:"-"`
	ProviderJobID  *string      `gorm:"type:text;uniqueIndex:ux_generations_provider_job" json:"-"`
	ErrorMessage   *string      `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Generation) TableName() string { return "generations" }
