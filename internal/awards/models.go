package awards

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Award is keyed by name for business purposes: re-uploading an entry kit
// under an existing name updates the row instead of inserting a second one.
type Award struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Country      string    `gorm:"type:varchar(64);not null" json:"country"`
	Language     string    `gorm:"type:varchar(16);not null" json:"language"`
	Description  *string   `gorm:"type:text" json:"description,omitempty"`
	EntryKitPath string    `gorm:"type:varchar(512);not null" json:"entry_kit_path"`
	UploadDate   time.Time `json:"upload_date"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Award) TableName() string { return "awards" }

func (a *Award) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
