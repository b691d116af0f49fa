package submission

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/awards"
	"github.com/awardflow/awardflow/internal/projects"
)

const StatusDraft = "draft"

// Submission links one project to one award; the (project, award) pair is
// unique for the lifetime of the system.
type Submission struct {
	ID                 string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProjectID          string         `gorm:"type:varchar(36);not null;index:uniq_submission_pair,unique,priority:1" json:"project_id"`
	AwardID            string         `gorm:"type:varchar(36);not null;index:uniq_submission_pair,unique,priority:2" json:"award_id"`
	SelectedCategories datatypes.JSON `gorm:"not null" json:"selected_categories"`
	Status             string         `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	Project projects.Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Award   awards.Award     `gorm:"foreignKey:AwardID" json:"award,omitempty"`
}

func (Submission) TableName() string { return "submissions" }

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ChatSession owns the serialized transcript for its submission (1:1).
// Version is the optimistic-lock token for whole-transcript replacement.
type ChatSession struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubmissionID string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"submission_id"`
	Messages     datatypes.JSON `gorm:"not null" json:"messages"`
	Version      uint64         `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

func (c *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Turn is one transcript entry. Timestamp is epoch millis, matching what the
// web client displays.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func EncodeTranscript(turns []Turn) (datatypes.JSON, error) {
	if turns == nil {
		turns = []Turn{}
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func DecodeTranscript(raw datatypes.JSON) ([]Turn, error) {
	if len(raw) == 0 {
		return []Turn{}, nil
	}
	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}
