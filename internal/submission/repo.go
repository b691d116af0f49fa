package submission

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/awards"
	"github.com/awardflow/awardflow/internal/projects"
)

// ErrVersionConflict means the transcript changed between read and write;
// the caller's turn must be retried on top of the new transcript.
var ErrVersionConflict = errors.New("chat session transcript version conflict")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) ProjectExists(ctx context.Context, id string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&projects.Project{}).Where("id = ?", id).Count(&cnt).Error
	return cnt > 0, err
}

func (r *Repo) AwardExists(ctx context.Context, id string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&awards.Award{}).Where("id = ?", id).Count(&cnt).Error
	return cnt > 0, err
}

func (r *Repo) GetByPair(ctx context.Context, projectID, awardID string) (*Submission, error) {
	var s Submission
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND award_id = ?", projectID, awardID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByIDWithRefs loads the submission with its project and award, which the
// conversation prompt interpolates on every turn.
func (r *Repo) GetByIDWithRefs(ctx context.Context, id string) (*Submission, error) {
	var s Submission
	if err := r.db.WithContext(ctx).
		Preload("Project").
		Preload("Award").
		First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListByProject(ctx context.Context, projectID string) ([]Submission, error) {
	var out []Submission
	if err := r.db.WithContext(ctx).
		Preload("Award").
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByProjects fetches the submissions of several projects in one query,
// award preloaded, so the project list view does not fan out per row.
func (r *Repo) ListByProjects(ctx context.Context, projectIDs []string) ([]Submission, error) {
	if len(projectIDs) == 0 {
		return []Submission{}, nil
	}
	var out []Submission
	if err := r.db.WithContext(ctx).
		Preload("Award").
		Where("project_id IN ?", projectIDs).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWithSession creates the submission and its chat session as one
// transaction; a submission must never exist without its session.
func (r *Repo) CreateWithSession(ctx context.Context, s *Submission) (*ChatSession, error) {
	var sess *ChatSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		sess = &ChatSession{
			SubmissionID: s.ID,
			Messages:     datatypes.JSON("[]"),
		}
		return tx.Create(sess).Error
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Repo) GetSessionByID(ctx context.Context, id string) (*ChatSession, error) {
	var c ChatSession
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetSessionBySubmissionID(ctx context.Context, submissionID string) (*ChatSession, error) {
	var c ChatSession
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ReplaceTranscript overwrites the whole serialized transcript, but only when
// the caller still holds the current version. Zero rows affected means a
// concurrent turn won the write.
func (r *Repo) ReplaceTranscript(ctx context.Context, sessionID string, version uint64, raw datatypes.JSON) error {
	res := r.db.WithContext(ctx).Model(&ChatSession{}).
		Where("id = ? AND version = ?", sessionID, version).
		Updates(map[string]any{
			"messages": raw,
			"version":  version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, reply string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobSucceeded,
			"reply":  reply,
			"error":  nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobFailed,
			"error":  errMsg,
			"reply":  nil,
		}).Error
}

func (r *Repo) GetJobByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJobOrGetExisting tries to create a job; when the idempotency key is
// already taken it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByIdempotencyKey(ctx, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
