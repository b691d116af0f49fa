package awards

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, a *Award) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) Save(ctx context.Context, a *Award) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Award, error) {
	var a Award
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) GetByName(ctx context.Context, name string) (*Award, error) {
	var a Award
	if err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns awards newest-updated first. With activeOnly it narrows to
// active awards and orders them by name instead, for selection dropdowns.
func (r *Repo) List(ctx context.Context, activeOnly bool) ([]Award, error) {
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true).Order("name ASC")
	} else {
		q = q.Order("updated_at DESC")
	}
	var out []Award
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
