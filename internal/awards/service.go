package awards

import (
	"context"
	"errors"
	"time"

	"github.com/awardflow/awardflow/internal/assets"
	"github.com/awardflow/awardflow/internal/common"
	"gorm.io/gorm"
)

const entryKitDir = "entry-kits"

type Service struct {
	repo  *Repo
	files assets.Store
}

func NewService(repo *Repo, files assets.Store) *Service {
	return &Service{repo: repo, files: files}
}

type UploadEntryKitInput struct {
	Name        string
	Country     string
	Language    string
	Description string
	File        []byte
}

// UploadEntryKit stores the PDF and upserts the award keyed on its name.
// Repeat uploads overwrite country/language/kit reference on the existing
// row; the previous kit file stays on disk unreferenced.
func (s *Service) UploadEntryKit(ctx context.Context, in UploadEntryKitInput) (*Award, error) {
	if in.Name == "" || in.Country == "" || in.Language == "" || len(in.File) == 0 {
		return nil, common.NewError(common.KindValidation, "awardName, country, language and entryKit are required")
	}

	kitPath, err := s.files.Save(entryKitDir, in.Name, in.File)
	if err != nil {
		return nil, common.WrapError(common.KindCreation, "failed to store entry kit", err)
	}

	existing, err := s.repo.GetByName(ctx, in.Name)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.WrapError(common.KindCreation, "failed to look up award", err)
	}

	now := time.Now()

	if existing != nil {
		existing.Country = in.Country
		existing.Language = in.Language
		if in.Description != "" {
			existing.Description = &in.Description
		}
		existing.EntryKitPath = kitPath
		existing.UploadDate = now
		if err := s.repo.Save(ctx, existing); err != nil {
			return nil, common.WrapError(common.KindCreation, "failed to update award", err)
		}
		return existing, nil
	}

	a := &Award{
		Name:         in.Name,
		Country:      in.Country,
		Language:     in.Language,
		EntryKitPath: kitPath,
		UploadDate:   now,
		IsActive:     true,
	}
	if in.Description != "" {
		a.Description = &in.Description
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, common.WrapError(common.KindCreation, "failed to create award", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Award, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindNotFound, "award not found")
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]Award, error) {
	return s.repo.List(ctx, activeOnly)
}
