package projects

import (
	"context"
	"errors"

	"github.com/awardflow/awardflow/internal/assets"
	"github.com/awardflow/awardflow/internal/common"
	"gorm.io/gorm"
)

const boardDir = "projects"

type Service struct {
	repo  *Repo
	files assets.Store
}

func NewService(repo *Repo, files assets.Store) *Service {
	return &Service{repo: repo, files: files}
}

type CreateInput struct {
	Name        string
	Description string
	File        []byte
}

// Create stores the board PDF and inserts a new project. Unlike award entry
// kits there is no upsert: two uploads with the same name are two projects.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Project, error) {
	if in.Name == "" || len(in.File) == 0 {
		return nil, common.NewError(common.KindValidation, "name and board are required")
	}

	boardPath, err := s.files.Save(boardDir, in.Name, in.File)
	if err != nil {
		return nil, common.WrapError(common.KindCreation, "failed to store project board", err)
	}

	p := &Project{
		Name:      in.Name,
		BoardPath: boardPath,
	}
	if in.Description != "" {
		p.Description = &in.Description
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, common.WrapError(common.KindCreation, "failed to create project", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindNotFound, "project not found")
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}
