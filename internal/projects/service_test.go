package projects

import (
	"context"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/assets"
	"github.com/awardflow/awardflow/internal/common"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Project{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestCreate_AlwaysInsertsNewRow(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(NewRepo(db), assets.NewDiskStore(t.TempDir()))

	in := CreateInput{
		Name:        "Summer Campaign",
		Description: "Q3 brand push",
		File:        []byte("%PDF-1.4 board"),
	}

	first, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	// project creation deliberately has no upsert: same name, two rows
	if first.ID == second.ID {
		t.Fatalf("expected two distinct projects, both got id %q", first.ID)
	}

	var cnt int64
	if err := db.Model(&Project{}).Where("name = ?", in.Name).Count(&cnt).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 rows, got %d", cnt)
	}
}

func TestCreate_BoardReference(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(NewRepo(db), assets.NewDiskStore(t.TempDir()))

	p, err := svc.Create(context.Background(), CreateInput{
		Name: "Summer Campaign",
		File: []byte("board"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(p.BoardPath, "/uploads/projects/summer-campaign-") {
		t.Fatalf("unexpected board path: %q", p.BoardPath)
	}
	if p.Description != nil {
		t.Fatalf("description should stay unset when omitted")
	}
}

func TestCreate_Validation(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(NewRepo(db), assets.NewDiskStore(t.TempDir()))

	if _, err := svc.Create(context.Background(), CreateInput{File: []byte("x")}); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateInput{Name: "x"}); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation error for missing board, got %v", err)
	}
}
