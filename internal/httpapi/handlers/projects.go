package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/awardflow/awardflow/internal/common"
	"github.com/awardflow/awardflow/internal/projects"
	"github.com/awardflow/awardflow/internal/submission"
)

// CreateProject accepts the multipart form from the projects page. Every call
// inserts a new project; names are not unique here.
func (h *Handler) CreateProject(c *gin.Context) {
	file, err := readUploadedFile(c, "board")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "board file is required")
		return
	}

	project, err := h.ProjectSvc.Create(c.Request.Context(), projects.CreateInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		File:        file,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}

	common.OK(c, gin.H{"project": project})
}

type projectWithSubmissions struct {
	projects.Project
	Submissions []submission.Submission `json:"submissions"`
}

// ListProjects returns every project with its submissions and their awards,
// which is the full payload the projects overview renders.
func (h *Handler) ListProjects(c *gin.Context) {
	list, err := h.ProjectSvc.List(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	subsByProject, err := h.SubmissionSvc.ListByProjects(c.Request.Context(), ids)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	out := make([]projectWithSubmissions, 0, len(list))
	for _, p := range list {
		subs := subsByProject[p.ID]
		if subs == nil {
			subs = []submission.Submission{}
		}
		out = append(out, projectWithSubmissions{Project: p, Submissions: subs})
	}

	common.OK(c, gin.H{"projects": out})
}

// GetProject returns the project detail view payload: the project plus its
// submissions with award names attached.
func (h *Handler) GetProject(c *gin.Context) {
	id := c.Param("id")

	project, err := h.ProjectSvc.Get(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}

	subs, err := h.SubmissionSvc.ListByProject(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"project":     project,
		"submissions": subs,
	})
}
