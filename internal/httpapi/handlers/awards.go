package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/awardflow/awardflow/internal/awards"
	"github.com/awardflow/awardflow/internal/common"
)

// kits are one-pager rulebooks; 32 MiB is generous
const maxUploadBytes = 32 << 20

func readUploadedFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	if fh.Size > maxUploadBytes {
		return nil, io.ErrShortBuffer
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

// UploadEntryKit accepts the multipart form from the awards page and upserts
// the award by name.
func (h *Handler) UploadEntryKit(c *gin.Context) {
	file, err := readUploadedFile(c, "entryKit")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "entryKit file is required")
		return
	}

	award, err := h.AwardSvc.UploadEntryKit(c.Request.Context(), awards.UploadEntryKitInput{
		Name:        c.PostForm("awardName"),
		Country:     c.PostForm("country"),
		Language:    c.PostForm("language"),
		Description: c.PostForm("description"),
		File:        file,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}

	common.OK(c, gin.H{"award": award})
}

func (h *Handler) ListAwards(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	list, err := h.AwardSvc.List(c.Request.Context(), activeOnly)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"awards": list})
}

func (h *Handler) GetAward(c *gin.Context) {
	award, err := h.AwardSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"award": award})
}
