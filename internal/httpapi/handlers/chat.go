package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/awardflow/awardflow/internal/common"
	"github.com/awardflow/awardflow/internal/submission"
)

type startSubmissionReq struct {
	ProjectID string `json:"project_id" binding:"required"`
	AwardID   string `json:"award_id" binding:"required"`
}

// StartSubmission is idempotent per (project, award): repeat calls return the
// existing submission id.
func (h *Handler) StartSubmission(c *gin.Context) {
	var req startSubmissionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sub, created, err := h.SubmissionSvc.Start(c.Request.Context(), req.ProjectID, req.AwardID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	common.OK(c, gin.H{
		"submission_id": sub.ID,
		"created":       created,
	})
}

// GetSubmission returns the submission with its project, award and the chat
// session transcript, which is everything the chat view needs.
func (h *Handler) GetSubmission(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.SubmissionSvc.Get(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}

	sess, err := h.SubmissionSvc.GetSession(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}

	turns, err := submission.DecodeTranscript(sess.Messages)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "corrupt transcript")
		return
	}

	common.OK(c, gin.H{
		"submission":      sub,
		"chat_session_id": sess.ID,
		"messages":        turns,
	})
}

type advanceReq struct {
	SubmissionID  string            `json:"submission_id" binding:"required"`
	ChatSessionID string            `json:"chat_session_id" binding:"required"`
	Message       string            `json:"message" binding:"required"`
	History       []submission.Turn `json:"history"`
}

// AdvanceConversation runs one synchronous assistant turn.
func (h *Handler) AdvanceConversation(c *gin.Context) {
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.SubmissionSvc.Advance(c.Request.Context(),
		req.SubmissionID, req.ChatSessionID, req.Message, req.History)
	if err != nil {
		failFromErr(c, err)
		return
	}

	common.OK(c, gin.H{"response": reply})
}

// AdvanceConversationAsync records the user turn, queues the provider call
// and returns a job id to poll.
func (h *Handler) AdvanceConversationAsync(c *gin.Context) {
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := h.SubmissionSvc.ValidateSession(c.Request.Context(),
		req.SubmissionID, req.ChatSessionID); err != nil {
		failFromErr(c, err)
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		log.Printf("[AdvanceConversationAsync] NewULID failed submission_id=%s err=%v", req.SubmissionID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &submission.Job{
		ID:             jobID,
		SubmissionID:   req.SubmissionID,
		ChatSessionID:  req.ChatSessionID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         submission.JobQueued,
	}

	j, created, err := h.SubmissionSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		log.Printf("[AdvanceConversationAsync] CreateJobOrGetExisting failed submission_id=%s job_id=%s err=%v",
			req.SubmissionID, jobID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// The user turn is recorded once, when the job row is first created.
	// A keyed retry gets the existing job back and must not touch the
	// transcript again.
	if created {
		if err := h.SubmissionSvc.AppendUserTurn(c.Request.Context(),
			req.SubmissionID, req.ChatSessionID, req.Message); err != nil {
			if failErr := h.SubmissionSvc.FailJob(c.Request.Context(), j.ID, common.MessageOf(err)); failErr != nil {
				log.Printf("[AdvanceConversationAsync] FailJob failed job_id=%s err=%v", j.ID, failErr)
			}
			failFromErr(c, err)
			return
		}
	}

	// Publish whenever the job is still queued: fresh jobs, and keyed
	// retries whose first publish attempt failed.
	if j.Status == submission.JobQueued {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			log.Printf("[AdvanceConversationAsync] PublishJob failed submission_id=%s job_id=%s err=%v",
				req.SubmissionID, j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetAdvanceJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.SubmissionSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":            j.ID,
			"submission_id": j.SubmissionID,
			"status":        j.Status,
			"reply":         j.Reply,
			"error":         j.Error,
			"created_at":    j.CreatedAt,
			"updated_at":    j.UpdatedAt,
		},
	})
}
