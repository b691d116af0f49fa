package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/ai"
	"github.com/awardflow/awardflow/internal/common"
)

// FallbackReply is returned to the user when the provider answers with no
// usable text block; the request itself is not failed.
const FallbackReply = "Sorry, I could not generate a response."

type Service struct {
	repo      *Repo
	registry  *ai.Registry
	provider  string
	maxTokens int
}

func NewService(repo *Repo, registry *ai.Registry, provider string, maxTokens int) *Service {
	if provider == "" {
		provider = "anthropic"
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &Service{repo: repo, registry: registry, provider: provider, maxTokens: maxTokens}
}

// Start returns the submission for (projectID, awardID), creating it together
// with its chat session on first call. The second return value reports
// whether a new submission was created.
func (s *Service) Start(ctx context.Context, projectID, awardID string) (*Submission, bool, error) {
	if projectID == "" || awardID == "" {
		return nil, false, common.NewError(common.KindValidation, "projectId and awardId are required")
	}

	if ok, err := s.repo.ProjectExists(ctx, projectID); err != nil {
		return nil, false, err
	} else if !ok {
		return nil, false, common.NewError(common.KindNotFound, "project not found")
	}
	if ok, err := s.repo.AwardExists(ctx, awardID); err != nil {
		return nil, false, err
	} else if !ok {
		return nil, false, common.NewError(common.KindNotFound, "award not found")
	}

	existing, err := s.repo.GetByPair(ctx, projectID, awardID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	sub := &Submission{
		ProjectID:          projectID,
		AwardID:            awardID,
		SelectedCategories: datatypes.JSON("[]"),
		Status:             StatusDraft,
	}
	if _, err := s.repo.CreateWithSession(ctx, sub); err != nil {
		// A concurrent Start for the same pair may have won the unique
		// index; in that case hand back the winner's row.
		if winner, getErr := s.repo.GetByPair(ctx, projectID, awardID); getErr == nil {
			return winner, false, nil
		}
		return nil, false, common.WrapError(common.KindCreation, "failed to create submission", err)
	}
	return sub, true, nil
}

// Advance runs one conversation turn: ground the provider with the
// submission's project and award, send the history plus the new user
// message, then replace the stored transcript with history + user turn +
// assistant turn. The transcript is written only after the provider call
// succeeds.
func (s *Service) Advance(ctx context.Context, submissionID, chatSessionID, message string, history []Turn) (string, error) {
	if submissionID == "" || chatSessionID == "" || message == "" {
		return "", common.NewError(common.KindValidation, "submissionId, chatSessionId and message are required")
	}

	sub, err := s.repo.GetByIDWithRefs(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", common.NewError(common.KindNotFound, "submission not found")
		}
		return "", err
	}

	sess, err := s.repo.GetSessionByID(ctx, chatSessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", common.NewError(common.KindNotFound, "chat session not found")
		}
		return "", err
	}
	if sess.SubmissionID != sub.ID {
		return "", common.NewError(common.KindNotFound, "chat session not found")
	}

	msgs := make([]ai.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, ai.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, ai.Message{Role: RoleUser, Content: message})

	provider, err := s.registry.Get(ctx, s.provider)
	if err != nil {
		return "", common.WrapError(common.KindConfiguration, "assistant provider is not configured", err)
	}

	reply, err := provider.Complete(ctx, ai.Request{
		System:    buildSystemPrompt(sub),
		Messages:  msgs,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		if errors.Is(err, ai.ErrUnauthorized) {
			return "", common.WrapError(common.KindConfiguration, "invalid API key, check provider configuration", err)
		}
		return "", common.WrapError(common.KindGeneration, "failed to generate response", err)
	}
	if reply == "" {
		reply = FallbackReply
	}

	now := time.Now().UnixMilli()
	updated := make([]Turn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated,
		Turn{Role: RoleUser, Content: message, Timestamp: now},
		Turn{Role: RoleAssistant, Content: reply, Timestamp: now},
	)

	raw, err := EncodeTranscript(updated)
	if err != nil {
		return "", common.WrapError(common.KindGeneration, "failed to encode transcript", err)
	}
	if err := s.repo.ReplaceTranscript(ctx, sess.ID, sess.Version, raw); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return "", common.WrapError(common.KindConflict, "conversation was updated concurrently, retry", err)
		}
		return "", common.WrapError(common.KindGeneration, "failed to persist transcript", err)
	}

	return reply, nil
}

// ValidateSession checks that the chat session exists and belongs to the
// submission, without touching the transcript.
func (s *Service) ValidateSession(ctx context.Context, submissionID, chatSessionID string) error {
	if submissionID == "" || chatSessionID == "" {
		return common.NewError(common.KindValidation, "submissionId and chatSessionId are required")
	}
	sess, err := s.repo.GetSessionByID(ctx, chatSessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NewError(common.KindNotFound, "chat session not found")
		}
		return err
	}
	if sess.SubmissionID != submissionID {
		return common.NewError(common.KindNotFound, "chat session not found")
	}
	return nil
}

// AppendUserTurn durably records the in-flight user message before a queued
// turn is handed to the worker.
func (s *Service) AppendUserTurn(ctx context.Context, submissionID, chatSessionID, message string) error {
	if submissionID == "" || chatSessionID == "" || message == "" {
		return common.NewError(common.KindValidation, "submissionId, chatSessionId and message are required")
	}

	sess, err := s.repo.GetSessionByID(ctx, chatSessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NewError(common.KindNotFound, "chat session not found")
		}
		return err
	}
	if sess.SubmissionID != submissionID {
		return common.NewError(common.KindNotFound, "chat session not found")
	}

	turns, err := DecodeTranscript(sess.Messages)
	if err != nil {
		return err
	}
	turns = append(turns, Turn{Role: RoleUser, Content: message, Timestamp: time.Now().UnixMilli()})

	raw, err := EncodeTranscript(turns)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceTranscript(ctx, sess.ID, sess.Version, raw); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return common.WrapError(common.KindConflict, "conversation was updated concurrently, retry", err)
		}
		return err
	}
	return nil
}

// AdvanceJob replays a queued turn from the stored transcript. The user turn
// was appended when the job was enqueued, so it is peeled off the history
// before Advance re-appends it alongside the assistant reply.
func (s *Service) AdvanceJob(ctx context.Context, job *Job) (string, error) {
	sess, err := s.repo.GetSessionByID(ctx, job.ChatSessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", common.NewError(common.KindNotFound, "chat session not found")
		}
		return "", err
	}

	turns, err := DecodeTranscript(sess.Messages)
	if err != nil {
		return "", err
	}
	history := turns
	if n := len(turns); n > 0 && turns[n-1].Role == RoleUser && turns[n-1].Content == job.Prompt {
		history = turns[:n-1]
	}

	return s.Advance(ctx, job.SubmissionID, job.ChatSessionID, job.Prompt, history)
}

func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	sub, err := s.repo.GetByIDWithRefs(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindNotFound, "submission not found")
		}
		return nil, err
	}
	return sub, nil
}

func (s *Service) GetSession(ctx context.Context, submissionID string) (*ChatSession, error) {
	sess, err := s.repo.GetSessionBySubmissionID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindNotFound, "chat session not found")
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListByProject(ctx context.Context, projectID string) ([]Submission, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// ListByProjects groups the submissions of the given projects by project id,
// awards preloaded. Projects without submissions are absent from the map.
func (s *Service) ListByProjects(ctx context.Context, projectIDs []string) (map[string][]Submission, error) {
	subs, err := s.repo.ListByProjects(ctx, projectIDs)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Submission, len(projectIDs))
	for _, sub := range subs {
		grouped[sub.ProjectID] = append(grouped[sub.ProjectID], sub)
	}
	return grouped, nil
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

// FailJob marks a job failed; used when the user turn could not be recorded
// after the job row was already created.
func (s *Service) FailJob(ctx context.Context, jobID, message string) error {
	return s.repo.MarkJobFailed(ctx, jobID, message)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindNotFound, "job not found")
		}
		return nil, err
	}
	return j, nil
}

func buildSystemPrompt(sub *Submission) string {
	kitPath := sub.Award.EntryKitPath
	if kitPath == "" {
		kitPath = "Not uploaded yet"
	}

	var desc string
	if sub.Project.Description != nil && strings.TrimSpace(*sub.Project.Description) != "" {
		desc = "Description: " + *sub.Project.Description + "\n"
	}

	return fmt.Sprintf(`You are an expert advertising awards consultant helping with the %s award submission.

Project: %s
%s
Your role is to:
1. Analyze the project board (campaign details) against the award entry kit
2. Recommend the most suitable categories for submission
3. Help answer form questions based on the project
4. Provide strategic advice for maximizing chances of winning

Entry Kit Location: %s
Project Board Location: %s

Be specific, insightful, and supportive. Ask clarifying questions when needed.`,
		sub.Award.Name, sub.Project.Name, desc, kitPath, sub.Project.BoardPath)
}
