package submission

import (
	"context"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/ai"
	"github.com/awardflow/awardflow/internal/awards"
	"github.com/awardflow/awardflow/internal/common"
	"github.com/awardflow/awardflow/internal/projects"
)

type fakeProvider struct {
	lastReq ai.Request
	reply   string
	err     error
}

func (p *fakeProvider) Complete(ctx context.Context, req ai.Request) (string, error) {
	_ = ctx
	// copy to avoid mutations
	req.Messages = append([]ai.Message(nil), req.Messages...)
	p.lastReq = req
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&awards.Award{}, &projects.Project{}, &Submission{}, &ChatSession{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, prov *fakeProvider) (*Service, *Repo, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return prov, nil
	})

	return NewService(repo, reg, "fake", 2000), repo, db
}

func seedProjectAward(t *testing.T, db *gorm.DB) (string, string) {
	t.Helper()
	desc := "Q3 brand push"
	p := &projects.Project{Name: "Summer Campaign", Description: &desc, BoardPath: "/uploads/projects/summer-campaign-1.pdf"}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	a := &awards.Award{
		Name:         "Cannes Lions",
		Country:      "France",
		Language:     "en",
		EntryKitPath: "/uploads/entry-kits/cannes-lions-1.pdf",
		IsActive:     true,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed award: %v", err)
	}
	return p.ID, a.ID
}

func TestStart_CreatesSubmissionWithSession(t *testing.T) {
	svc, repo, db := newTestService(t, &fakeProvider{reply: "ok"})
	projectID, awardID := seedProjectAward(t, db)

	sub, created, err := svc.Start(context.Background(), projectID, awardID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !created {
		t.Fatalf("expected a fresh submission")
	}
	if sub.Status != StatusDraft {
		t.Fatalf("unexpected status %q", sub.Status)
	}
	if string(sub.SelectedCategories) != "[]" {
		t.Fatalf("categories should start empty, got %s", sub.SelectedCategories)
	}

	// the paired session must exist with an empty transcript
	sess, err := repo.GetSessionBySubmissionID(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	turns, err := DecodeTranscript(sess.Messages)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty transcript, got %d turns", len(turns))
	}
}

func TestStart_IdempotentPerPair(t *testing.T) {
	svc, _, db := newTestService(t, &fakeProvider{reply: "ok"})
	projectID, awardID := seedProjectAward(t, db)

	first, _, err := svc.Start(context.Background(), projectID, awardID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, created, err := svc.Start(context.Background(), projectID, awardID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if created {
		t.Fatalf("second start must not create")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same submission id, got %q and %q", first.ID, second.ID)
	}

	var cnt int64
	if err := db.Model(&Submission{}).
		Where("project_id = ? AND award_id = ?", projectID, awardID).
		Count(&cnt).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected 1 submission for the pair, got %d", cnt)
	}
}

func TestStart_UnknownRefs(t *testing.T) {
	svc, _, db := newTestService(t, &fakeProvider{reply: "ok"})
	projectID, awardID := seedProjectAward(t, db)

	if _, _, err := svc.Start(context.Background(), "nope", awardID); common.KindOf(err) != common.KindNotFound {
		t.Fatalf("expected not found for bad project, got %v", err)
	}
	if _, _, err := svc.Start(context.Background(), projectID, "nope"); common.KindOf(err) != common.KindNotFound {
		t.Fatalf("expected not found for bad award, got %v", err)
	}
	if _, _, err := svc.Start(context.Background(), "", awardID); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation for empty project id, got %v", err)
	}
}

func startForTest(t *testing.T, svc *Service, repo *Repo, db *gorm.DB) (*Submission, *ChatSession) {
	t.Helper()
	projectID, awardID := seedProjectAward(t, db)
	sub, _, err := svc.Start(context.Background(), projectID, awardID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := repo.GetSessionBySubmissionID(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return sub, sess
}

func TestAdvance_FirstTurn(t *testing.T) {
	prov := &fakeProvider{reply: "Start with the Film category."}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	reply, err := svc.Advance(context.Background(), sub.ID, sess.ID, "Hello", nil)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if reply != prov.reply {
		t.Fatalf("unexpected reply %q", reply)
	}

	// grounding instruction carries award/project context but is never a turn
	if !strings.Contains(prov.lastReq.System, "Cannes Lions") ||
		!strings.Contains(prov.lastReq.System, "Summer Campaign") ||
		!strings.Contains(prov.lastReq.System, "/uploads/projects/summer-campaign-1.pdf") {
		t.Fatalf("system prompt missing context:\n%s", prov.lastReq.System)
	}
	if prov.lastReq.MaxTokens != 2000 {
		t.Fatalf("expected max tokens 2000, got %d", prov.lastReq.MaxTokens)
	}
	if len(prov.lastReq.Messages) != 1 || prov.lastReq.Messages[0].Role != RoleUser || prov.lastReq.Messages[0].Content != "Hello" {
		t.Fatalf("unexpected provider messages: %+v", prov.lastReq.Messages)
	}

	sess2, err := repo.GetSessionByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	turns, err := DecodeTranscript(sess2.Messages)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "Hello" {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != prov.reply {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
	if turns[0].Timestamp == 0 || turns[1].Timestamp == 0 {
		t.Fatalf("turns must carry timestamps")
	}
}

func TestAdvance_PreservesHistoryOrder(t *testing.T) {
	prov := &fakeProvider{reply: "noted"}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	var history []Turn
	for i := 0; i < 4; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, Turn{Role: role, Content: fmt.Sprintf("turn-%d", i), Timestamp: int64(1000 + i)})
	}

	if _, err := svc.Advance(context.Background(), sub.ID, sess.ID, "new question", history); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// provider sees history then the new message, in order
	if len(prov.lastReq.Messages) != 5 {
		t.Fatalf("expected 5 provider messages, got %d", len(prov.lastReq.Messages))
	}
	for i := 0; i < 4; i++ {
		if prov.lastReq.Messages[i].Content != fmt.Sprintf("turn-%d", i) {
			t.Fatalf("history reordered at %d: %+v", i, prov.lastReq.Messages[i])
		}
	}

	sess2, _ := repo.GetSessionByID(context.Background(), sess.ID)
	turns, err := DecodeTranscript(sess2.Messages)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(turns) != 6 {
		t.Fatalf("expected 6 turns, got %d", len(turns))
	}
	for i := 0; i < 4; i++ {
		if turns[i].Content != fmt.Sprintf("turn-%d", i) || turns[i].Timestamp != int64(1000+i) {
			t.Fatalf("stored history altered at %d: %+v", i, turns[i])
		}
	}
	if turns[4].Role != RoleUser || turns[4].Content != "new question" {
		t.Fatalf("user turn misplaced: %+v", turns[4])
	}
	if turns[5].Role != RoleAssistant || turns[5].Content != "noted" {
		t.Fatalf("assistant turn misplaced: %+v", turns[5])
	}
}

func TestAdvance_AuthFailureLeavesTranscriptUntouched(t *testing.T) {
	prov := &fakeProvider{err: fmt.Errorf("anthropic: status 401: %w", ai.ErrUnauthorized)}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	_, err := svc.Advance(context.Background(), sub.ID, sess.ID, "Hello", nil)
	if common.KindOf(err) != common.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}

	sess2, _ := repo.GetSessionByID(context.Background(), sess.ID)
	if string(sess2.Messages) != "[]" {
		t.Fatalf("transcript must stay empty on provider failure, got %s", sess2.Messages)
	}
}

func TestAdvance_ProviderErrorIsGenerationFailure(t *testing.T) {
	prov := &fakeProvider{err: fmt.Errorf("anthropic: overloaded")}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	_, err := svc.Advance(context.Background(), sub.ID, sess.ID, "Hello", nil)
	if common.KindOf(err) != common.KindGeneration {
		t.Fatalf("expected generation failure, got %v", err)
	}
}

func TestAdvance_FallbackOnEmptyReply(t *testing.T) {
	prov := &fakeProvider{reply: ""}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	reply, err := svc.Advance(context.Background(), sub.ID, sess.ID, "Hello", nil)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", reply)
	}

	sess2, _ := repo.GetSessionByID(context.Background(), sess.ID)
	turns, _ := DecodeTranscript(sess2.Messages)
	if len(turns) != 2 || turns[1].Content != FallbackReply {
		t.Fatalf("fallback must be persisted as the assistant turn: %+v", turns)
	}
}

func TestAdvance_UnknownIDs(t *testing.T) {
	prov := &fakeProvider{reply: "ok"}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	if _, err := svc.Advance(context.Background(), "nope", sess.ID, "Hello", nil); common.KindOf(err) != common.KindNotFound {
		t.Fatalf("expected not found for bad submission, got %v", err)
	}
	if _, err := svc.Advance(context.Background(), sub.ID, "nope", "Hello", nil); common.KindOf(err) != common.KindNotFound {
		t.Fatalf("expected not found for bad session, got %v", err)
	}
}

func TestReplaceTranscript_StaleVersionRejected(t *testing.T) {
	prov := &fakeProvider{reply: "ok"}
	svc, repo, db := newTestService(t, prov)
	_, sess := startForTest(t, svc, repo, db)

	raw, _ := EncodeTranscript([]Turn{{Role: RoleUser, Content: "a", Timestamp: 1}})
	if err := repo.ReplaceTranscript(context.Background(), sess.ID, sess.Version, raw); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// same (stale) version again: the write must be rejected, not silently win
	err := repo.ReplaceTranscript(context.Background(), sess.ID, sess.Version, raw)
	if err != ErrVersionConflict {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestAdvanceJob_ReplaysQueuedTurn(t *testing.T) {
	prov := &fakeProvider{reply: "queued answer"}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	if err := svc.AppendUserTurn(context.Background(), sub.ID, sess.ID, "Which categories fit?"); err != nil {
		t.Fatalf("append user turn: %v", err)
	}

	job := &Job{
		ID:            "01TESTJOB0000000000000000X",
		SubmissionID:  sub.ID,
		ChatSessionID: sess.ID,
		Prompt:        "Which categories fit?",
		Status:        JobQueued,
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	reply, err := svc.AdvanceJob(context.Background(), job)
	if err != nil {
		t.Fatalf("advance job: %v", err)
	}
	if reply != "queued answer" {
		t.Fatalf("unexpected reply %q", reply)
	}

	// the queued user turn must not be doubled
	if len(prov.lastReq.Messages) != 1 || prov.lastReq.Messages[0].Content != "Which categories fit?" {
		t.Fatalf("unexpected provider messages: %+v", prov.lastReq.Messages)
	}

	sess2, _ := repo.GetSessionByID(context.Background(), sess.ID)
	turns, _ := DecodeTranscript(sess2.Messages)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Fatalf("unexpected roles: %+v", turns)
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	prov := &fakeProvider{reply: "ok"}
	svc, repo, db := newTestService(t, prov)
	sub, sess := startForTest(t, svc, repo, db)

	key := "client-key-1"
	first := &Job{
		ID: "01TESTJOB0000000000000000A", SubmissionID: sub.ID, ChatSessionID: sess.ID,
		Prompt: "q", IdempotencyKey: &key, Status: JobQueued,
	}
	j1, created, err := repo.CreateJobOrGetExisting(context.Background(), first)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := &Job{
		ID: "01TESTJOB0000000000000000B", SubmissionID: sub.ID, ChatSessionID: sess.ID,
		Prompt: "q", IdempotencyKey: &key, Status: JobQueued,
	}
	j2, created, err := repo.CreateJobOrGetExisting(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatalf("duplicate key must not create a second job")
	}
	if j2.ID != j1.ID {
		t.Fatalf("expected existing job back, got %q vs %q", j2.ID, j1.ID)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "Hello", Timestamp: 1},
		{Role: RoleAssistant, Content: "Hi, tell me about the campaign.", Timestamp: 2},
		{Role: RoleUser, Content: "It ran in three markets.", Timestamp: 3},
	}
	raw, err := EncodeTranscript(turns)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeTranscript(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(back) != len(turns) {
		t.Fatalf("length changed: %d vs %d", len(back), len(turns))
	}
	for i := range turns {
		if back[i] != turns[i] {
			t.Fatalf("turn %d changed: %+v vs %+v", i, back[i], turns[i])
		}
	}
}
