package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/ai"
	"github.com/awardflow/awardflow/internal/assets"
	"github.com/awardflow/awardflow/internal/awards"
	"github.com/awardflow/awardflow/internal/common"
	"github.com/awardflow/awardflow/internal/config"
	"github.com/awardflow/awardflow/internal/email"
	"github.com/awardflow/awardflow/internal/httpapi/middleware"
	"github.com/awardflow/awardflow/internal/projects"
	"github.com/awardflow/awardflow/internal/store/rabbitmq"
	"github.com/awardflow/awardflow/internal/store/redisstore"
	"github.com/awardflow/awardflow/internal/submission"
)

// JobPublisher hands queued advance jobs to the broker. *rabbitmq.Publisher
// satisfies it in production.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

var _ JobPublisher = (*rabbitmq.Publisher)(nil)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	Rabbit      JobPublisher
	SMTPSetting email.SMTPConfig

	AwardSvc      *awards.Service
	ProjectSvc    *projects.Service
	SubmissionSvc *submission.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit JobPublisher) *Handler {
	files := assets.NewDiskStore(cfg.UploadDir)

	reg := ai.NewRegistry()
	reg.Register("anthropic", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	})
	reg.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})

	return &Handler{
		DB:     db,
		Cfg:    cfg,
		Redis:  rds,
		Rabbit: rabbit,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		AwardSvc:      awards.NewService(awards.NewRepo(db), files),
		ProjectSvc:    projects.NewService(projects.NewRepo(db), files),
		SubmissionSvc: submission.NewService(submission.NewRepo(db), reg, cfg.AIProvider, cfg.AssistantMaxTokens),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// failFromErr maps the operation error taxonomy onto the response envelope.
func failFromErr(c *gin.Context, err error) {
	msg := common.MessageOf(err)
	switch common.KindOf(err) {
	case common.KindValidation:
		common.Fail(c, http.StatusBadRequest, 10002, msg)
	case common.KindNotFound:
		common.Fail(c, http.StatusNotFound, 40401, msg)
	case common.KindConflict:
		common.Fail(c, http.StatusConflict, 40901, msg)
	case common.KindConfiguration:
		common.Fail(c, http.StatusInternalServerError, 50003, msg)
	case common.KindGeneration:
		common.Fail(c, http.StatusBadGateway, 50002, msg)
	case common.KindCreation:
		common.Fail(c, http.StatusInternalServerError, 50001, msg)
	default:
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
	}
}
