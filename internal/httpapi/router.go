package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/awardflow/awardflow/internal/common"
	"github.com/awardflow/awardflow/internal/config"
	"github.com/awardflow/awardflow/internal/httpapi/handlers"
	"github.com/awardflow/awardflow/internal/httpapi/middleware"
	"github.com/awardflow/awardflow/internal/store/rabbitmq"
	"github.com/awardflow/awardflow/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(cors.Default())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, rabbit)

	r.GET("/ping", h.Ping)

	// uploaded PDFs, referenced by asset paths stored on awards/projects
	r.Static("/uploads", cfg.UploadDir)

	// account
	r.POST("/captcha", h.SendCaptcha)
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// awards
	authGroup.POST("/awards/upload", h.UploadEntryKit)
	authGroup.GET("/awards", h.ListAwards)
	authGroup.GET("/awards/:id", h.GetAward)

	// projects
	authGroup.POST("/projects", h.CreateProject)
	authGroup.GET("/projects", h.ListProjects)
	authGroup.GET("/projects/:id", h.GetProject)

	// submissions + conversation
	authGroup.POST("/submissions", h.StartSubmission)
	authGroup.GET("/submissions/:id", h.GetSubmission)
	authGroup.POST("/chat", h.AdvanceConversation)
	authGroup.POST("/chat/async", h.AdvanceConversationAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetAdvanceJob)

	return r
}
