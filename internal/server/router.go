package server

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"qc-standards/internal/config"
	"qc-standards/internal/handlers"
	"qc-standards/internal/handlers/common"
	"qc-standards/internal/logging"
	"qc-standards/internal/middleware"
	"qc-standards/internal/models"
)

const sessionName = "qc_session"

func NewRouter(cfg *config.Config, h *handlers.Handler, auth middleware.Authenticator, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(log), gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadSize
	r.NoRoute(func(c *gin.Context) {
		common.WriteErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: cfg.JWTExpireHours * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.InjectUser(auth))

	// HEALTHCHECK
	r.GET("/health", handlers.Health)

	api := r.Group("/api/v1")
	api.GET("/health", handlers.Health)

	// AUTH
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)

	protected := api.Group("/")
	protected.Use(middleware.RequireAuth())

	// users
	protected.GET("/users/me", h.Me)
	protected.PUT("/users/me", h.UpdateMe)
	protected.GET("/users", middleware.RequireRole(models.UserAdmins...), h.ListUsers)
	protected.GET("/users/:id", h.GetUser)
	protected.PUT("/users/:id", middleware.RequireRole(models.UserAdmins...), h.UpdateUser)

	// catalog
	editors := middleware.RequireRole(models.CatalogEditors...)
	protected.GET("/models", h.ListModels)
	protected.POST("/models", editors, h.CreateModel)
	protected.GET("/models/:id", h.GetModel)
	protected.PUT("/models/:id", editors, h.UpdateModel)
	protected.GET("/stages", h.ListStages)
	protected.POST("/stages", editors, h.CreateStage)
	protected.GET("/stages/:id", h.GetStage)
	protected.PUT("/stages/:id", editors, h.UpdateStage)

	// templates
	authors := middleware.RequireRole(models.TemplateAuthors...)
	protected.GET("/templates", h.ListTemplates)
	protected.POST("/templates", authors, h.CreateTemplate)
	protected.GET("/templates/:id", h.GetTemplate)
	protected.PUT("/templates/:id", authors, h.UpdateTemplate)
	protected.DELETE("/templates/:id", authors, h.DeleteTemplate)
	protected.POST("/templates/:id/publish", authors, h.PublishTemplate)
	protected.POST("/templates/:id/archive", authors, h.ArchiveTemplate)
	protected.POST("/templates/:id/clone", authors, h.CloneTemplate)
	protected.GET("/templates/:id/stats", h.TemplateStats)
	protected.GET("/templates/:id/steps", h.ListSteps)
	protected.POST("/templates/:id/steps", authors, h.AddStep)
	protected.PUT("/templates/:id/steps/:step_id", authors, h.UpdateStep)
	protected.DELETE("/templates/:id/steps/:step_id", authors, h.DeleteStep)

	// checklists
	runners := middleware.RequireRole(models.ChecklistRunners...)
	protected.GET("/checklists", h.ListChecklists)
	protected.POST("/checklists", runners, h.CreateChecklist)
	protected.GET("/checklists/:id", h.GetChecklist)
	protected.DELETE("/checklists/:id", runners, h.DeleteChecklist)
	protected.POST("/checklists/:id/results", runners, h.AddResult)
	protected.PUT("/checklists/:id/results/:result_id", runners, h.UpdateResult)
	protected.POST("/checklists/:id/results/:result_id/photo", runners, h.AttachResultPhoto)
	protected.POST("/checklists/:id/complete", runners, h.CompleteChecklist)
	protected.POST("/checklists/:id/reject", middleware.RequireRole(models.ChecklistJudges...), h.RejectChecklist)

	// offline sync
	protected.POST("/sync/templates", h.SyncTemplates)
	protected.POST("/sync/checklists", runners, h.SyncChecklists)

	// photos
	protected.POST("/photos", runners, h.UploadPhoto)
	protected.GET("/photos/:id", h.GetPhoto)
	protected.GET("/photos/:id/content", h.PhotoContent)
	protected.DELETE("/photos/:id", h.DeletePhoto)
	protected.GET("/files/*path", h.ServeFile)

	// audit
	protected.GET("/audit", middleware.RequireRole(models.AuditReaders...), h.ListAuditLogs)

	return r
}
