package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const audioRelayPath = "/api/v1/media/audio"

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	Media         *handler.MediaHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "Range"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Range", "Accept-Ranges", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Audio bytes are already compressed and arrive as ranged streams.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper:   middleware.SkipPathPrefixes(audioRelayPath),
	}))

	router.GET("/health", handlers.System.Health)

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
	}

	// Autosave fires per question; 600/min per student leaves headroom.
	studentLimiter := middleware.NewStudentRateLimiter(600, time.Minute)

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		studentLimiter.Middleware(),
		middleware.NoStore(),
	)
	{
		exams := studentAPI.Group("/exams/:exam_id")
		exams.POST("/start", handlers.StudentPortal.StartExam)
		exams.GET("/time", handlers.StudentPortal.GetTimeRemaining)
		exams.PUT("/answers", handlers.StudentPortal.SaveAnswer)
		exams.POST("/warnings", handlers.StudentPortal.RecordWarning)
		exams.POST("/submit", handlers.StudentPortal.SubmitExam)
		exams.GET("/result", handlers.StudentPortal.GetResult)
		exams.GET("/questions/:question_id/audio", handlers.StudentPortal.GetAudioCandidates)
	}

	// ─── 3. Media Relay (Public, Rate Limited) ─────────────────────────
	// <audio src> cannot carry an Authorization header; the relay is
	// bounded by its host allowlist instead.
	mediaLimiter := middleware.NewRateLimiter(120, time.Minute)
	router.GET(audioRelayPath,
		mediaLimiter.Middleware(),
		middleware.CacheControl(3600),
		handlers.Media.RelayAudio,
	)

	// ─── 4. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/exams/:exam_id/proctor", handlers.WS.ProctorStream)
	}

	// ─── 5. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/students/:student_id/reset-login", handlers.Auth.ResetStudentLogin)

		adminAPI.POST("/exams/:exam_id/release", handlers.Exam.ReleaseResults)
		adminAPI.POST("/exams/:exam_id/refresh-cache", handlers.Exam.RefreshExamCache)
		adminAPI.GET("/exams/:exam_id/results", handlers.Exam.GetExamResults)
		adminAPI.GET("/exams/:exam_id/results/export", handlers.Exam.ExportResults)
		adminAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)

		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
