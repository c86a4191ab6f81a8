package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/attendance"
	"examgate_backend/internal/config"
	"examgate_backend/internal/controllers"
	"examgate_backend/internal/middleware"
	"examgate_backend/internal/sessions"
	"examgate_backend/internal/ws"
)

type Deps struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Registry *sessions.Registry
	Ledger   *attendance.Ledger
	Attempts *attempts.Aggregator
	Hubs     *ws.Hubs
}

func Register(r *gin.Engine, d Deps) {
	expiresMins, err := time.ParseDuration(d.Cfg.JWTExpiresIn + "m")
	if err != nil || expiresMins == 0 {
		expiresMins = 60 * time.Minute
	}
	authCtrl := &controllers.AuthController{DB: d.DB, JWTSecret: d.Cfg.JWTSecret, ExpiresIn: expiresMins}
	adminCtrl := &controllers.AdminController{DB: d.DB, Hubs: d.Hubs}
	courseCtrl := &controllers.CourseController{DB: d.DB}
	sessionCtrl := &controllers.SessionController{Registry: d.Registry, Hubs: d.Hubs}
	attendanceCtrl := &controllers.AttendanceController{Ledger: d.Ledger, Attempts: d.Attempts, Hubs: d.Hubs}
	attemptCtrl := &controllers.AttemptController{Attempts: d.Attempts}
	submissionCtrl := &controllers.SubmissionController{DB: d.DB}
	cfgCtrl := &controllers.ConfigController{Cfg: d.Cfg}

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
	}
	r.GET("/api/v1/config/public", cfgCtrl.Get)

	// Protected
	authMW := middleware.AuthMiddleware(d.DB, middleware.AuthConfig{
		JWTSecret:    d.Cfg.JWTSecret,
		JWTExpiresIn: expiresMins,
	})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)

		// Student exam flow
		student := api.Group("", middleware.RequireRoles("student"))
		{
			student.POST("/attendance/request", attendanceCtrl.Request)
			student.GET("/attendance/status", attendanceCtrl.Status)
			student.POST("/attendance/lock", attendanceCtrl.Lock)
			student.POST("/attempts", attemptCtrl.Create)
			student.POST("/attempts/:id/submissions", attemptCtrl.AddSubmission)
			student.POST("/attempts/:id/complete", attemptCtrl.Complete)
			student.GET("/ws/student", ws.StudentHandler(d.Hubs))
		}
		api.GET("/attempts/:id", attemptCtrl.Get)

		// Proctor + admin
		proctor := api.Group("", middleware.RequireRoles("proctor", "admin"))
		{
			proctor.POST("/attendance/:id/approve", attendanceCtrl.Approve)
			proctor.POST("/attendance/:id/unlock", attendanceCtrl.Unlock)
			proctor.POST("/attendance/manual-approve", attendanceCtrl.ManualApprove)
			proctor.POST("/attendance/bulk-approve", attendanceCtrl.BulkApprove)
			proctor.POST("/submissions", submissionCtrl.Record)
			proctor.GET("/sessions/active", sessionCtrl.Active)
			proctor.GET("/sessions/current", sessionCtrl.Current)
			proctor.GET("/ws/proctor", ws.ProctorHandler(d.Hubs))
		}

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles("admin"))
		{
			admin.GET("/users", adminCtrl.ListUsers)
			admin.POST("/users", authCtrl.Register)
			admin.GET("/users/:user_id", adminCtrl.GetUser)
			admin.PUT("/users/:user_id", adminCtrl.UpdateUser)
			admin.DELETE("/users/:user_id", adminCtrl.DeleteUser)
			admin.POST("/users/:user_id/block", adminCtrl.BlockUser)
			admin.POST("/users/:user_id/unblock", adminCtrl.UnblockUser)

			admin.GET("/courses", courseCtrl.List)
			admin.POST("/courses", courseCtrl.Create)
			admin.GET("/courses/:id", courseCtrl.Get)
			admin.PUT("/courses/:id", courseCtrl.Update)
			admin.DELETE("/courses/:id", courseCtrl.Delete)
			admin.GET("/courses/:id/time-limits", courseCtrl.TimeLimits)

			admin.POST("/sessions/start", sessionCtrl.Start)
			admin.POST("/sessions/:id/end", sessionCtrl.End)

			admin.GET("/windows", sessionCtrl.ListWindows)
			admin.POST("/windows", sessionCtrl.CreateWindow)
			admin.PUT("/windows/:id", sessionCtrl.UpdateWindow)
			admin.DELETE("/windows/:id", sessionCtrl.DeleteWindow)
		}
	}
}
