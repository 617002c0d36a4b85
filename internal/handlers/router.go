package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

type HandlerManager struct {
	courseHandler     *CourseHandler
	enrollmentHandler *EnrollmentHandler
	userHandler       *UserHandler
	dashboardHandler  *DashboardHandler
	authMiddleware    *CasdoorAuthMiddleware
	serviceManager    services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	verifier TokenVerifier,
) *HandlerManager {
	return &HandlerManager{
		courseHandler: NewCourseHandler(
			serviceManager.Course(),
			serviceManager.Approval(),
			serviceManager.Subscription(),
			validator,
			logger,
		),
		enrollmentHandler: NewEnrollmentHandler(serviceManager.Enrollment(), logger),
		userHandler:       NewUserHandler(serviceManager.User(), logger),
		dashboardHandler:  NewDashboardHandler(serviceManager.Dashboard(), logger),
		authMiddleware:    NewCasdoorAuthMiddleware(verifier, serviceManager.User(), logger),
		serviceManager:    serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	managers := hm.authMiddleware.RequireRoleMiddleware(models.RoleLecturer)
	adminOnly := hm.authMiddleware.RequireRoleMiddleware()

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		courses := v1.Group("/courses")
		{
			courses.POST("", managers, hm.courseHandler.CreateCourse)
			courses.GET("", hm.courseHandler.ListCourses)
			courses.GET("/watch", hm.courseHandler.WatchCourses)
			courses.GET("/:id", hm.courseHandler.GetCourse)
			courses.PUT("/:id", managers, hm.courseHandler.UpdateCourse)
			courses.DELETE("/:id", managers, hm.courseHandler.DeleteCourse)
			courses.GET("/:id/history", managers, hm.courseHandler.GetCourseHistory)

			// Approval workflow - Admins only
			courses.POST("/:id/approve", adminOnly, hm.courseHandler.ApproveCourse)
			courses.POST("/:id/reject", adminOnly, hm.courseHandler.RejectCourse)

			// Enrollment
			courses.POST("/:id/enrollment", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.enrollmentHandler.Enroll)
			courses.DELETE("/:id/enrollment", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.enrollmentHandler.Unenroll)

			// Roster - course owners and admins
			courses.GET("/:id/students", managers, hm.enrollmentHandler.ListStudents)
			courses.GET("/:id/students/export", managers, hm.enrollmentHandler.ExportStudents)
			courses.DELETE("/:id/students/:student_id", managers, hm.enrollmentHandler.RemoveStudent)
		}

		users := v1.Group("/users")
		{
			users.GET("/me", hm.userHandler.GetMe)
			users.GET("", managers, hm.userHandler.ListUsers)
			users.GET("/:id", managers, hm.userHandler.GetUser)
			users.PUT("/:id/status", adminOnly, hm.userHandler.SetStatus)
			users.PUT("/:id/role", adminOnly, hm.userHandler.SetRole)
			users.DELETE("/:id", adminOnly, hm.userHandler.DeleteUser)
		}

		v1.GET("/dashboard/stats", hm.dashboardHandler.GetDashboardStats)
	}

	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "learning-platform-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "learning-platform-service",
		})
	})
}
