package routes

import (
	"net/http"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/chat"
	"swasthyaconnect-server/internal/config"
	"swasthyaconnect-server/internal/handlers"
	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/notify"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/storage"
)

// Deps carries the shared services the handlers are built from.
type Deps struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Store    *storage.LocalStore
	Chat     *chat.Service
	Hub      *realtime.Hub
	Relay    *realtime.Relay
	Notifier *notify.Notifier
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, d Deps) {
	authHandler := handlers.NewAuthHandler(d.DB, d.Cfg, d.Notifier)
	userHandler := handlers.NewUserHandler(d.DB)
	appointmentHandler := handlers.NewAppointmentHandler(d.DB, d.Notifier, d.Hub)
	messageHandler := handlers.NewMessageHandler(d.Chat, d.Hub)
	reportHandler := handlers.NewReportHandler(d.DB, d.Store, d.Notifier, d.Hub)
	socketHandler := handlers.NewSocketHandler(d.DB, d.Cfg, d.Hub, d.Relay)

	// Public routes (no authentication required)
	public := router.Group("/api")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.GET("/verify-email", authHandler.VerifyEmail)
			authRoutes.POST("/resend-verification", authHandler.ResendVerification)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}

		// The socket handshake authenticates from the query string, browsers cannot set headers on it.
		public.GET("/ws", socketHandler.Connect)
	}

	private := router.Group("/api")
	private.Use(middleware.AuthMiddleware(d.Cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("/doctors", userHandler.GetDoctors)
			userRoutes.GET("/doctor-patients", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin), userHandler.GetDoctorPatients)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeleteUser)
			}
		}

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", middleware.RoleAuthMiddleware(models.RolePatient), appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointmentsForUser)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)            // Authorization inside handler
			appointmentRoutes.PATCH("/:id/status", appointmentHandler.UpdateAppointmentStatus) // Authorization inside handler
			appointmentRoutes.DELETE("/:id", middleware.RoleAuthMiddleware(models.RolePatient), appointmentHandler.DeleteAppointment)
		}

		// Chat is between the two parties of an appointment; admins have no conversations.
		messageRoutes := private.Group("/messages")
		messageRoutes.Use(middleware.RoleAuthMiddleware(models.RolePatient, models.RoleDoctor))
		{
			messageRoutes.GET("/conversations", messageHandler.GetConversations)
			messageRoutes.GET("/conversation/:appointmentId", messageHandler.GetOrCreateConversation)
			messageRoutes.POST("/send", messageHandler.SendMessage)
			messageRoutes.POST("/upload", messageHandler.UploadAttachment)
			messageRoutes.GET("/:conversationId", messageHandler.GetMessages)
			messageRoutes.PATCH("/:conversationId/read", messageHandler.MarkRead)
		}

		reportRoutes := private.Group("/reports")
		{
			reportRoutes.POST("", middleware.RoleAuthMiddleware(models.RolePatient, models.RoleDoctor), reportHandler.UploadReport)
			reportRoutes.GET("/patient/:patientId", reportHandler.GetReportsForPatient) // Auth in handler
			reportRoutes.GET("/:id", reportHandler.GetReportByID)
			reportRoutes.GET("/:id/download", reportHandler.DownloadReport)
		}
	}

	// Chat attachments are served by their public URL.
	router.Static(path.Join(d.Cfg.Uploads.PublicPrefix, chat.AttachmentCategory), filepath.Join(d.Store.Dir(), chat.AttachmentCategory))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
