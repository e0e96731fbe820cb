package server

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ticketline/config"
	"ticketline/internal/handlers"
	"ticketline/internal/middleware"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	rdb, err := config.InitRedis(cfg)
	if err != nil {
		log.Printf("redis unavailable, purchase rate limiting disabled: %v", err)
	}

	r := gin.Default()

	setupRoutes(r, db, rdb)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client) {
	r.Use(middleware.DatabaseMiddleware(db))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.GET("/profile", handlers.GetProfile)
		protected.PUT("/profile", handlers.UpdateProfile)
		protected.POST("/change-password", handlers.ChangePassword)

		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", handlers.CreateEvent)
			eventProtected.PUT("/:id", handlers.UpdateEvent)
			eventProtected.DELETE("/:id", handlers.DeleteEvent)
		}

		tickets := protected.Group("/tickets")
		{
			tickets.GET("", handlers.ListTickets)
			tickets.GET("/upcoming", handlers.UpcomingTickets)
			tickets.GET("/stats", handlers.TicketStats)
			tickets.GET("/:id", handlers.GetTicket)
			tickets.GET("/:id/qr", handlers.TicketQR)
			tickets.POST("/purchase", middleware.PurchaseRateLimit(rdb, 10, time.Minute), handlers.PurchaseTicket)
			tickets.POST("/:id/cancel", handlers.CancelTicket)
		}
	}
}
