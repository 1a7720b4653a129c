package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nocodeci/yatou-sub001/internal/dispatch"
	"github.com/nocodeci/yatou-sub001/internal/handlers"
	"github.com/nocodeci/yatou-sub001/internal/middleware"
	"github.com/nocodeci/yatou-sub001/internal/pricing"
	"github.com/nocodeci/yatou-sub001/internal/repository"
	"github.com/nocodeci/yatou-sub001/internal/services"
	"github.com/nocodeci/yatou-sub001/internal/viewstore"
	"github.com/nocodeci/yatou-sub001/internal/websocket"
)

// Deps — собранные зависимости обработчиков
type Deps struct {
	DB         *gorm.DB
	Repo       *repository.DeliveryRepository
	Dispatcher *dispatch.Dispatcher
	Calculator *pricing.Calculator
	Views      *viewstore.DeliveryViewStore
	SMS        *services.SMSService
	Notifier   *services.NotificationService
	Manager    *websocket.Manager
}

func SetupRoutes(api *gin.RouterGroup, deps Deps) {
	// Публичные маршруты для аутентификации
	auth := api.Group("/auth")
	{
		auth.POST("/request-code", handlers.SendVerificationCode(deps.SMS))
		auth.POST("/verify-register", handlers.AuthRegister(deps.DB, deps.SMS))
		auth.POST("/verify-login", handlers.AuthLogin(deps.DB, deps.SMS))
	}

	// Защищенные маршруты (требуют аутентификации)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth())
	{
		// Текущий пользователь и профиль
		protected.GET("/user", handlers.GetCurrentUser(deps.DB))
		protected.PUT("/profile", handlers.ProfileUpdate(deps.DB))
		protected.PUT("/fcm-token", handlers.UpdateFCMToken(deps.DB))

		// Заказ автомобиля
		protected.POST("/orders", handlers.OrderCreate(deps.Dispatcher))
		protected.POST("/orders/estimate", handlers.OrderEstimate(deps.Calculator))
		protected.GET("/orders/:token", handlers.OrderGetActive(deps.Dispatcher, deps.Repo))
		protected.POST("/orders/:token/response", handlers.OrderRespond(deps.Dispatcher, deps.Repo))

		// Доставки посылок
		protected.POST("/deliveries", handlers.DeliveryCreate(deps.Repo, deps.Dispatcher, deps.Calculator))
		protected.POST("/deliveries/quote", handlers.DeliveryQuote(deps.Calculator))
		protected.GET("/deliveries", handlers.DeliveryList(deps.Views))
		protected.GET("/deliveries/:id", handlers.DeliveryGetByID(deps.Repo))
		protected.PUT("/deliveries/:id/status", handlers.DeliveryUpdateStatus(deps.Repo, deps.Views, deps.Manager, deps.Notifier))
		protected.PUT("/deliveries/:id/tracking", handlers.DeliveryTrackingUpdate(deps.DB, deps.Repo, deps.Manager))
		protected.GET("/deliveries/:id/tracking", handlers.DeliveryTrackingGet(deps.DB, deps.Repo))

		// Водители
		protected.POST("/drivers", handlers.DriverRegister(deps.DB))
		protected.PUT("/drivers/availability", handlers.DriverSetAvailability(deps.Repo))
		protected.POST("/drivers/location", handlers.DriverUpdateLocation(deps.Repo))
		protected.GET("/drivers/nearby", handlers.DriverGetNearby(deps.Repo))
		protected.GET("/drivers/deliveries", handlers.DriverGetDeliveries(deps.Repo))

		// WebSocket подключение для получения обновлений в реальном времени
		protected.GET("/ws", deps.Manager.Handler())
	}
}
