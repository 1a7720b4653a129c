package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nocodeci/yatou-sub001/internal/dispatch"
	"github.com/nocodeci/yatou-sub001/internal/geo"
	"github.com/nocodeci/yatou-sub001/internal/models"
	"github.com/nocodeci/yatou-sub001/internal/pricing"
	"github.com/nocodeci/yatou-sub001/internal/repository"
	"github.com/nocodeci/yatou-sub001/internal/services"
	"github.com/nocodeci/yatou-sub001/internal/viewstore"
	ws "github.com/nocodeci/yatou-sub001/internal/websocket"
)

type DeliveryCreateRequest struct {
	PickupAddress      string       `json:"pickupAddress" binding:"required"`
	DropoffAddress     string       `json:"dropoffAddress" binding:"required"`
	PickupLocation     geo.Location `json:"pickupLocation" binding:"required"`
	DropoffLocation    geo.Location `json:"dropoffLocation" binding:"required"`
	PackageDescription string       `json:"packageDescription" binding:"required"`
	ProductPrice       float64      `json:"productPrice" binding:"required"`
	Quantity           int          `json:"quantity" binding:"required"`
}

type DeliveryStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type PackageQuoteRequest struct {
	ProductPrice float64 `json:"productPrice" binding:"required"`
	Quantity     int     `json:"quantity" binding:"required"`
}

// Создание доставки посылки: запись создается сразу в pending с уже
// выпущенным токеном заказа, затем запускается подбор курьера. Токен
// привязывается той же записью, что и создание: поздние принятия всегда
// находят строку
func DeliveryCreate(repo *repository.DeliveryRepository, dispatcher *dispatch.Dispatcher, calc *pricing.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeliveryCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		userID := c.GetUint("user_id")

		pickup := geo.Normalize(req.PickupLocation.Coord())
		dropoff := geo.Normalize(req.DropoffLocation.Coord())
		if !geo.Validate(pickup) || !geo.Validate(dropoff) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Coordonnées hors de la zone de service"})
			return
		}

		quote := calc.ForPackage(req.ProductPrice, req.Quantity)
		token := uuid.NewString()

		delivery := &models.Delivery{
			OrderToken:         &token,
			UserID:             userID,
			PickupAddress:      req.PickupAddress,
			DropoffAddress:     req.DropoffAddress,
			PickupLocation:     geo.FormatPoint(pickup.ToLocation()),
			DropoffLocation:    geo.FormatPoint(dropoff.ToLocation()),
			VehicleType:        models.VehicleDelivery,
			PackageDescription: req.PackageDescription,
			ProductPrice:       req.ProductPrice,
			Quantity:           req.Quantity,
			Price:              quote.TotalPrice,
			Status:             models.DeliveryStatusPending,
		}

		deliveryID, err := repo.CreateDelivery(delivery)
		if err != nil {
			log.Printf("Ошибка при создании доставки: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la création de la livraison"})
			return
		}

		_, err = dispatcher.Dispatch(dispatch.Request{
			UserID:         userID,
			PickupAddress:  req.PickupAddress,
			DropoffAddress: req.DropoffAddress,
			Pickup:         req.PickupLocation,
			Dropoff:        req.DropoffLocation,
			VehicleType:    models.VehicleDelivery,
			DeliveryID:     deliveryID,
			Price:          quote.TotalPrice,
			OrderToken:     token,
		})
		if err != nil {
			// Запись остается в pending: клиент может повторить поиск позже
			if errors.Is(err, dispatch.ErrNoDriversAvailable) {
				c.JSON(http.StatusOK, gin.H{
					"delivery":   delivery.ToResponse(),
					"quote":      quote,
					"orderToken": token,
					"status":     "no_driver",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la recherche d'un livreur"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"delivery":   delivery.ToResponse(),
			"quote":      quote,
			"orderToken": token,
			"status":     "searching",
		})
	}
}

// Расчет стоимости доставки посылки без создания записи
func DeliveryQuote(calc *pricing.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PackageQuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}
		c.JSON(http.StatusOK, calc.ForPackage(req.ProductPrice, req.Quantity))
	}
}

// Список доставок текущего пользователя, из кэша представлений
func DeliveryList(views *viewstore.DeliveryViewStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		deliveries, err := views.Load(userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération des livraisons"})
			return
		}
		c.JSON(http.StatusOK, deliveries)
	}
}

// Получение доставки по идентификатору
func DeliveryGetByID(repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveryID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
			return
		}

		delivery, err := repo.DeliveryByID(uint(deliveryID))
		if err != nil {
			if errors.Is(err, repository.ErrDeliveryNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Livraison introuvable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération de la livraison"})
			return
		}

		userID := c.GetUint("user_id")
		if delivery.UserID != userID && (delivery.Driver == nil || delivery.Driver.UserID != userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé à cette livraison"})
			return
		}

		c.JSON(http.StatusOK, delivery.ToResponse())
	}
}

// Продвижение статуса доставки водителем или отмена заказчиком
func DeliveryUpdateStatus(repo *repository.DeliveryRepository, views *viewstore.DeliveryViewStore, manager *ws.Manager, notifier *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeliveryStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		deliveryID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
			return
		}

		status := models.DeliveryStatus(req.Status)
		switch status {
		case models.DeliveryStatusInTransit, models.DeliveryStatusDelivered, models.DeliveryStatusCancelled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Statut non autorisé"})
			return
		}

		delivery, err := repo.DeliveryByID(uint(deliveryID))
		if err != nil {
			if errors.Is(err, repository.ErrDeliveryNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Livraison introuvable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération de la livraison"})
			return
		}

		userID := c.GetUint("user_id")
		isCustomer := delivery.UserID == userID
		isDriver := delivery.Driver != nil && delivery.Driver.UserID == userID

		// Заказчик может только отменить, остальные переходы — за водителем
		if status == models.DeliveryStatusCancelled {
			if !isCustomer && !isDriver {
				c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé à cette livraison"})
				return
			}
		} else if !isDriver {
			c.JSON(http.StatusForbidden, gin.H{"error": "Seul le livreur peut modifier ce statut"})
			return
		}

		if err := repo.UpdateDeliveryStatus(uint(deliveryID), status); err != nil {
			if errors.Is(err, repository.ErrDriverRequired) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Aucun livreur assigné à cette livraison"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la mise à jour du statut"})
			return
		}

		if status == models.DeliveryStatusDelivered && delivery.DriverID != nil {
			if err := repo.IncrementDriverStats(*delivery.DriverID); err != nil {
				log.Printf("Ошибка при обновлении статистики водителя %d: %v", *delivery.DriverID, err)
			}
		}

		views.Invalidate(delivery.UserID)

		// Уведомляем заказчика по WebSocket и push
		manager.SendDeliveryStatusUpdate(delivery.UserID, delivery.ID, string(status))
		if pushToken, err := repo.UserPushToken(delivery.UserID); err == nil && pushToken != "" {
			if err := notifier.SendStatusUpdate(pushToken, string(status), map[string]interface{}{
				"delivery_id": delivery.ID,
			}); err != nil {
				log.Printf("Push о смене статуса доставки %d не доставлен: %v", delivery.ID, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Statut mis à jour",
			"status":  string(status),
		})
	}
}

// Обновление положения доставки в пути от приложения водителя
func DeliveryTrackingUpdate(db *gorm.DB, repo *repository.DeliveryRepository, manager *ws.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DeliveryTrackingUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		deliveryID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
			return
		}

		delivery, err := repo.DeliveryByID(uint(deliveryID))
		if err != nil {
			if errors.Is(err, repository.ErrDeliveryNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Livraison introuvable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération de la livraison"})
			return
		}

		userID := c.GetUint("user_id")
		if delivery.Driver == nil || delivery.Driver.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Seul le livreur peut envoyer sa position"})
			return
		}

		tracking := models.DeliveryTracking{
			DeliveryID: uint(deliveryID),
			CurrentLocation: geo.Location{
				Latitude:  req.Latitude,
				Longitude: req.Longitude,
			},
			Status: req.Status,
		}

		// Одна строка на доставку: позиция перезаписывается
		if err := db.Where("delivery_id = ?", deliveryID).
			Assign(map[string]interface{}{
				"current_latitude":  req.Latitude,
				"current_longitude": req.Longitude,
				"status":            req.Status,
			}).
			FirstOrCreate(&tracking).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la mise à jour de la position"})
			return
		}

		manager.NotifyUser(delivery.UserID, ws.DriverLocationUpdateType, gin.H{
			"delivery_id": delivery.ID,
			"latitude":    req.Latitude,
			"longitude":   req.Longitude,
			"status":      req.Status,
		})

		c.JSON(http.StatusOK, gin.H{"message": "Position mise à jour"})
	}
}

// Получение текущего положения доставки
func DeliveryTrackingGet(db *gorm.DB, repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveryID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
			return
		}

		delivery, err := repo.DeliveryByID(uint(deliveryID))
		if err != nil {
			if errors.Is(err, repository.ErrDeliveryNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Livraison introuvable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération de la livraison"})
			return
		}

		userID := c.GetUint("user_id")
		if delivery.UserID != userID && (delivery.Driver == nil || delivery.Driver.UserID != userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé à cette livraison"})
			return
		}

		var tracking models.DeliveryTracking
		if err := db.Where("delivery_id = ?", deliveryID).First(&tracking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Aucune position enregistrée"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération de la position"})
			return
		}

		c.JSON(http.StatusOK, tracking)
	}
}
