package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nocodeci/yatou-sub001/internal/dispatch"
	"github.com/nocodeci/yatou-sub001/internal/geo"
	"github.com/nocodeci/yatou-sub001/internal/pricing"
	"github.com/nocodeci/yatou-sub001/internal/repository"
)

type OrderCreateRequest struct {
	PickupAddress   string       `json:"pickupAddress" binding:"required"`
	DropoffAddress  string       `json:"dropoffAddress" binding:"required"`
	PickupLocation  geo.Location `json:"pickupLocation" binding:"required"`
	DropoffLocation geo.Location `json:"dropoffLocation" binding:"required"`
	VehicleType     string       `json:"vehicleType" binding:"required"`
}

type OrderRespondRequest struct {
	Accepted bool `json:"accepted"`
}

type EstimateRequest struct {
	PickupLocation  geo.Location `json:"pickupLocation" binding:"required"`
	DropoffLocation geo.Location `json:"dropoffLocation" binding:"required"`
}

// Создание заказа автомобиля: подбор водителя начинается сразу
func OrderCreate(dispatcher *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		userID := c.GetUint("user_id")

		token, err := dispatcher.Dispatch(dispatch.Request{
			UserID:         userID,
			PickupAddress:  req.PickupAddress,
			DropoffAddress: req.DropoffAddress,
			Pickup:         req.PickupLocation,
			Dropoff:        req.DropoffLocation,
			VehicleType:    req.VehicleType,
		})
		if err != nil {
			switch {
			case errors.Is(err, dispatch.ErrInvalidVehicleType):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Type de véhicule inconnu"})
			case errors.Is(err, dispatch.ErrInvalidCoordinates):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Coordonnées hors de la zone de service"})
			case errors.Is(err, dispatch.ErrNoDriversAvailable):
				c.JSON(http.StatusNotFound, gin.H{"error": "Aucun chauffeur disponible pour le moment"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la création de la commande"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orderToken": token,
			"status":     "searching",
		})
	}
}

// Ответ водителя на предложение заказа
func OrderRespond(dispatcher *dispatch.Dispatcher, repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderRespondRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		token := c.Param("token")
		userID := c.GetUint("user_id")

		// Отвечает приложение водителя: находим его профиль
		driver, err := repo.DriverByUserID(userID)
		if err != nil {
			if errors.Is(err, repository.ErrDriverNotFound) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Profil chauffeur requis"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération du profil"})
			return
		}

		if err := dispatcher.Respond(token, driver.ID, req.Accepted); err != nil {
			if errors.Is(err, dispatch.ErrNotACandidate) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Cette commande ne vous a pas été proposée"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors du traitement de la réponse"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Réponse enregistrée"})
	}
}

// Получение состояния активного заказа
func OrderGetActive(dispatcher *dispatch.Dispatcher, repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		if snap, ok := dispatcher.Active(token); ok {
			c.JSON(http.StatusOK, gin.H{
				"orderToken":     snap.Token,
				"status":         "searching",
				"candidateIndex": snap.CandidateIndex,
				"candidateCount": snap.CandidateCount,
				"price":          snap.Price,
				"vehicleType":    snap.VehicleType,
				"created_at":     snap.CreatedAt,
			})
			return
		}

		// Заказа нет в таблице: либо он уже стал доставкой, либо исчерпан
		delivery, err := repo.DeliveryByOrderToken(token)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération de la commande"})
			return
		}
		if delivery == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orderToken": token,
			"status":     string(delivery.Status),
			"delivery":   delivery.ToResponse(),
		})
	}
}

// Предварительный расчет стоимости поездки без создания заказа
func OrderEstimate(calc *pricing.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EstimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		pickup := geo.Normalize(req.PickupLocation.Coord())
		dropoff := geo.Normalize(req.DropoffLocation.Coord())
		if !geo.Validate(pickup) || !geo.Validate(dropoff) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Coordonnées hors de la zone de service"})
			return
		}

		distanceKm := geo.RoundKm(geo.DistanceKm(pickup, dropoff))
		c.JSON(http.StatusOK, calc.ForDistance(distanceKm))
	}
}
