package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nocodeci/yatou-sub001/internal/geo"
	"github.com/nocodeci/yatou-sub001/internal/models"
	"github.com/nocodeci/yatou-sub001/internal/repository"
)

type DriverRegisterRequest struct {
	VehicleType string `json:"vehicleType" binding:"required"`
}

type DriverAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

type DriverLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
}

// Регистрация профиля водителя для текущего пользователя
func DriverRegister(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DriverRegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		if !models.ValidVehicleType(req.VehicleType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Type de véhicule inconnu"})
			return
		}

		userID := c.GetUint("user_id")

		var existing models.Driver
		if result := db.Where("user_id = ?", userID).First(&existing); result.Error == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Un profil chauffeur existe déjà pour ce compte"})
			return
		}

		driver := models.Driver{
			UserID:      userID,
			VehicleType: req.VehicleType,
			Available:   false,
			Rating:      5,
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&driver).Error; err != nil {
				return err
			}
			return tx.Model(&models.User{}).Where("id = ?", userID).
				Update("role", models.RoleDriver).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la création du profil chauffeur"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Profil chauffeur créé",
			"driver":  driver,
		})
	}
}

// Переключение доступности водителя
func DriverSetAvailability(repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DriverAvailabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		userID := c.GetUint("user_id")
		driver, err := repo.DriverByUserID(userID)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Profil chauffeur requis"})
			return
		}

		if err := repo.SetDriverAvailability(driver.ID, *req.Available); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la mise à jour de la disponibilité"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "Disponibilité mise à jour",
			"available": *req.Available,
		})
	}
}

// Обновление положения водителя
func DriverUpdateLocation(repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DriverLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		coord := geo.Normalize(geo.Location{Latitude: req.Latitude, Longitude: req.Longitude}.Coord())
		if !geo.Validate(coord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Coordonnées hors de la zone de service"})
			return
		}

		userID := c.GetUint("user_id")
		driver, err := repo.DriverByUserID(userID)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Profil chauffeur requis"})
			return
		}

		if err := repo.UpdateDriverLocation(driver.ID, coord.ToLocation()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la mise à jour de la position"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Position mise à jour"})
	}
}

// Список ближайших доступных водителей запрошенного класса
func DriverGetNearby(repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
		if errLat != nil || errLng != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Coordonnées requises"})
			return
		}

		vehicleType := c.DefaultQuery("vehicleType", models.VehicleEco)
		if !models.ValidVehicleType(vehicleType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Type de véhicule inconnu"})
			return
		}

		coord := geo.Normalize(geo.Location{Latitude: lat, Longitude: lng}.Coord())
		if !geo.Validate(coord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Coordonnées hors de la zone de service"})
			return
		}

		pickup := coord.ToLocation()
		drivers, err := repo.FindCandidates(pickup, vehicleType, 10)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la recherche de chauffeurs"})
			return
		}

		response := make([]models.DriverResponse, 0, len(drivers))
		for _, driver := range drivers {
			response = append(response, models.DriverResponse{
				ID:              driver.ID,
				UserID:          driver.UserID,
				FirstName:       driver.User.FirstName,
				LastName:        driver.User.LastName,
				VehicleType:     driver.VehicleType,
				Available:       driver.Available,
				LastLocation:    driver.LastLocation,
				Rating:          driver.Rating,
				DeliveriesCount: driver.DeliveriesCount,
				DistanceKm: geo.RoundKm(geo.DistanceKm(
					coord, geo.ParseLocation(driver.LastLocation).Coord())),
			})
		}

		c.JSON(http.StatusOK, response)
	}
}

// Список доставок, назначенных текущему водителю
func DriverGetDeliveries(repo *repository.DeliveryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		driver, err := repo.DriverByUserID(userID)
		if err != nil {
			if errors.Is(err, repository.ErrDriverNotFound) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Profil chauffeur requis"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération du profil"})
			return
		}

		deliveries, err := repo.ListDeliveriesForDriver(driver.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération des livraisons"})
			return
		}

		response := make([]models.DeliveryResponse, 0, len(deliveries))
		for i := range deliveries {
			response = append(response, deliveries[i].ToResponse())
		}

		c.JSON(http.StatusOK, response)
	}
}
