package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nocodeci/yatou-sub001/internal/models"
	"github.com/nocodeci/yatou-sub001/internal/services"
	"github.com/nocodeci/yatou-sub001/internal/utils"
)

type SendCodeRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone" binding:"required,e164"`
	Code      string `json:"code" binding:"required"`
}

type LoginRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
	Code  string `json:"code" binding:"required"`
}

type AuthResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Token   string              `json:"token,omitempty"`
	User    models.UserResponse `json:"user,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Отправка кода подтверждения по SMS
func SendVerificationCode(sms *services.SMSService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SendCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Format de données invalide",
				Error:   err.Error(),
			})
			return
		}

		log.Printf("Получен запрос на отправку кода для номера: %s", req.Phone)

		if err := sms.SendVerificationCode(c.Request.Context(), req.Phone); err != nil {
			log.Printf("Ошибка при отправке кода: %v", err)
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Échec de l'envoi du code de vérification",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Message: "Code de vérification envoyé",
		})
	}
}

// Регистрация нового пользователя после проверки кода
func AuthRegister(db *gorm.DB, sms *services.SMSService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Format de données invalide",
				Error:   err.Error(),
			})
			return
		}

		if err := sms.VerifyCode(c.Request.Context(), req.Phone, req.Code); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrCodeExpired) || errors.Is(err, services.ErrCodeInvalid) {
				status = http.StatusBadRequest
			}
			c.JSON(status, AuthResponse{
				Success: false,
				Message: "Code de vérification incorrect ou expiré",
			})
			return
		}

		// Проверяем, существует ли пользователь с таким телефоном
		var existingUser models.User
		if result := db.Where("phone = ?", req.Phone).First(&existingUser); result.Error == nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Un compte existe déjà avec ce numéro",
			})
			return
		}

		user := models.User{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Role:      models.RoleCustomer,
		}

		if result := db.Create(&user); result.Error != nil {
			log.Printf("Ошибка при создании пользователя: %v", result.Error)
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Erreur lors de la création du compte",
			})
			return
		}

		token, err := utils.GenerateJWT(user.ID, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Erreur lors de la création du jeton",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Token:   token,
			User: models.UserResponse{
				ID:        user.ID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
				Phone:     user.Phone,
				Role:      user.Role,
				CreatedAt: user.CreatedAt,
			},
		})
	}
}

// Вход существующего пользователя после проверки кода
func AuthLogin(db *gorm.DB, sms *services.SMSService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Format de données invalide",
				Error:   err.Error(),
			})
			return
		}

		if err := sms.VerifyCode(c.Request.Context(), req.Phone, req.Code); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrCodeExpired) || errors.Is(err, services.ErrCodeInvalid) {
				status = http.StatusBadRequest
			}
			c.JSON(status, AuthResponse{
				Success: false,
				Message: "Code de vérification incorrect ou expiré",
			})
			return
		}

		var user models.User
		if result := db.Preload("Driver").Where("phone = ?", req.Phone).First(&user); result.Error != nil {
			c.JSON(http.StatusUnauthorized, AuthResponse{
				Success: false,
				Message: "Aucun compte associé à ce numéro",
			})
			return
		}

		token, err := utils.GenerateJWT(user.ID, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Erreur lors de la création du jeton",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Token:   token,
			User:    userResponse(&user),
		})
	}
}

// Получение информации о текущем пользователе
func GetCurrentUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var user models.User
		if err := db.Preload("Driver").First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, AuthResponse{
				Success: false,
				Message: "Utilisateur introuvable",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			User:    userResponse(&user),
		})
	}
}

// UpdateFCMToken обновляет push-токен пользователя
func UpdateFCMToken(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		userID, _ := c.Get("user_id")

		if err := db.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", req.FCMToken).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la mise à jour du jeton push"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Jeton push mis à jour"})
	}
}

func userResponse(user *models.User) models.UserResponse {
	resp := models.UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		PhotoUrl:  user.PhotoUrl,
		Role:      user.Role,
		FCMToken:  user.FCMToken,
		CreatedAt: user.CreatedAt,
	}
	if user.Driver != nil {
		resp.Driver = &models.DriverResponse{
			ID:              user.Driver.ID,
			UserID:          user.Driver.UserID,
			FirstName:       user.FirstName,
			LastName:        user.LastName,
			VehicleType:     user.Driver.VehicleType,
			Available:       user.Driver.Available,
			LastLocation:    user.Driver.LastLocation,
			Rating:          user.Driver.Rating,
			DeliveriesCount: user.Driver.DeliveriesCount,
		}
	}
	return resp
}
