package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nocodeci/yatou-sub001/internal/models"
)

type ProfileUpdateRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	PhotoUrl  string `json:"photoUrl"`
}

// Обновление профиля текущего пользователя
func ProfileUpdate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProfileUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Format de données invalide"})
			return
		}

		userID := c.GetUint("user_id")

		updates := map[string]interface{}{}
		if req.FirstName != "" {
			updates["first_name"] = req.FirstName
		}
		if req.LastName != "" {
			updates["last_name"] = req.LastName
		}
		if req.PhotoUrl != "" {
			updates["photo_url"] = req.PhotoUrl
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune donnée à mettre à jour"})
			return
		}

		if err := db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la mise à jour du profil"})
			return
		}

		var user models.User
		if err := db.Preload("Driver").First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lors de la récupération du profil"})
			return
		}

		c.JSON(http.StatusOK, userResponse(&user))
	}
}
