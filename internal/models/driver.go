package models

import (
	"time"
)

// Классы автомобилей
const (
	VehicleMoto     = "moto"
	VehicleEco      = "eco"
	VehicleConfort  = "confort"
	VehicleDelivery = "delivery"
)

// ValidVehicleType проверяет, что запрошенный класс автомобиля поддерживается
func ValidVehicleType(vehicleType string) bool {
	switch vehicleType {
	case VehicleMoto, VehicleEco, VehicleConfort, VehicleDelivery:
		return true
	}
	return false
}

// Driver — профиль водителя. Доступность и местоположение обновляет
// приложение самого водителя, диспетчер их только читает
type Driver struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	UserID          uint      `json:"user_id" gorm:"column:user_id;not null;uniqueIndex"`
	VehicleType     string    `json:"vehicleType" gorm:"column:vehicle_type;not null;type:varchar(20)"`
	Available       bool      `json:"available" gorm:"column:available;default:false"`
	LastLocation    string    `json:"lastLocation" gorm:"column:last_location;type:point"`
	Rating          float64   `json:"rating" gorm:"column:rating;default:5"`
	DeliveriesCount int       `json:"deliveriesCount" gorm:"column:deliveries_count;default:0"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;type:timestamp with time zone"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;type:timestamp with time zone"`
	User            User      `json:"-" gorm:"foreignKey:UserID"`
}

type DriverResponse struct {
	ID              uint    `json:"id"`
	UserID          uint    `json:"user_id"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	VehicleType     string  `json:"vehicleType"`
	Available       bool    `json:"available"`
	LastLocation    string  `json:"lastLocation"`
	Rating          float64 `json:"rating"`
	DeliveriesCount int     `json:"deliveriesCount"`
	DistanceKm      float64 `json:"distanceKm,omitempty"`
}
