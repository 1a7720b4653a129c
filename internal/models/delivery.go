package models

import (
	"time"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"    // Ожидает назначения водителя
	DeliveryStatusConfirmed DeliveryStatus = "confirmed"  // Водитель назначен
	DeliveryStatusInTransit DeliveryStatus = "in_transit" // В пути
	DeliveryStatusDelivered DeliveryStatus = "delivered"  // Доставлено
	DeliveryStatusCancelled DeliveryStatus = "cancelled"  // Отменено
)

// StatusRequiresDriver возвращает true для статусов, в которых у доставки
// обязан быть назначен водитель. Инвариант: driver_id заполнен тогда и
// только тогда, когда статус входит в этот набор
func StatusRequiresDriver(status DeliveryStatus) bool {
	switch status {
	case DeliveryStatusConfirmed, DeliveryStatusInTransit, DeliveryStatusDelivered:
		return true
	}
	return false
}

// Delivery — постоянная запись о доставке. Записи никогда физически
// не удаляются, отмена — это статус
type Delivery struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	OrderToken         *string        `json:"orderToken,omitempty" gorm:"column:order_token;uniqueIndex;type:varchar(64)"`
	UserID             uint           `json:"user_id" gorm:"column:user_id;not null"`
	DriverID           *uint          `json:"driver_id,omitempty" gorm:"column:driver_id"`
	PickupAddress      string         `json:"pickupAddress" gorm:"column:pickup_address;not null"`
	DropoffAddress     string         `json:"dropoffAddress" gorm:"column:dropoff_address;not null"`
	PickupLocation     string         `json:"pickupLocation" gorm:"column:pickup_location;type:point;not null"`
	DropoffLocation    string         `json:"dropoffLocation" gorm:"column:dropoff_location;type:point;not null"`
	VehicleType        string         `json:"vehicleType" gorm:"column:vehicle_type;type:varchar(20)"`
	PackageDescription string         `json:"packageDescription" gorm:"column:package_description;default:''"`
	ProductPrice       float64        `json:"productPrice" gorm:"column:product_price;default:0"`
	Quantity           int            `json:"quantity" gorm:"column:quantity;default:0"`
	Price              float64        `json:"price" gorm:"column:price;not null"`
	Status             DeliveryStatus `json:"status" gorm:"column:status;type:varchar(20);default:'pending'"`
	CreatedAt          time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime;type:timestamp with time zone"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;type:timestamp with time zone"`
	User               User           `json:"-" gorm:"foreignKey:UserID"`
	Driver             *Driver        `json:"-" gorm:"foreignKey:DriverID"`
}

type DeliveryResponse struct {
	ID                 uint           `json:"id"`
	OrderToken         string         `json:"orderToken,omitempty"`
	UserID             uint           `json:"user_id"`
	DriverID           *uint          `json:"driver_id,omitempty"`
	PickupAddress      string         `json:"pickupAddress"`
	DropoffAddress     string         `json:"dropoffAddress"`
	PickupLocation     string         `json:"pickupLocation"`
	DropoffLocation    string         `json:"dropoffLocation"`
	VehicleType        string         `json:"vehicleType"`
	PackageDescription string         `json:"packageDescription,omitempty"`
	Price              float64        `json:"price"`
	Status             DeliveryStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DriverName         string         `json:"driverName,omitempty"`
}

// ToResponse формирует ответ API по записи доставки
func (d *Delivery) ToResponse() DeliveryResponse {
	resp := DeliveryResponse{
		ID:                 d.ID,
		UserID:             d.UserID,
		DriverID:           d.DriverID,
		PickupAddress:      d.PickupAddress,
		DropoffAddress:     d.DropoffAddress,
		PickupLocation:     d.PickupLocation,
		DropoffLocation:    d.DropoffLocation,
		VehicleType:        d.VehicleType,
		PackageDescription: d.PackageDescription,
		Price:              d.Price,
		Status:             d.Status,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if d.OrderToken != nil {
		resp.OrderToken = *d.OrderToken
	}
	if d.Driver != nil {
		resp.DriverName = d.Driver.User.FirstName + " " + d.Driver.User.LastName
	}
	return resp
}
