package models

import (
	"time"

	"github.com/nocodeci/yatou-sub001/internal/geo"
)

// DeliveryTracking — текущее положение доставки, находящейся в пути
type DeliveryTracking struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	DeliveryID      uint         `json:"delivery_id" gorm:"column:delivery_id;not null;uniqueIndex"`
	CurrentLocation geo.Location `json:"currentLocation" gorm:"embedded;embeddedPrefix:current_"`
	Status          string       `json:"status"` // picking_up, dropping_off
	EstimatedTime   int          `json:"estimatedTime"` // минут до следующей точки
	UpdatedAt       time.Time    `json:"updated_at"`

	Delivery Delivery `json:"-" gorm:"foreignKey:DeliveryID"`
}

// DeliveryTrackingUpdate — входной формат обновления от приложения водителя
type DeliveryTrackingUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    string  `json:"status,omitempty"`
}
