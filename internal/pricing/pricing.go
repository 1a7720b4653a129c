package pricing

import (
	"math"
	"os"
	"strconv"
)

// Тарифы по умолчанию в франках КФА
const (
	DefaultBasePrice       = 500.0
	DefaultPerKmRate       = 200.0
	DefaultBaseDeliveryFee = 1000.0

	premiumMultiplier = 1.5
	itemValueRate     = 0.05
)

// Calculator рассчитывает стоимость поездок и доставок.
// Формулы должны воспроизводиться байт-в-байт: сумма на экране клиента
// и сумма в базе обязаны совпадать
type Calculator struct {
	BasePrice       float64
	PerKmRate       float64
	BaseDeliveryFee float64
}

// Estimate — расчет стоимости поездки по расстоянию
type Estimate struct {
	DistanceKm      float64 `json:"distanceKm"`
	StandardPrice   float64 `json:"standardPrice"`
	PremiumPrice    float64 `json:"premiumPrice"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// PackageQuote — расчет стоимости доставки посылки
type PackageQuote struct {
	TotalItemValue float64 `json:"totalItemValue"`
	DeliveryFee    float64 `json:"deliveryFee"`
	TotalPrice     float64 `json:"totalPrice"`
}

// NewCalculator создает калькулятор с тарифами из окружения
// или со значениями по умолчанию
func NewCalculator() *Calculator {
	return &Calculator{
		BasePrice:       envFloat("PRICING_BASE_PRICE", DefaultBasePrice),
		PerKmRate:       envFloat("PRICING_PER_KM_RATE", DefaultPerKmRate),
		BaseDeliveryFee: envFloat("PRICING_BASE_DELIVERY_FEE", DefaultBaseDeliveryFee),
	}
}

func envFloat(key string, def float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if val, err := strconv.ParseFloat(raw, 64); err == nil && val > 0 {
			return val
		}
	}
	return def
}

// ForDistance рассчитывает стандартную и премиум цену плюс оценку времени.
// Время — фиксированная эвристика (2 минуты на километр), а не ETA
// маршрутизатора
func (c *Calculator) ForDistance(distanceKm float64) Estimate {
	standard := math.Round(c.BasePrice + distanceKm*c.PerKmRate)
	premium := math.Round(standard * premiumMultiplier)
	duration := math.Round(distanceKm*10) / 10 * 2

	return Estimate{
		DistanceKm:      distanceKm,
		StandardPrice:   standard,
		PremiumPrice:    premium,
		DurationMinutes: duration,
	}
}

// PriceFor возвращает цену для запрошенного класса автомобиля
func (c *Calculator) PriceFor(distanceKm float64, vehicleType string) float64 {
	est := c.ForDistance(distanceKm)
	if vehicleType == "confort" {
		return est.PremiumPrice
	}
	return est.StandardPrice
}

// ForPackage рассчитывает стоимость доставки посылки: комиссия — максимум
// из базовой ставки и 5% стоимости товара
func (c *Calculator) ForPackage(productPrice float64, quantity int) PackageQuote {
	totalItemValue := productPrice * float64(quantity)
	deliveryFee := math.Max(c.BaseDeliveryFee, totalItemValue*itemValueRate)
	totalPrice := math.Round(c.BaseDeliveryFee + deliveryFee)

	return PackageQuote{
		TotalItemValue: totalItemValue,
		DeliveryFee:    deliveryFee,
		TotalPrice:     totalPrice,
	}
}
