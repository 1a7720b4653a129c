package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal - общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration - длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Длительность HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight - количество запросов в обработке
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Текущее количество запросов в обработке",
		},
	)

	// DispatchOffersTotal - предложения заказов водителям
	DispatchOffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_offers_total",
			Help: "Количество предложений заказов, отправленных водителям",
		},
		[]string{"channel"}, // push или local
	)

	// DispatchOrdersTotal - итоги заказов по исходам
	DispatchOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_orders_total",
			Help: "Итоги диспетчеризации заказов",
		},
		[]string{"outcome"}, // accepted, exhausted, late_accepted
	)

	// DispatchOfferResponseDuration - время от предложения до ответа водителя
	DispatchOfferResponseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_offer_response_seconds",
			Help:    "Время ответа водителя на предложение заказа",
			Buckets: []float64{1, 5, 10, 15, 20, 25, 30, 45, 60},
		},
	)
)

// PrometheusMiddleware собирает метрики для HTTP запросов
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// TrackOffer отслеживает отправленное водителю предложение
func TrackOffer(usedFallback bool) {
	channel := "push"
	if usedFallback {
		channel = "local"
	}
	DispatchOffersTotal.WithLabelValues(channel).Inc()
}

// TrackOrderOutcome отслеживает итог диспетчеризации заказа
func TrackOrderOutcome(outcome string) {
	DispatchOrdersTotal.WithLabelValues(outcome).Inc()
}

// TrackOfferResponse отслеживает время ответа водителя
func TrackOfferResponse(elapsed time.Duration) {
	DispatchOfferResponseDuration.Observe(elapsed.Seconds())
}
