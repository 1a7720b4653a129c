package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrNoPushToken возвращается, когда у получателя нет push-токена.
// Вызывающий обязан переключиться на локальное уведомление, а не
// считать заказ проваленным
var ErrNoPushToken = errors.New("у получателя нет push-токена")

// NotificationService отправляет push-уведомления через FCM
type NotificationService struct {
	serverKey string
	client    *http.Client
}

type NotificationPayload struct {
	To           string                 `json:"to"`
	Notification NotificationContent    `json:"notification"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

type NotificationContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// OfferSummary — краткое описание заказа для предложения водителю
type OfferSummary struct {
	OrderToken     string  `json:"orderToken"`
	PickupAddress  string  `json:"pickupAddress"`
	DropoffAddress string  `json:"dropoffAddress"`
	VehicleType    string  `json:"vehicleType"`
	Price          float64 `json:"price"`
	DistanceKm     float64 `json:"distanceKm"`
}

func NewNotificationService() *NotificationService {
	return &NotificationService{
		serverKey: os.Getenv("FIREBASE_SERVER_KEY"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SendOffer отправляет водителю предложение заказа
func (s *NotificationService) SendOffer(pushToken string, offer OfferSummary) error {
	if pushToken == "" {
		return ErrNoPushToken
	}
	body := fmt.Sprintf("%s → %s, %.0f FCFA", offer.PickupAddress, offer.DropoffAddress, offer.Price)
	return s.send(NotificationPayload{
		To: pushToken,
		Notification: NotificationContent{
			Title: "Nouvelle course Yatou",
			Body:  body,
		},
		Data: map[string]interface{}{
			"type":           "NEW_OFFER",
			"orderToken":     offer.OrderToken,
			"pickupAddress":  offer.PickupAddress,
			"dropoffAddress": offer.DropoffAddress,
			"vehicleType":    offer.VehicleType,
			"price":          offer.Price,
			"distanceKm":     offer.DistanceKm,
		},
	})
}

// SendStatusUpdate отправляет уведомление об изменении статуса доставки
func (s *NotificationService) SendStatusUpdate(pushToken string, status string, data map[string]interface{}) error {
	if pushToken == "" {
		return ErrNoPushToken
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["type"] = "DELIVERY_STATUS_UPDATE"
	data["status"] = status

	return s.send(NotificationPayload{
		To: pushToken,
		Notification: NotificationContent{
			Title: "Yatou",
			Body:  statusMessage(status),
		},
		Data: data,
	})
}

func (s *NotificationService) send(payload NotificationPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка при маршалинге уведомления: %v", err)
	}

	req, err := http.NewRequest("POST", "https://fcm.googleapis.com/fcm/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("ошибка при создании запроса: %v", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("key=%s", s.serverKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка при отправке уведомления: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FCM вернул статус %d", resp.StatusCode)
	}

	return nil
}

// Тексты для клиента на французском — язык приложения
func statusMessage(status string) string {
	switch status {
	case "confirmed":
		return "Votre chauffeur est en route"
	case "in_transit":
		return "Votre livraison est en cours"
	case "delivered":
		return "Votre livraison est arrivée"
	case "no_driver":
		return "Aucun chauffeur disponible pour le moment"
	default:
		return "Mise à jour de votre livraison"
	}
}
