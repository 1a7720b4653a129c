package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrCodeExpired = errors.New("код подтверждения истек или не запрашивался")
	ErrCodeInvalid = errors.New("неверный код подтверждения")
)

// SMSService отправляет коды подтверждения через SMS-шлюз Orange
// и хранит их хэши в Redis с TTL
type SMSService struct {
	apiURL      string
	apiToken    string
	senderName  string
	redisClient *redis.Client
	codeTTL     time.Duration
}

func NewSMSService(redisClient *redis.Client) *SMSService {
	return &SMSService{
		apiURL:      os.Getenv("ORANGE_SMS_API_URL"),
		apiToken:    os.Getenv("ORANGE_SMS_API_TOKEN"),
		senderName:  os.Getenv("ORANGE_SMS_SENDER"),
		redisClient: redisClient,
		codeTTL:     5 * time.Minute,
	}
}

// SendVerificationCode генерирует шестизначный код, сохраняет его bcrypt-хэш
// в Redis и отправляет SMS. В базе и логах код в открытом виде не появляется
func (s *SMSService) SendVerificationCode(ctx context.Context, phone string) error {
	code := fmt.Sprintf("%06d", rand.Intn(1000000))

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("ошибка при хэшировании кода: %w", err)
	}

	if s.redisClient == nil {
		return errors.New("redis недоступен, отправка кода невозможна")
	}
	if err := s.redisClient.Set(ctx, codeKey(phone), hash, s.codeTTL).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении кода: %w", err)
	}

	message := fmt.Sprintf("Votre code Yatou: %s", code)
	if err := s.sendSMS(ctx, phone, message); err != nil {
		return fmt.Errorf("ошибка при отправке SMS: %w", err)
	}

	return nil
}

// VerifyCode сверяет код с хэшом из Redis. Успешная проверка сжигает код
func (s *SMSService) VerifyCode(ctx context.Context, phone, code string) error {
	if s.redisClient == nil {
		return ErrCodeExpired
	}

	hash, err := s.redisClient.Get(ctx, codeKey(phone)).Result()
	if err == redis.Nil {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("ошибка при получении кода: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return ErrCodeInvalid
	}

	// Код одноразовый
	s.redisClient.Del(ctx, codeKey(phone))
	return nil
}

func (s *SMSService) sendSMS(ctx context.Context, phone, message string) error {
	payload := map[string]interface{}{
		"outboundSMSMessageRequest": map[string]interface{}{
			"address":       fmt.Sprintf("tel:%s", phone),
			"senderAddress": s.senderName,
			"outboundSMSTextMessage": map[string]string{
				"message": message,
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка при маршалинге данных: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("ошибка при создании запроса: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiToken))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("SMS-шлюз вернул статус %d", resp.StatusCode)
	}
	return nil
}

func codeKey(phone string) string {
	return fmt.Sprintf("verification:%s", phone)
}
