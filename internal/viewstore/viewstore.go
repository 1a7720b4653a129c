package viewstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nocodeci/yatou-sub001/internal/models"
)

// Lister — источник истины для списка доставок пользователя
type Lister interface {
	ListDeliveriesForUser(userID uint) ([]models.Delivery, error)
}

// DeliveryViewStore — сквозной кэш списка доставок пользователя.
// Собственного представления о статусах у него нет: любое чтение мимо
// кэша идет в репозиторий, а диспетчер инвалидирует кэш при каждом
// завершении заказа
type DeliveryViewStore struct {
	repo  Lister
	redis *redis.Client
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[uint][]models.DeliveryResponse
}

func New(repo Lister, redisClient *redis.Client) *DeliveryViewStore {
	ttl := 300 // 5 минут по умолчанию
	if raw := os.Getenv("VIEWSTORE_CACHE_TTL"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 {
			ttl = val
		}
	}

	return &DeliveryViewStore{
		repo:  repo,
		redis: redisClient,
		ttl:   time.Duration(ttl) * time.Second,
		cache: make(map[uint][]models.DeliveryResponse),
	}
}

// Load возвращает список доставок пользователя: из памяти, затем из Redis,
// затем полная перечитка из репозитория
func (s *DeliveryViewStore) Load(userID uint) ([]models.DeliveryResponse, error) {
	s.mu.RLock()
	cached, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if fromRedis, ok := s.loadRedis(userID); ok {
		s.mu.Lock()
		s.cache[userID] = fromRedis
		s.mu.Unlock()
		return fromRedis, nil
	}

	return s.reload(userID)
}

// Invalidate сбрасывает кэш пользователя и сразу перечитывает его из
// репозитория. Вызывается диспетчером при каждом завершении заказа
func (s *DeliveryViewStore) Invalidate(userID uint) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.redis.Del(ctx, cacheKey(userID))
	}

	if _, err := s.reload(userID); err != nil {
		log.Printf("ViewStore: ошибка при перечитке доставок пользователя %d: %v", userID, err)
	}
}

func (s *DeliveryViewStore) reload(userID uint) ([]models.DeliveryResponse, error) {
	deliveries, err := s.repo.ListDeliveriesForUser(userID)
	if err != nil {
		return nil, err
	}

	responses := make([]models.DeliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		responses = append(responses, deliveries[i].ToResponse())
	}

	s.mu.Lock()
	s.cache[userID] = responses
	s.mu.Unlock()
	s.storeRedis(userID, responses)

	return responses, nil
}

func (s *DeliveryViewStore) loadRedis(userID uint) ([]models.DeliveryResponse, bool) {
	if s.redis == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := s.redis.Get(ctx, cacheKey(userID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("ViewStore: ошибка при чтении из Redis: %v", err)
		return nil, false
	}

	var responses []models.DeliveryResponse
	if err := json.Unmarshal([]byte(val), &responses); err != nil {
		log.Printf("ViewStore: ошибка при десериализации кэша: %v", err)
		return nil, false
	}
	return responses, true
}

func (s *DeliveryViewStore) storeRedis(userID uint, responses []models.DeliveryResponse) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(responses)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.redis.Set(ctx, cacheKey(userID), data, s.ttl).Err(); err != nil {
		log.Printf("ViewStore: ошибка при сохранении кэша: %v", err)
	}
}

func cacheKey(userID uint) string {
	return fmt.Sprintf("deliveries:user:%d", userID)
}
