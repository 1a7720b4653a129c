package repository

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/nocodeci/yatou-sub001/internal/geo"
	"github.com/nocodeci/yatou-sub001/internal/models"
)

var (
	ErrDeliveryNotFound = errors.New("доставка не найдена")
	ErrDriverNotFound   = errors.New("водитель не найден")
	ErrDriverRequired   = errors.New("для этого статуса доставки должен быть назначен водитель")
)

// DeliveryRepository — фасад над базой для доставок, водителей и
// пользователей. Все операции — сетевые вызовы и могут падать временно;
// ошибки всегда возвращаются вызывающему, молчаливых no-op здесь нет
type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// IsForeignKeyViolation распознает нарушение внешнего ключа Postgres
// (код 23503). При рабочем пути с подставным пользователем сюда попадать
// не должны, проверка оставлена на случай гонки с удалением
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}

// CreateDelivery создает запись доставки. Инвариант driver_id/статус
// проверяется до записи
func (r *DeliveryRepository) CreateDelivery(delivery *models.Delivery) (uint, error) {
	if models.StatusRequiresDriver(delivery.Status) && delivery.DriverID == nil {
		return 0, ErrDriverRequired
	}
	if delivery.DriverID != nil && !models.StatusRequiresDriver(delivery.Status) {
		return 0, fmt.Errorf("водитель не может быть назначен доставке в статусе %s", delivery.Status)
	}
	if err := r.db.Create(delivery).Error; err != nil {
		return 0, fmt.Errorf("ошибка при создании доставки: %w", err)
	}
	return delivery.ID, nil
}

// AcceptDelivery назначает водителя и переводит доставку в confirmed.
// Оба поля пишутся одним обновлением, чтобы инвариант не нарушался
// даже на мгновение
func (r *DeliveryRepository) AcceptDelivery(deliveryID, driverID uint) error {
	result := r.db.Model(&models.Delivery{}).
		Where("id = ? AND status = ?", deliveryID, models.DeliveryStatusPending).
		Updates(map[string]interface{}{
			"driver_id": driverID,
			"status":    models.DeliveryStatusConfirmed,
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка при подтверждении доставки: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// UpdateDeliveryStatus продвигает статус доставки действием водителя
// или заказчика. Статус и driver_id пишутся одним обновлением: переход
// в статус без водителя сбрасывает назначение той же записью
func (r *DeliveryRepository) UpdateDeliveryStatus(deliveryID uint, status models.DeliveryStatus) error {
	var delivery models.Delivery
	if err := r.db.First(&delivery, deliveryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeliveryNotFound
		}
		return fmt.Errorf("ошибка при получении доставки: %w", err)
	}
	if models.StatusRequiresDriver(status) && delivery.DriverID == nil {
		return ErrDriverRequired
	}
	if err := r.db.Model(&delivery).Updates(statusUpdateColumns(status)).Error; err != nil {
		return fmt.Errorf("ошибка при обновлении статуса доставки: %w", err)
	}
	return nil
}

// statusUpdateColumns строит колонки для смены статуса. Инвариант:
// driver_id заполнен тогда и только тогда, когда статус требует водителя
func statusUpdateColumns(status models.DeliveryStatus) map[string]interface{} {
	cols := map[string]interface{}{"status": status}
	if !models.StatusRequiresDriver(status) {
		cols["driver_id"] = nil
	}
	return cols
}

// ListDeliveriesForUser возвращает доставки пользователя (как заказчика),
// новые первыми
func (r *DeliveryRepository) ListDeliveriesForUser(userID uint) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	if err := r.db.Where("user_id = ?", userID).
		Preload("Driver").
		Preload("Driver.User").
		Order("created_at DESC").
		Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении доставок: %w", err)
	}
	return deliveries, nil
}

// ListDeliveriesForDriver возвращает доставки, назначенные водителю
func (r *DeliveryRepository) ListDeliveriesForDriver(driverID uint) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	if err := r.db.Where("driver_id = ?", driverID).
		Order("created_at DESC").
		Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении доставок водителя: %w", err)
	}
	return deliveries, nil
}

// DeliveryByID возвращает доставку по идентификатору
func (r *DeliveryRepository) DeliveryByID(deliveryID uint) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.Preload("Driver").Preload("Driver.User").First(&delivery, deliveryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("ошибка при получении доставки: %w", err)
	}
	return &delivery, nil
}

// DeliveryByOrderToken ищет доставку по токену заказа. Отсутствие записи —
// не ошибка: возвращается (nil, nil)
func (r *DeliveryRepository) DeliveryByOrderToken(token string) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.Where("order_token = ?", token).First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при поиске доставки по токену: %w", err)
	}
	return &delivery, nil
}

// DriverByID возвращает водителя с профилем пользователя
func (r *DeliveryRepository) DriverByID(driverID uint) (*models.Driver, error) {
	var driver models.Driver
	if err := r.db.Preload("User").First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("ошибка при получении водителя: %w", err)
	}
	return &driver, nil
}

// DriverByUserID возвращает профиль водителя по id пользователя
func (r *DeliveryRepository) DriverByUserID(userID uint) (*models.Driver, error) {
	var driver models.Driver
	if err := r.db.Where("user_id = ?", userID).First(&driver).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("ошибка при получении профиля водителя: %w", err)
	}
	return &driver, nil
}

// DriverPushToken возвращает push-токен водителя. Пустой токен — не ошибка:
// вызывающий переключается на локальное уведомление
func (r *DeliveryRepository) DriverPushToken(driverID uint) (string, error) {
	var driver models.Driver
	if err := r.db.Preload("User").First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrDriverNotFound
		}
		return "", fmt.Errorf("ошибка при получении push-токена: %w", err)
	}
	return driver.User.FCMToken, nil
}

// UserPushToken возвращает push-токен пользователя
func (r *DeliveryRepository) UserPushToken(userID uint) (string, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return "", fmt.Errorf("ошибка при получении push-токена пользователя: %w", err)
	}
	return user.FCMToken, nil
}

// FindCandidates строит упорядоченный список кандидатов: доступные водители
// запрошенного класса, ближайшие к точке подачи первыми
func (r *DeliveryRepository) FindCandidates(pickup geo.Location, vehicleType string, limit int) ([]models.Driver, error) {
	var drivers []models.Driver
	if err := r.db.Where("available = ? AND vehicle_type = ?", true, vehicleType).
		Preload("User").
		Find(&drivers).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске кандидатов: %w", err)
	}

	origin := pickup.Coord()
	sort.SliceStable(drivers, func(i, j int) bool {
		di := geo.DistanceKm(origin, geo.ParseLocation(drivers[i].LastLocation).Coord())
		dj := geo.DistanceKm(origin, geo.ParseLocation(drivers[j].LastLocation).Coord())
		return di < dj
	})

	if limit > 0 && len(drivers) > limit {
		drivers = drivers[:limit]
	}
	return drivers, nil
}

// SetDriverAvailability переключает флаг доступности водителя
func (r *DeliveryRepository) SetDriverAvailability(driverID uint, available bool) error {
	result := r.db.Model(&models.Driver{}).Where("id = ?", driverID).Update("available", available)
	if result.Error != nil {
		return fmt.Errorf("ошибка при обновлении доступности: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// UpdateDriverLocation сохраняет последнее известное положение водителя
func (r *DeliveryRepository) UpdateDriverLocation(driverID uint, loc geo.Location) error {
	result := r.db.Model(&models.Driver{}).Where("id = ?", driverID).
		Update("last_location", geo.FormatPoint(loc))
	if result.Error != nil {
		return fmt.Errorf("ошибка при обновлении локации водителя: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// IncrementDriverStats увеличивает счетчик выполненных доставок водителя
func (r *DeliveryRepository) IncrementDriverStats(driverID uint) error {
	return r.db.Model(&models.Driver{}).Where("id = ?", driverID).
		Update("deliveries_count", gorm.Expr("deliveries_count + 1")).Error
}

// GetOrCreatePlaceholderUser возвращает id подставного пользователя для
// заказа, чей настоящий заказчик не восстановим. Запись настоящая, поэтому
// внешний ключ доставки всегда выполняется; телефон синтезируется из токена
// заказа, так что повторные вызовы получают ту же запись
func (r *DeliveryRepository) GetOrCreatePlaceholderUser(orderToken string) (uint, error) {
	user := models.User{
		FirstName: "Client",
		LastName:  "Yatou",
		Phone:     models.PlaceholderPhone(orderToken),
		Role:      models.RoleCustomer,
	}
	if err := r.db.Where("phone = ?", user.Phone).FirstOrCreate(&user).Error; err != nil {
		return 0, fmt.Errorf("ошибка при создании подставного пользователя: %w", err)
	}
	return user.ID, nil
}
