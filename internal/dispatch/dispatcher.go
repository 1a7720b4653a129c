package dispatch

import (
	"errors"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nocodeci/yatou-sub001/internal/geo"
	"github.com/nocodeci/yatou-sub001/internal/middleware"
	"github.com/nocodeci/yatou-sub001/internal/models"
	"github.com/nocodeci/yatou-sub001/internal/pricing"
	"github.com/nocodeci/yatou-sub001/internal/services"
	"github.com/nocodeci/yatou-sub001/internal/websocket"
)

var (
	ErrInvalidCoordinates = errors.New("координаты вне зоны обслуживания")
	ErrInvalidVehicleType = errors.New("неизвестный класс автомобиля")
	ErrNoDriversAvailable = errors.New("нет доступных водителей")
	ErrNotACandidate      = errors.New("водитель не входит в список кандидатов этого заказа")
)

// Repository — операции хранилища, нужные диспетчеру
type Repository interface {
	CreateDelivery(delivery *models.Delivery) (uint, error)
	AcceptDelivery(deliveryID, driverID uint) error
	DeliveryByOrderToken(token string) (*models.Delivery, error)
	FindCandidates(pickup geo.Location, vehicleType string, limit int) ([]models.Driver, error)
	DriverByID(driverID uint) (*models.Driver, error)
	DriverPushToken(driverID uint) (string, error)
	UserPushToken(userID uint) (string, error)
	GetOrCreatePlaceholderUser(orderToken string) (uint, error)
}

// Notifier — внешний шлюз push-уведомлений
type Notifier interface {
	SendOffer(pushToken string, offer services.OfferSummary) error
	SendStatusUpdate(pushToken string, status string, data map[string]interface{}) error
}

// LocalNotifier — запасной локальный канал (WebSocket), когда push
// недоставим. Отказ шлюза никогда не означает отказ заказа
type LocalNotifier interface {
	NotifyUser(userID uint, msgType string, payload interface{})
}

// ViewRefresher инвалидирует кэш доставок пользователя после завершения
type ViewRefresher interface {
	Invalidate(userID uint)
}

// Request — запрос автомобиля от клиента
type Request struct {
	UserID         uint
	PickupAddress  string
	DropoffAddress string
	Pickup         geo.Location
	Dropoff        geo.Location
	VehicleType    string

	// DeliveryID передается, когда запись доставки уже создана
	// клиентским потоком посылок
	DeliveryID uint
	// Price задается клиентским потоком; при нуле считается по расстоянию
	Price float64
	// OrderToken задается, когда токен выпущен заранее и уже привязан
	// к записи доставки; при пустом значении выпускается новый
	OrderToken string
}

// Dispatcher подбирает водителя для заказа: предлагает заказ кандидатам
// строго по одному, держит таймер на каждое предложение и сводит итог
// в запись доставки. Таблица активных заказов принадлежит только ему —
// снаружи ее никто не трогает
type Dispatcher struct {
	repo     Repository
	notifier Notifier
	local    LocalNotifier
	views    ViewRefresher
	calc     *pricing.Calculator

	offerWindow   time.Duration
	maxCandidates int

	mu     sync.Mutex
	orders map[string]*Order
}

func New(repo Repository, notifier Notifier, local LocalNotifier, views ViewRefresher, calc *pricing.Calculator) *Dispatcher {
	window := 30
	if raw := os.Getenv("DISPATCH_OFFER_TIMEOUT"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 {
			window = val
		}
	}
	maxCandidates := 5
	if raw := os.Getenv("DISPATCH_MAX_CANDIDATES"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 {
			maxCandidates = val
		}
	}

	return &Dispatcher{
		repo:          repo,
		notifier:      notifier,
		local:         local,
		views:         views,
		calc:          calc,
		offerWindow:   time.Duration(window) * time.Second,
		maxCandidates: maxCandidates,
		orders:        make(map[string]*Order),
	}
}

// Dispatch создает заказ и предлагает его первому кандидату.
// Валидация происходит до любых сетевых вызовов
func (d *Dispatcher) Dispatch(req Request) (string, error) {
	if !models.ValidVehicleType(req.VehicleType) {
		return "", ErrInvalidVehicleType
	}

	pickup := geo.Normalize(req.Pickup.Coord())
	dropoff := geo.Normalize(req.Dropoff.Coord())
	if !geo.Validate(pickup) || !geo.Validate(dropoff) {
		return "", ErrInvalidCoordinates
	}

	distanceKm := geo.RoundKm(geo.DistanceKm(pickup, dropoff))
	price := req.Price
	if price == 0 {
		price = d.calc.PriceFor(distanceKm, req.VehicleType)
	}

	drivers, err := d.repo.FindCandidates(pickup.ToLocation(), req.VehicleType, d.maxCandidates)
	if err != nil {
		return "", err
	}
	if len(drivers) == 0 {
		return "", ErrNoDriversAvailable
	}

	candidates := make([]Candidate, 0, len(drivers))
	for _, driver := range drivers {
		candidates = append(candidates, Candidate{DriverID: driver.ID, UserID: driver.UserID})
	}

	token := req.OrderToken
	if token == "" {
		token = uuid.NewString()
	}

	order := &Order{
		Token:          token,
		UserID:         req.UserID,
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		Pickup:         pickup.ToLocation(),
		Dropoff:        dropoff.ToLocation(),
		VehicleType:    req.VehicleType,
		Price:          price,
		DistanceKm:     distanceKm,
		CreatedAt:      time.Now(),
		DeliveryID:     req.DeliveryID,
		candidates:     candidates,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[order.Token] = order
	d.offer(order)

	return order.Token, nil
}

// Respond обрабатывает ответ водителя на предложение. Поздний ответ по
// уже вытесненному заказу — признанный, не ошибочный путь: принятие
// достраивается из минимально доступных данных, чтобы не потерять
// принятую работу
func (d *Dispatcher) Respond(token string, driverID uint, accepted bool) error {
	d.mu.Lock()
	order, ok := d.orders[token]
	if !ok {
		d.mu.Unlock()
		if !accepted {
			return nil
		}
		return d.lateAccept(token, driverID)
	}

	pos := order.candidateIndex(driverID)
	if pos == -1 {
		d.mu.Unlock()
		return ErrNotACandidate
	}

	if order.state == StateAccepted {
		// Заказ уже принят другим кандидатом, повторные ответы — no-op
		d.mu.Unlock()
		return nil
	}

	if !accepted {
		// Отказ продвигает очередь только от текущего кандидата;
		// запоздавшие отказы уже вытесненных кандидатов игнорируются
		if pos == order.idx {
			d.advance(order)
		}
		d.mu.Unlock()
		return nil
	}

	// Принимает первым — выигрывает, даже если его окно формально
	// истекло, а заказ еще жив на более позднем кандидате
	err := d.finalize(order, order.candidates[pos])
	d.mu.Unlock()
	return err
}

// Active возвращает снимок активного заказа
func (d *Dispatcher) Active(token string) (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[token]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Token:          order.Token,
		State:          order.state,
		CandidateIndex: order.idx,
		CandidateCount: len(order.candidates),
		Price:          order.Price,
		VehicleType:    order.VehicleType,
		CreatedAt:      order.CreatedAt,
	}, true
}

// Shutdown останавливает все таймеры. Активные заказы теряются —
// это допустимо, поздние принятия подхватит запасной путь
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, order := range d.orders {
		if order.timer != nil {
			order.timer.Stop()
		}
	}
	d.orders = make(map[string]*Order)
}

// offer отправляет предложение текущему кандидату и взводит таймер.
// Вызывается только под мьютексом
func (d *Dispatcher) offer(order *Order) {
	cand := &order.candidates[order.idx]

	summary := services.OfferSummary{
		OrderToken:     order.Token,
		PickupAddress:  order.PickupAddress,
		DropoffAddress: order.DropoffAddress,
		VehicleType:    order.VehicleType,
		Price:          order.Price,
		DistanceKm:     order.DistanceKm,
	}

	usedFallback := false
	pushToken, err := d.repo.DriverPushToken(cand.DriverID)
	if err == nil && pushToken != "" {
		err = d.notifier.SendOffer(pushToken, summary)
	} else if err == nil {
		err = services.ErrNoPushToken
	}
	if err != nil {
		// Отказ шлюза не валит заказ: предложение уходит локальным каналом
		log.Printf("Dispatcher: push недоставим водителю %d (%v), используем локальный канал", cand.DriverID, err)
		d.local.NotifyUser(cand.UserID, websocket.NewOfferType, summary)
		usedFallback = true
	}
	middleware.TrackOffer(usedFallback)

	cand.OfferedAt = time.Now()
	order.state = StateOffered

	idx := order.idx
	order.timer = time.AfterFunc(d.offerWindow, func() {
		d.onTimeout(order.Token, idx)
	})
}

// onTimeout срабатывает по истечении окна предложения. Запоздавшие
// таймеры отсеиваются проверкой индекса кандидата
func (d *Dispatcher) onTimeout(token string, idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[token]
	if !ok || order.state != StateOffered || order.idx != idx {
		return
	}
	d.advance(order)
}

// advance переходит к следующему кандидату либо завершает заказ без
// водителя. Вызывается только под мьютексом
func (d *Dispatcher) advance(order *Order) {
	if order.timer != nil {
		order.timer.Stop()
	}

	if order.idx+1 < len(order.candidates) {
		order.idx++
		d.offer(order)
		return
	}

	// Кандидаты исчерпаны
	delete(d.orders, order.Token)
	middleware.TrackOrderOutcome("exhausted")
	log.Printf("Dispatcher: заказ %s — водитель не найден (%d кандидатов)", order.Token, len(order.candidates))

	d.local.NotifyUser(order.UserID, websocket.NoDriverFoundType, map[string]interface{}{
		"orderToken": order.Token,
	})
	if pushToken, err := d.repo.UserPushToken(order.UserID); err == nil && pushToken != "" {
		if err := d.notifier.SendStatusUpdate(pushToken, "no_driver", map[string]interface{}{
			"orderToken": order.Token,
		}); err != nil {
			log.Printf("Dispatcher: push о ненайденном водителе не доставлен: %v", err)
		}
	}
}

// finalize фиксирует принятие: останавливает таймер, записывает доставку,
// вытесняет заказ из таблицы и обновляет кэш заказчика.
// Вызывается только под мьютексом
func (d *Dispatcher) finalize(order *Order, cand Candidate) error {
	if order.timer != nil {
		order.timer.Stop()
	}
	order.state = StateAccepted

	deliveryID := order.DeliveryID
	if deliveryID != 0 {
		if err := d.repo.AcceptDelivery(deliveryID, cand.DriverID); err != nil {
			// Ошибку записи отдаем вызывающему, заказ не выбрасываем:
			// водитель может повторить принятие
			order.state = StateOffered
			idx := order.idx
			order.timer = time.AfterFunc(d.offerWindow, func() {
				d.onTimeout(order.Token, idx)
			})
			return err
		}
	} else {
		token := order.Token
		driverID := cand.DriverID
		delivery := &models.Delivery{
			OrderToken:      &token,
			UserID:          order.UserID,
			DriverID:        &driverID,
			PickupAddress:   order.PickupAddress,
			DropoffAddress:  order.DropoffAddress,
			PickupLocation:  geo.FormatPoint(order.Pickup),
			DropoffLocation: geo.FormatPoint(order.Dropoff),
			VehicleType:     order.VehicleType,
			Price:           order.Price,
			Status:          models.DeliveryStatusConfirmed,
		}
		id, err := d.repo.CreateDelivery(delivery)
		if err != nil {
			order.state = StateOffered
			idx := order.idx
			order.timer = time.AfterFunc(d.offerWindow, func() {
				d.onTimeout(order.Token, idx)
			})
			return err
		}
		deliveryID = id
	}

	delete(d.orders, order.Token)
	middleware.TrackOrderOutcome("accepted")
	if !cand.OfferedAt.IsZero() {
		middleware.TrackOfferResponse(time.Since(cand.OfferedAt))
	}
	log.Printf("Dispatcher: заказ %s принят водителем %d", order.Token, cand.DriverID)

	d.views.Invalidate(order.UserID)

	d.local.NotifyUser(order.UserID, websocket.DeliveryStatusUpdateType, map[string]interface{}{
		"delivery_id": deliveryID,
		"orderToken":  order.Token,
		"status":      string(models.DeliveryStatusConfirmed),
		"driver_id":   cand.DriverID,
	})
	if pushToken, err := d.repo.UserPushToken(order.UserID); err == nil && pushToken != "" {
		if err := d.notifier.SendStatusUpdate(pushToken, string(models.DeliveryStatusConfirmed), map[string]interface{}{
			"delivery_id": deliveryID,
		}); err != nil {
			log.Printf("Dispatcher: push о подтверждении не доставлен: %v", err)
		}
	}

	return nil
}

// lateAccept достраивает принятие для заказа, которого уже нет в таблице:
// окно истекло и очередь ушла дальше, все кандидаты были исчерпаны или
// процесс перезапускался. Привязанная к токену pending-запись
// подтверждается на месте; когда записи нет, она создается по запасному
// пути через подставного пользователя, поэтому нарушение внешнего ключа
// невозможно
func (d *Dispatcher) lateAccept(token string, driverID uint) error {
	existing, err := d.repo.DeliveryByOrderToken(token)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.DriverID != nil || existing.Status != models.DeliveryStatusPending {
			// Водитель уже назначен либо доставка ушла дальше по жизненному
			// циклу — повторное принятие ничего не меняет
			log.Printf("Dispatcher: повторное принятие заказа %s, доставка %d уже обработана", token, existing.ID)
			return nil
		}

		// Строка была создана заранее клиентским потоком посылок и ждет
		// водителя: позднее принятие дописывает его, а не создает дубль
		driver, err := d.repo.DriverByID(driverID)
		if err != nil {
			return err
		}
		if err := d.repo.AcceptDelivery(existing.ID, driverID); err != nil {
			return err
		}

		middleware.TrackOrderOutcome("late_accepted")
		log.Printf("Dispatcher: позднее принятие заказа %s водителем %d, pending-доставка %d подтверждена", token, driverID, existing.ID)

		d.views.Invalidate(existing.UserID)
		d.local.NotifyUser(existing.UserID, websocket.DeliveryStatusUpdateType, map[string]interface{}{
			"delivery_id": existing.ID,
			"orderToken":  token,
			"status":      string(models.DeliveryStatusConfirmed),
			"driver_id":   driverID,
		})
		d.local.NotifyUser(driver.UserID, websocket.DeliveryStatusUpdateType, map[string]interface{}{
			"delivery_id": existing.ID,
			"orderToken":  token,
			"status":      string(models.DeliveryStatusConfirmed),
		})
		return nil
	}

	driver, err := d.repo.DriverByID(driverID)
	if err != nil {
		return err
	}

	userID, err := d.repo.GetOrCreatePlaceholderUser(token)
	if err != nil {
		return err
	}

	orderToken := token
	pickup := geo.DefaultPickupLocation
	delivery := &models.Delivery{
		OrderToken:      &orderToken,
		UserID:          userID,
		DriverID:        &driver.ID,
		PickupAddress:   "Adresse non conservée",
		DropoffAddress:  "Adresse non conservée",
		PickupLocation:  geo.FormatPoint(pickup),
		DropoffLocation: geo.FormatPoint(pickup),
		VehicleType:     driver.VehicleType,
		Price:           d.calc.ForDistance(0).StandardPrice,
		Status:          models.DeliveryStatusConfirmed,
	}

	deliveryID, err := d.repo.CreateDelivery(delivery)
	if err != nil {
		return err
	}

	middleware.TrackOrderOutcome("late_accepted")
	log.Printf("Dispatcher: позднее принятие заказа %s водителем %d, доставка %d создана по запасному пути", token, driverID, deliveryID)

	d.views.Invalidate(userID)
	d.local.NotifyUser(driver.UserID, websocket.DeliveryStatusUpdateType, map[string]interface{}{
		"delivery_id": deliveryID,
		"orderToken":  token,
		"status":      string(models.DeliveryStatusConfirmed),
	})

	return nil
}
