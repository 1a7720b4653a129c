package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocodeci/yatou-sub001/internal/geo"
	"github.com/nocodeci/yatou-sub001/internal/models"
	"github.com/nocodeci/yatou-sub001/internal/pricing"
	"github.com/nocodeci/yatou-sub001/internal/services"
)

// --- фейки ---

type fakeRepo struct {
	mu sync.Mutex

	candidates []models.Driver
	pushTokens map[uint]string // driverID -> push-токен
	userTokens map[uint]string // userID -> push-токен

	created          []*models.Delivery
	accepted         map[uint]uint // deliveryID -> driverID
	byToken          map[string]*models.Delivery
	placeholderCalls []string

	createErr error
}

func newFakeRepo(candidates ...models.Driver) *fakeRepo {
	return &fakeRepo{
		candidates: candidates,
		pushTokens: map[uint]string{},
		userTokens: map[uint]string{},
		accepted:   map[uint]uint{},
		byToken:    map[string]*models.Delivery{},
	}
}

func (f *fakeRepo) CreateDelivery(delivery *models.Delivery) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	delivery.ID = uint(len(f.created) + 1)
	f.created = append(f.created, delivery)
	if delivery.OrderToken != nil {
		f.byToken[*delivery.OrderToken] = delivery
	}
	return delivery.ID, nil
}

func (f *fakeRepo) AcceptDelivery(deliveryID, driverID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted[deliveryID] = driverID
	return nil
}

func (f *fakeRepo) DeliveryByOrderToken(token string) (*models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byToken[token], nil
}

func (f *fakeRepo) FindCandidates(pickup geo.Location, vehicleType string, limit int) ([]models.Driver, error) {
	return f.candidates, nil
}

func (f *fakeRepo) DriverByID(driverID uint) (*models.Driver, error) {
	for i := range f.candidates {
		if f.candidates[i].ID == driverID {
			return &f.candidates[i], nil
		}
	}
	return nil, errors.New("водитель не найден")
}

func (f *fakeRepo) DriverPushToken(driverID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushTokens[driverID], nil
}

func (f *fakeRepo) UserPushToken(userID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userTokens[userID], nil
}

func (f *fakeRepo) GetOrCreatePlaceholderUser(orderToken string) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeholderCalls = append(f.placeholderCalls, orderToken)
	return 999, nil
}

func (f *fakeRepo) createdDeliveries() []*models.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Delivery, len(f.created))
	copy(out, f.created)
	return out
}

type fakeNotifier struct {
	mu          sync.Mutex
	statuses    []string
	failOffers  bool
	offerTokens []string
}

func (f *fakeNotifier) SendOffer(pushToken string, offer services.OfferSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOffers {
		return errors.New("шлюз недоступен")
	}
	f.offerTokens = append(f.offerTokens, pushToken)
	return nil
}

func (f *fakeNotifier) SendStatusUpdate(pushToken string, status string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeNotifier) sentOfferTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.offerTokens))
	copy(out, f.offerTokens)
	return out
}

type localEvent struct {
	UserID  uint
	MsgType string
}

type fakeLocal struct {
	mu     sync.Mutex
	events []localEvent
}

func (f *fakeLocal) NotifyUser(userID uint, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, localEvent{UserID: userID, MsgType: msgType})
}

func (f *fakeLocal) eventsOf(msgType string) []localEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []localEvent
	for _, e := range f.events {
		if e.MsgType == msgType {
			out = append(out, e)
		}
	}
	return out
}

type fakeViews struct {
	mu          sync.Mutex
	invalidated []uint
}

func (f *fakeViews) Invalidate(userID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
}

// --- помощники ---

func testDriver(id, userID uint) models.Driver {
	return models.Driver{
		ID:           id,
		UserID:       userID,
		VehicleType:  models.VehicleEco,
		Available:    true,
		LastLocation: "(-4.026700,5.336400)",
	}
}

func testCalculator() *pricing.Calculator {
	return &pricing.Calculator{BasePrice: 500, PerKmRate: 200, BaseDeliveryFee: 1000}
}

func newTestDispatcher(repo *fakeRepo, window time.Duration) (*Dispatcher, *fakeNotifier, *fakeLocal, *fakeViews) {
	notifier := &fakeNotifier{}
	local := &fakeLocal{}
	views := &fakeViews{}
	d := New(repo, notifier, local, views, testCalculator())
	d.offerWindow = window
	return d, notifier, local, views
}

func testRequest(userID uint) Request {
	return Request{
		UserID:         userID,
		PickupAddress:  "Plateau, Abidjan",
		DropoffAddress: "Cocody, Abidjan",
		Pickup:         geo.Location{Latitude: 5.3364, Longitude: -4.0267},
		Dropoff:        geo.Location{Latitude: 5.3599, Longitude: -3.9981},
		VehicleType:    models.VehicleEco,
	}
}

// --- тесты ---

func TestDispatchValidation(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	d, _, _, _ := newTestDispatcher(repo, time.Second)

	t.Run("неизвестный класс автомобиля", func(t *testing.T) {
		req := testRequest(7)
		req.VehicleType = "helicopter"
		_, err := d.Dispatch(req)
		assert.ErrorIs(t, err, ErrInvalidVehicleType)
	})

	t.Run("координаты вне зоны обслуживания", func(t *testing.T) {
		req := testRequest(7)
		req.Pickup = geo.Location{Latitude: 25.03, Longitude: 121.56}
		_, err := d.Dispatch(req)
		assert.ErrorIs(t, err, ErrInvalidCoordinates)
	})

	t.Run("перепутанный порядок координат нормализуется", func(t *testing.T) {
		req := testRequest(7)
		// Клиент прислал [lat, lon]
		req.Pickup = geo.Location{Latitude: -4.0267, Longitude: 5.3364}
		token, err := d.Dispatch(req)
		require.NoError(t, err)
		snap, ok := d.Active(token)
		require.True(t, ok)
		assert.Equal(t, StateOffered, snap.State)
	})
}

func TestDispatchNoDrivers(t *testing.T) {
	repo := newFakeRepo() // кандидатов нет
	d, _, _, _ := newTestDispatcher(repo, time.Second)

	_, err := d.Dispatch(testRequest(7))
	assert.ErrorIs(t, err, ErrNoDriversAvailable)
}

// Три кандидата, первые два молчат, третий принимает в своем окне:
// создается ровно одна доставка с третьим водителем
func TestSequentialOffersThirdAccepts(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11), testDriver(2, 12), testDriver(3, 13))
	repo.pushTokens = map[uint]string{1: "fcm-1", 2: "fcm-2", 3: "fcm-3"}
	d, notifier, _, views := newTestDispatcher(repo, 40*time.Millisecond)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	// Предложения строго по одному: сразу после создания — только первому
	assert.Equal(t, []string{"fcm-1"}, notifier.sentOfferTokens())

	// Ждем, пока окна первых двух кандидатов истекут
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"fcm-1", "fcm-2", "fcm-3"}, notifier.sentOfferTokens())

	// Третий принимает в своем окне
	require.NoError(t, d.Respond(token, 3, true))

	created := repo.createdDeliveries()
	require.Len(t, created, 1)
	require.NotNil(t, created[0].DriverID)
	assert.Equal(t, uint(3), *created[0].DriverID)
	assert.Equal(t, models.DeliveryStatusConfirmed, created[0].Status)
	assert.Equal(t, uint(7), created[0].UserID)

	// Заказ вытеснен из таблицы, кэш заказчика инвалидирован
	_, active := d.Active(token)
	assert.False(t, active)
	assert.Contains(t, views.invalidated, uint(7))

	// Новых предложений после принятия нет
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"fcm-1", "fcm-2", "fcm-3"}, notifier.sentOfferTokens())
}

// Отказ текущего кандидата сразу продвигает очередь, не дожидаясь таймера
func TestRejectAdvancesImmediately(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11), testDriver(2, 12))
	repo.pushTokens = map[uint]string{1: "fcm-1", 2: "fcm-2"}
	d, notifier, _, _ := newTestDispatcher(repo, time.Second)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	require.NoError(t, d.Respond(token, 1, false))
	assert.Equal(t, []string{"fcm-1", "fcm-2"}, notifier.sentOfferTokens())

	snap, ok := d.Active(token)
	require.True(t, ok)
	assert.Equal(t, 1, snap.CandidateIndex)
}

// Запоздавший отказ уже вытесненного кандидата не трогает очередь
func TestStaleRejectIgnored(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11), testDriver(2, 12))
	repo.pushTokens = map[uint]string{1: "fcm-1", 2: "fcm-2"}
	d, _, _, _ := newTestDispatcher(repo, 40*time.Millisecond)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	// Окно первого истекло, заказ у второго
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, d.Respond(token, 1, false))

	snap, ok := d.Active(token)
	require.True(t, ok)
	assert.Equal(t, 1, snap.CandidateIndex)
}

// Первый принявший выигрывает, даже если его окно формально истекло,
// пока заказ еще жив
func TestTimedOutCandidateStillWins(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11), testDriver(2, 12))
	repo.pushTokens = map[uint]string{1: "fcm-1", 2: "fcm-2"}
	d, _, _, _ := newTestDispatcher(repo, 40*time.Millisecond)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond) // заказ перешел ко второму
	require.NoError(t, d.Respond(token, 1, true))

	created := repo.createdDeliveries()
	require.Len(t, created, 1)
	assert.Equal(t, uint(1), *created[0].DriverID)

	// Повторное принятие вторым кандидатом после финализации — no-op
	require.NoError(t, d.Respond(token, 2, true))
	assert.Len(t, repo.createdDeliveries(), 1)
}

// Кандидаты исчерпаны: заказ вытесняется, заказчику уходит
// "водитель не найден", доставка не создается
func TestExhaustedSurfacesNoDriver(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	repo.pushTokens = map[uint]string{1: "fcm-1"}
	d, _, local, _ := newTestDispatcher(repo, 30*time.Millisecond)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, active := d.Active(token)
	assert.False(t, active)
	assert.Empty(t, repo.createdDeliveries())

	events := local.eventsOf("NO_DRIVER_FOUND")
	require.Len(t, events, 1)
	assert.Equal(t, uint(7), events[0].UserID)
}

// Позднее принятие заказа посылки: pending-строка, созданная клиентским
// потоком и привязанная к токену, подтверждается, а не принимается за
// уже обработанную доставку
func TestLateAcceptCompletesPendingDelivery(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	repo.pushTokens = map[uint]string{1: "fcm-1"}
	d, _, local, views := newTestDispatcher(repo, 30*time.Millisecond)

	req := testRequest(7)
	req.DeliveryID = 55
	req.Price = 2000
	req.OrderToken = "заранее-выпущенный-токен"
	repo.byToken[req.OrderToken] = &models.Delivery{
		ID:     55,
		UserID: 7,
		Status: models.DeliveryStatusPending,
	}

	token, err := d.Dispatch(req)
	require.NoError(t, err)
	assert.Equal(t, req.OrderToken, token)

	time.Sleep(60 * time.Millisecond) // кандидаты исчерпаны, заказ вытеснен

	require.NoError(t, d.Respond(token, 1, true))

	// Водитель дописан в существующую строку, дубль не создан
	assert.Equal(t, uint(1), repo.accepted[55])
	assert.Empty(t, repo.createdDeliveries())
	assert.Empty(t, repo.placeholderCalls)
	assert.Contains(t, views.invalidated, uint(7))

	events := local.eventsOf("DELIVERY_STATUS_UPDATE")
	require.NotEmpty(t, events)

	// Повторное позднее принятие — no-op: водитель уже назначен
	repo.mu.Lock()
	driverID := uint(1)
	repo.byToken[token].DriverID = &driverID
	repo.byToken[token].Status = models.DeliveryStatusConfirmed
	repo.mu.Unlock()
	require.NoError(t, d.Respond(token, 1, true))
	assert.Empty(t, repo.createdDeliveries())
}

// Позднее принятие после вытеснения: доставка все равно создается —
// через подставного пользователя, без нарушения внешнего ключа
func TestLateAcceptAfterEviction(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	repo.pushTokens = map[uint]string{1: "fcm-1"}
	d, _, _, views := newTestDispatcher(repo, 30*time.Millisecond)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond) // кандидаты исчерпаны, заказ вытеснен

	require.NoError(t, d.Respond(token, 1, true))

	created := repo.createdDeliveries()
	require.Len(t, created, 1)
	assert.Equal(t, uint(999), created[0].UserID) // подставной пользователь
	assert.Equal(t, uint(1), *created[0].DriverID)
	assert.Equal(t, models.DeliveryStatusConfirmed, created[0].Status)
	assert.Equal(t, models.VehicleEco, created[0].VehicleType)
	assert.Equal(t, []string{token}, repo.placeholderCalls)
	assert.Contains(t, views.invalidated, uint(999))

	// Повторное позднее принятие не создает вторую запись
	require.NoError(t, d.Respond(token, 1, true))
	assert.Len(t, repo.createdDeliveries(), 1)
}

// Поздний отказ по несуществующему заказу — тихий no-op
func TestLateRejectIsNoop(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	d, _, _, _ := newTestDispatcher(repo, time.Second)

	require.NoError(t, d.Respond("нет-такого-токена", 1, false))
	assert.Empty(t, repo.createdDeliveries())
}

// Водитель вне списка кандидатов не может ответить на заказ
func TestRespondNotACandidate(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	repo.pushTokens = map[uint]string{1: "fcm-1"}
	d, _, _, _ := newTestDispatcher(repo, time.Second)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	err = d.Respond(token, 42, true)
	assert.ErrorIs(t, err, ErrNotACandidate)
}

// Отказ push-шлюза не валит заказ: предложение уходит локальным каналом
func TestOfferFallsBackToLocalChannel(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	// push-токена у водителя нет
	d, notifier, local, _ := newTestDispatcher(repo, time.Second)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	assert.Empty(t, notifier.sentOfferTokens())
	offers := local.eventsOf("NEW_OFFER")
	require.Len(t, offers, 1)
	assert.Equal(t, uint(11), offers[0].UserID)

	// Заказ при этом живой и принимаемый
	require.NoError(t, d.Respond(token, 1, true))
	assert.Len(t, repo.createdDeliveries(), 1)
}

// Предсозданная клиентским потоком доставка дописывается, а не дублируется
func TestFinalizePreCreatedDelivery(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	repo.pushTokens = map[uint]string{1: "fcm-1"}
	d, _, _, _ := newTestDispatcher(repo, time.Second)

	req := testRequest(7)
	req.DeliveryID = 55
	req.Price = 2000

	token, err := d.Dispatch(req)
	require.NoError(t, err)

	require.NoError(t, d.Respond(token, 1, true))

	assert.Empty(t, repo.createdDeliveries()) // новая запись не создается
	assert.Equal(t, uint(1), repo.accepted[55])
}

// Ошибка записи в базу отдается вызывающему, заказ не выбрасывается
func TestPersistenceErrorSurfaced(t *testing.T) {
	repo := newFakeRepo(testDriver(1, 11))
	repo.pushTokens = map[uint]string{1: "fcm-1"}
	repo.createErr = errors.New("база недоступна")
	d, _, _, _ := newTestDispatcher(repo, time.Second)

	token, err := d.Dispatch(testRequest(7))
	require.NoError(t, err)

	err = d.Respond(token, 1, true)
	require.Error(t, err)

	// Заказ остался активным, водитель может повторить
	_, active := d.Active(token)
	assert.True(t, active)

	repo.mu.Lock()
	repo.createErr = nil
	repo.mu.Unlock()
	require.NoError(t, d.Respond(token, 1, true))
	assert.Len(t, repo.createdDeliveries(), 1)
}
