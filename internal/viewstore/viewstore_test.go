package viewstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocodeci/yatou-sub001/internal/models"
)

type fakeLister struct {
	mu         sync.Mutex
	deliveries map[uint][]models.Delivery
	calls      int
}

func (f *fakeLister) ListDeliveriesForUser(userID uint) ([]models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.deliveries[userID], nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestLoadReadsThroughAndCaches(t *testing.T) {
	lister := &fakeLister{deliveries: map[uint][]models.Delivery{
		7: {{ID: 1, UserID: 7, Status: models.DeliveryStatusConfirmed}},
	}}
	store := New(lister, nil)

	first, err := store.Load(7)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, uint(1), first[0].ID)
	assert.Equal(t, 1, lister.callCount())

	// Повторное чтение идет из памяти, репозиторий не трогается
	second, err := store.Load(7)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.callCount())
}

func TestInvalidateReloadsFromRepository(t *testing.T) {
	lister := &fakeLister{deliveries: map[uint][]models.Delivery{
		7: {{ID: 1, UserID: 7, Status: models.DeliveryStatusPending}},
	}}
	store := New(lister, nil)

	_, err := store.Load(7)
	require.NoError(t, err)

	// Состояние в базе изменилось
	lister.mu.Lock()
	lister.deliveries[7] = []models.Delivery{
		{ID: 1, UserID: 7, Status: models.DeliveryStatusConfirmed},
		{ID: 2, UserID: 7, Status: models.DeliveryStatusPending},
	}
	lister.mu.Unlock()

	store.Invalidate(7)

	refreshed, err := store.Load(7)
	require.NoError(t, err)
	require.Len(t, refreshed, 2)
	assert.Equal(t, models.DeliveryStatusConfirmed, refreshed[0].Status)
}

func TestLoadUnknownUserIsEmpty(t *testing.T) {
	store := New(&fakeLister{deliveries: map[uint][]models.Delivery{}}, nil)

	deliveries, err := store.Load(42)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}
