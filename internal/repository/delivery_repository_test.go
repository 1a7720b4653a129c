package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/nocodeci/yatou-sub001/internal/models"
)

// Смена статуса обязана поддерживать инвариант: driver_id заполнен
// тогда и только тогда, когда статус требует водителя
func TestStatusUpdateColumns(t *testing.T) {
	tests := []struct {
		name         string
		status       models.DeliveryStatus
		clearsDriver bool
	}{
		{"отмена сбрасывает водителя", models.DeliveryStatusCancelled, true},
		{"возврат в pending сбрасывает водителя", models.DeliveryStatusPending, true},
		{"подтверждение сохраняет водителя", models.DeliveryStatusConfirmed, false},
		{"в пути сохраняет водителя", models.DeliveryStatusInTransit, false},
		{"доставлено сохраняет водителя", models.DeliveryStatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := statusUpdateColumns(tt.status)
			assert.Equal(t, tt.status, cols["status"])

			driverID, present := cols["driver_id"]
			if tt.clearsDriver {
				// driver_id и status уходят одной записью, NULL-ом
				assert.True(t, present)
				assert.Nil(t, driverID)
			} else {
				assert.False(t, present)
			}
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	fkErr := &pq.Error{Code: "23503"}
	assert.True(t, IsForeignKeyViolation(fkErr))
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("ошибка при создании доставки: %w", fkErr)))

	assert.False(t, IsForeignKeyViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsForeignKeyViolation(errors.New("база недоступна")))
	assert.False(t, IsForeignKeyViolation(nil))
}
