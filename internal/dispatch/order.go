package dispatch

import (
	"time"

	"github.com/nocodeci/yatou-sub001/internal/geo"
)

// State — состояние активного заказа
type State string

const (
	StateOffered  State = "offered"  // Предложен текущему кандидату
	StateAccepted State = "accepted" // Принят, идет запись в базу
)

// Candidate — водитель, которому заказ предлагается по очереди
type Candidate struct {
	DriverID  uint
	UserID    uint
	OfferedAt time.Time
}

// Order — эфемерный заказ в процессе подбора водителя. Живет только в
// памяти диспетчера: при принятии, исчерпании кандидатов или рестарте
// процесса запись исчезает, и поздние ответы обрабатываются запасным
// путем
type Order struct {
	Token          string
	UserID         uint
	PickupAddress  string
	DropoffAddress string
	Pickup         geo.Location
	Dropoff        geo.Location
	VehicleType    string
	Price          float64
	DistanceKm     float64
	CreatedAt      time.Time

	// DeliveryID заполнен, если запись доставки создана заранее
	// (клиентский поток посылок); тогда принятие лишь дописывает водителя
	DeliveryID uint

	candidates []Candidate
	idx        int
	state      State
	timer      *time.Timer
}

// CurrentCandidate возвращает кандидата, которому заказ предложен сейчас
func (o *Order) CurrentCandidate() Candidate {
	return o.candidates[o.idx]
}

// candidateIndex ищет водителя в списке кандидатов; -1, если его там нет
func (o *Order) candidateIndex(driverID uint) int {
	for i, c := range o.candidates {
		if c.DriverID == driverID {
			return i
		}
	}
	return -1
}

// Snapshot — состояние заказа для чтения снаружи диспетчера
type Snapshot struct {
	Token          string    `json:"token"`
	State          State     `json:"state"`
	CandidateIndex int       `json:"candidateIndex"`
	CandidateCount int       `json:"candidateCount"`
	Price          float64   `json:"price"`
	VehicleType    string    `json:"vehicleType"`
	CreatedAt      time.Time `json:"created_at"`
}
