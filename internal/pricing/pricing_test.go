package pricing

import "testing"

func newTestCalculator() *Calculator {
	return &Calculator{
		BasePrice:       500,
		PerKmRate:       200,
		BaseDeliveryFee: 1000,
	}
}

func TestForDistance(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name         string
		distanceKm   float64
		wantStandard float64
		wantPremium  float64
		wantDuration float64
	}{
		{
			name:         "нулевое расстояние — базовая цена",
			distanceKm:   0,
			wantStandard: 500,
			wantPremium:  750,
			wantDuration: 0,
		},
		{
			name:         "10 километров",
			distanceKm:   10,
			wantStandard: 2500,
			wantPremium:  3750,
			wantDuration: 20,
		},
		{
			name:         "дробное расстояние",
			distanceKm:   3.7,
			wantStandard: 1240,
			wantPremium:  1860,
			wantDuration: 7.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.ForDistance(tt.distanceKm)
			if got.StandardPrice != tt.wantStandard {
				t.Errorf("StandardPrice = %f, want %f", got.StandardPrice, tt.wantStandard)
			}
			if got.PremiumPrice != tt.wantPremium {
				t.Errorf("PremiumPrice = %f, want %f", got.PremiumPrice, tt.wantPremium)
			}
			if got.DurationMinutes != tt.wantDuration {
				t.Errorf("DurationMinutes = %f, want %f", got.DurationMinutes, tt.wantDuration)
			}
		})
	}
}

func TestPriceFor(t *testing.T) {
	calc := newTestCalculator()

	if got := calc.PriceFor(10, "eco"); got != 2500 {
		t.Errorf("PriceFor(10, eco) = %f, want 2500", got)
	}
	if got := calc.PriceFor(10, "confort"); got != 3750 {
		t.Errorf("PriceFor(10, confort) = %f, want 3750", got)
	}
}

func TestForPackage(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name         string
		productPrice float64
		quantity     int
		wantValue    float64
		wantFee      float64
		wantTotal    float64
	}{
		{
			name:         "дешевый товар — базовая комиссия",
			productPrice: 5000,
			quantity:     2,
			wantValue:    10000,
			wantFee:      1000,
			wantTotal:    2000,
		},
		{
			name:         "дорогой товар — процент от стоимости",
			productPrice: 50000,
			quantity:     1,
			wantValue:    50000,
			wantFee:      2500,
			wantTotal:    3500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.ForPackage(tt.productPrice, tt.quantity)
			if got.TotalItemValue != tt.wantValue {
				t.Errorf("TotalItemValue = %f, want %f", got.TotalItemValue, tt.wantValue)
			}
			if got.DeliveryFee != tt.wantFee {
				t.Errorf("DeliveryFee = %f, want %f", got.DeliveryFee, tt.wantFee)
			}
			if got.TotalPrice != tt.wantTotal {
				t.Errorf("TotalPrice = %f, want %f", got.TotalPrice, tt.wantTotal)
			}
		})
	}
}
