package geo

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Coordinate
		want Coordinate
	}{
		{
			name: "уже в порядке lon,lat",
			in:   Coordinate{-4.0267, 5.3364},
			want: Coordinate{-4.0267, 5.3364},
		},
		{
			name: "перепутанный порядок lat,lon",
			in:   Coordinate{5.3364, -4.0267},
			want: Coordinate{-4.0267, 5.3364},
		},
		{
			name: "север страны, перепутанный порядок",
			in:   Coordinate{9.45, -5.63},
			want: Coordinate{-5.63, 9.45},
		},
		{
			name: "вне обеих зон — возвращается без изменений",
			in:   Coordinate{121.56, 25.03},
			want: Coordinate{121.56, 25.03},
		},
		{
			name: "нулевая пара — возвращается без изменений",
			in:   Coordinate{0, 0},
			want: Coordinate{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// Normalize должна быть идемпотентной для любых валидных координат
func TestNormalizeIdempotent(t *testing.T) {
	coords := []Coordinate{
		{-4.0267, 5.3364},
		{5.3364, -4.0267},
		{-8.5, 4.0},
		{-2.0, 11.0},
		{121.56, 25.03},
	}
	for _, c := range coords {
		once := Normalize(c)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize не идемпотентна для %v: %v != %v", c, once, twice)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Coordinate
		want bool
	}{
		{"Абиджан lon,lat", Coordinate{-4.0267, 5.3364}, true},
		{"Абиджан lat,lon", Coordinate{5.3364, -4.0267}, true},
		{"угол зоны", Coordinate{-8.5, 4.0}, true},
		{"вне зоны", Coordinate{121.56, 25.03}, false},
		{"нулевые координаты", Coordinate{0, 0}, false},
		{"NaN", Coordinate{math.NaN(), 5.3}, false},
		{"бесконечность", Coordinate{-4.0, math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.in); got != tt.want {
				t.Errorf("Validate(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDistanceKm(t *testing.T) {
	abidjan := Coordinate{-4.0267, 5.3364}
	yamoussoukro := Coordinate{-5.2767, 6.8276}

	if d := DistanceKm(abidjan, abidjan); d != 0 {
		t.Errorf("расстояние от точки до самой себя = %f, want 0", d)
	}

	// Абиджан — Ямусукро примерно 215 км по прямой
	d := DistanceKm(abidjan, yamoussoukro)
	if math.Abs(d-215) > 10 {
		t.Errorf("DistanceKm(Абиджан, Ямусукро) = %f, want ~215", d)
	}

	// Симметрия
	if d2 := DistanceKm(yamoussoukro, abidjan); math.Abs(d-d2) > 1e-9 {
		t.Errorf("расстояние несимметрично: %f vs %f", d, d2)
	}
}

func TestRoundKm(t *testing.T) {
	if got := RoundKm(10.04); got != 10.0 {
		t.Errorf("RoundKm(10.04) = %f, want 10.0", got)
	}
	if got := RoundKm(10.05); got != 10.1 {
		t.Errorf("RoundKm(10.05) = %f, want 10.1", got)
	}
}

func TestFormatAndParsePoint(t *testing.T) {
	loc := Location{Latitude: 5.3364, Longitude: -4.0267}
	point := FormatPoint(loc)

	if point != "(-4.026700,5.336400)" {
		t.Errorf("FormatPoint = %q", point)
	}

	parsed := ParseLocation(point)
	if math.Abs(parsed.Latitude-loc.Latitude) > 1e-6 || math.Abs(parsed.Longitude-loc.Longitude) > 1e-6 {
		t.Errorf("ParseLocation(%q) = %+v, want %+v", point, parsed, loc)
	}
}

func TestParseLocationInvalid(t *testing.T) {
	if got := ParseLocation("мусор"); got != (Location{}) {
		t.Errorf("ParseLocation для мусора = %+v, want пустую Location", got)
	}
}
