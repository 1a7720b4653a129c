package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Границы зоны обслуживания (Кот-д'Ивуар)
const (
	MinLongitude = -8.5
	MaxLongitude = -2.0
	MinLatitude  = 4.0
	MaxLatitude  = 11.0
)

// Радиус Земли в километрах для формулы гаверсинусов
const earthRadiusKm = 6371.0

// Coordinate представляет пару координат в порядке [долгота, широта]
type Coordinate [2]float64

// Location представляет координаты в формате клиентского приложения
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// DefaultPickupLocation — точка по умолчанию (Плато, Абиджан), используется
// когда настоящая точка подачи не сохранилась (позднее принятие заказа)
var DefaultPickupLocation = Location{Latitude: 5.3364, Longitude: -4.0267}

func inLongitudeBand(v float64) bool {
	return v >= MinLongitude && v <= MaxLongitude
}

func inLatitudeBand(v float64) bool {
	return v >= MinLatitude && v <= MaxLatitude
}

// Normalize приводит пару координат к порядку [долгота, широта].
// Если пара уже в правильном порядке — возвращается без изменений,
// если перепутана — элементы меняются местами. Пара вне обеих зон
// возвращается как есть: угадывать дальше двух поддерживаемых порядков
// мы не пытаемся.
func Normalize(c Coordinate) Coordinate {
	if inLongitudeBand(c[0]) && inLatitudeBand(c[1]) {
		return c
	}
	if inLatitudeBand(c[0]) && inLongitudeBand(c[1]) {
		return Coordinate{c[1], c[0]}
	}
	return c
}

// Validate проверяет, что пара координат попадает в зону обслуживания
// в порядке [lon,lat] либо в перепутанном порядке [lat,lon]
func Validate(c Coordinate) bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if inLongitudeBand(c[0]) && inLatitudeBand(c[1]) {
		return true
	}
	return inLatitudeBand(c[0]) && inLongitudeBand(c[1])
}

// DistanceKm возвращает расстояние между двумя точками [lon,lat]
// по формуле гаверсинусов
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a[1] * math.Pi / 180.0
	lat2 := b[1] * math.Pi / 180.0
	dLat := (b[1] - a[1]) * math.Pi / 180.0
	dLon := (b[0] - a[0]) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// RoundKm округляет расстояние до одного знака после запятой
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

// FormatPoint форматирует координаты в нативный синтаксис точки Postgres:
// "(долгота,широта)". JSON-объекты база не принимает
func FormatPoint(loc Location) string {
	return fmt.Sprintf("(%f,%f)", loc.Longitude, loc.Latitude)
}

// ParseLocation парсит координаты из строки формата "(lon,lat)"
func ParseLocation(point string) Location {
	point = strings.Trim(point, "()")
	parts := strings.Split(point, ",")
	if len(parts) != 2 {
		return Location{}
	}
	lng, _ := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, _ := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	return Location{Latitude: lat, Longitude: lng}
}

// Coord переводит Location в пару [lon,lat]
func (l Location) Coord() Coordinate {
	return Coordinate{l.Longitude, l.Latitude}
}

// ToLocation переводит пару [lon,lat] в Location
func (c Coordinate) ToLocation() Location {
	return Location{Latitude: c[1], Longitude: c[0]}
}
