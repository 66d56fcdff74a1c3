package lookup

import (
	"errors"
	"time"

	"crypto-tracker/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoPriceData         = errors.New("no price data available")
	ErrInsufficientHistory = errors.New("insufficient history")
)

// PriceAt returns the price of the newest point at or before target.
// Points are ordered newest first, as storage returns them.
// If no point is at or before target, returns the oldest available price.
// Returns ErrNoPriceData if points is empty.
func PriceAt(target time.Time, points []*domain.HistoryPoint) (float64, error) {
	if len(points) == 0 {
		return 0, ErrNoPriceData
	}

	for _, p := range points {
		if !p.Timestamp.After(target) {
			return p.Price, nil
		}
	}

	return points[len(points)-1].Price, nil
}

// ChangeOver returns the percent change between the newest price and the
// price at or before window earlier. With less history than window the
// oldest point is the base.
func ChangeOver(points []*domain.HistoryPoint, window time.Duration) (float64, error) {
	if len(points) == 0 {
		return 0, ErrNoPriceData
	}
	if len(points) < 2 {
		return 0, ErrInsufficientHistory
	}

	newest := points[0]
	base, err := PriceAt(newest.Timestamp.Add(-window), points[1:])
	if err != nil {
		return 0, err
	}
	if base == 0 {
		return 0, ErrInsufficientHistory
	}
	return (newest.Price - base) / base * 100, nil
}
