package domain

import "time"

type Inventory struct {
	ProductID string
	Available int
	Version   int // optimistic locking
	UpdatedAt time.Time
}
