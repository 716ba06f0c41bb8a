package model

import (
	"fmt"
	"math/rand"
)

const (
	// RandomModelName is the name stamped on generated test records.
	RandomModelName = "RandomChair"

	MinMaxWeight = 50
	MaxMaxWeight = 200
)

// Record is a single chair event flowing through the system.
// It is passed by value and never mutated after decoding.
type Record struct {
	Name      string
	MaxWeight int
	HasPillow bool
}

func (r Record) String() string {
	return fmt.Sprintf("{Name:%q MaxWeight:%d HasPillow:%t}", r.Name, r.MaxWeight, r.HasPillow)
}

// NewRandomRecord builds a test record with a weight in [MinMaxWeight, MaxMaxWeight]
// and a random pillow flag.
func NewRandomRecord(rng *rand.Rand) Record {
	return Record{
		Name:      RandomModelName,
		MaxWeight: MinMaxWeight + rng.Intn(MaxMaxWeight-MinMaxWeight+1),
		HasPillow: rng.Intn(2) == 1,
	}
}
