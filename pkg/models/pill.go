package models

import "time"

// PillType distinguishes countable solids from liquids. Liquids dispense as
// a single measured unit, so queue items for them always carry quantity 1.
type PillType string

const (
	PillSolid  PillType = "solid"
	PillLiquid PillType = "liquid"
)

// Pill is reference/stock data consulted at queue creation. The dispatch
// core treats it as opaque.
type Pill struct {
	ID     int64    `db:"id" json:"id"`
	Name   string   `db:"name" json:"name"`
	Type   PillType `db:"type" json:"type"`
	Amount int      `db:"amount" json:"amount"`
}

// Patient is the destination of a queue; Room is the dispensing target the
// queue inherits at creation.
type Patient struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Room      int       `db:"room" json:"room"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
