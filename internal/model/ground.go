package model

import "time"

type GroundStatus string

const (
	GroundStatusPending  GroundStatus = "PENDING"
	GroundStatusApproved GroundStatus = "APPROVED"
	GroundStatusRejected GroundStatus = "REJECTED"
)

// Ground is the bookable resource. It is created and moderated outside the
// booking core; the core only reads it.
type Ground struct {
	ID           int64        `json:"id"`
	OwnerID      int64        `json:"owner_id"`
	Name         string       `json:"name"`
	Location     string       `json:"location"`
	PricePerHour int64        `json:"price_per_hour"`
	Status       GroundStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// IsBookable reports whether reservations may be made on the ground.
func (g *Ground) IsBookable() bool {
	return g.Status == GroundStatusApproved
}

type Role string

const (
	RolePlayer Role = "player"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// User is the identity handed to the core by the identity provider.
type User struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}
