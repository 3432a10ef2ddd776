package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// Address represents a saved shipping address of a user.
type Address struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	RecipientName string             `bson:"recipientName" json:"recipientName"`
	Phone         string             `bson:"phone" json:"phone"`
	Address       string             `bson:"address" json:"address"`
	Ward          string             `bson:"ward" json:"ward"`
	District      string             `bson:"district" json:"district"`
	City          string             `bson:"city" json:"city"`
	IsDefault     bool               `bson:"isDefault" json:"isDefault"`
}

// User represents the application user account.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email         string             `bson:"email" json:"email"`
	PasswordHash  string             `bson:"password" json:"-"`
	FullName      string             `bson:"fullName" json:"fullName"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Role          string             `bson:"role" json:"role"`
	Addresses     []Address          `bson:"addresses" json:"addresses"`
	LoyaltyPoints int                `bson:"loyaltyPoints" json:"loyaltyPoints"`
	Token         string             `bson:"token,omitempty" json:"-"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}
