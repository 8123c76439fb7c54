package models

import (
	"time"

	"github.com/lib/pq"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

const PlanFree = "free"

type User struct {
	ID           string `gorm:"column:id;type:uuid;primaryKey" json:"uid"`
	Name         string `gorm:"column:name;type:text;not null" json:"name"`
	Email        string `gorm:"column:email;type:text;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;type:text;not null" json:"-"`

	Role            UserRole       `gorm:"column:role;type:text;default:user" json:"role"`
	Plan            string         `gorm:"column:plan;type:text;default:free" json:"plan"`
	TotalInterviews int            `gorm:"column:total_interviews;type:integer;default:0" json:"totalInterviews"`
	TechStacks      pq.StringArray `gorm:"column:tech_stacks;type:text[]" json:"techStacks"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"createdAt"`
}

func (User) TableName() string { return "users" }
