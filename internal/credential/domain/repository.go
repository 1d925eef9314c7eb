package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cred *Credential) error
	Update(ctx context.Context, db *gorm.DB, cred *Credential) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Credential, error)
	FindBySecretHash(ctx context.Context, db *gorm.DB, hash string) (*Credential, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Credential, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
