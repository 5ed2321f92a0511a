package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Owner struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email          string    `gorm:"type:text;uniqueIndex;not null"`
	FirstName      string    `gorm:"type:text"`
	CredentialHash string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt      time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type ResetToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	TokenHash string     `gorm:"type:text;uniqueIndex;not null"`
	ExpiresAt time.Time  `gorm:"type:timestamptz;not null"`
	UsedAt    *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Owner     Owner      `gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type NotificationJob struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Kind           string            `gorm:"type:text;not null"`
	Recipient      string            `gorm:"type:text;not null"`
	Subject        string            `gorm:"type:text;not null"`
	TemplateName   string            `gorm:"type:text;not null"`
	Params         datatypes.JSONMap `gorm:"type:jsonb"`
	State          string            `gorm:"type:text;not null;index"`
	AttemptCount   int               `gorm:"type:int;not null;default:0"`
	MaxAttempts    int               `gorm:"type:int;not null;default:5"`
	RunAt          time.Time         `gorm:"type:timestamptz;not null;index"`
	LockedBy       string            `gorm:"type:text;not null;default:''"`
	LeaseExpiresAt *time.Time        `gorm:"type:timestamptz"`
	LastError      string            `gorm:"type:text;not null;default:''"`
	EnqueuedAt     time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Owner{},
		&ResetToken{},
		&NotificationJob{},
	); err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().CreateConstraint(&ResetToken{}, "Owner")
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&NotificationJob{},
		&ResetToken{},
		&Owner{},
	)
}
