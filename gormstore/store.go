// Package gormstore implements the engine's admin-user store on GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/crestline-motors/adminauth"
)

// AdminUser is the persisted admin row.
type AdminUser struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:64"`
	// Permissions is a comma-separated list; admin permission sets are
	// small and only ever read whole.
	Permissions string `gorm:"size:1024"`
	Active      bool   `gorm:"default:true"`

	FailedAttempts int
	LockedUntil    *time.Time

	VerificationCode string `gorm:"size:16"`
	CodeExpiresAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store adapts a GORM connection to [adminauth.AdminProvider].
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("gormstore: db is required")
	}
	if err := db.AutoMigrate(&AdminUser{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts a new admin user.
func (s *Store) Create(ctx context.Context, rec adminauth.AdminRecord) error {
	row := toRow(rec)
	row.Email = adminauth.NormalizeEmail(row.Email)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: create: %w", err)
	}
	return nil
}

// GetByEmail implements adminauth.AdminProvider.
func (s *Store) GetByEmail(ctx context.Context, email string) (adminauth.AdminRecord, error) {
	var row AdminUser
	err := s.db.WithContext(ctx).
		Where("email = ?", adminauth.NormalizeEmail(email)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return adminauth.AdminRecord{}, adminauth.ErrAdminNotFound
		}
		return adminauth.AdminRecord{}, fmt.Errorf("gormstore: get by email: %w", err)
	}
	return toRecord(row), nil
}

// GetByID implements adminauth.AdminProvider.
func (s *Store) GetByID(ctx context.Context, id string) (adminauth.AdminRecord, error) {
	var row AdminUser
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return adminauth.AdminRecord{}, adminauth.ErrAdminNotFound
		}
		return adminauth.AdminRecord{}, fmt.Errorf("gormstore: get by id: %w", err)
	}
	return toRecord(row), nil
}

// UpdateLoginAttempts implements adminauth.AdminProvider.
func (s *Store) UpdateLoginAttempts(ctx context.Context, id string, failed int, lockedUntil *time.Time) error {
	res := s.db.WithContext(ctx).Model(&AdminUser{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_attempts": failed,
			"locked_until":    lockedUntil,
		})
	if res.Error != nil {
		return fmt.Errorf("gormstore: update attempts: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return adminauth.ErrAdminNotFound
	}
	return nil
}

// SetVerificationCode implements adminauth.AdminProvider.
func (s *Store) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&AdminUser{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verification_code": code,
			"code_expires_at":   expiresAt,
		})
	if res.Error != nil {
		return fmt.Errorf("gormstore: set code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return adminauth.ErrAdminNotFound
	}
	return nil
}

// ClearVerificationCode implements adminauth.AdminProvider.
func (s *Store) ClearVerificationCode(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&AdminUser{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verification_code": "",
			"code_expires_at":   nil,
		})
	if res.Error != nil {
		return fmt.Errorf("gormstore: clear code: %w", res.Error)
	}
	// An already-clear row reports zero affected rows; that is not an
	// error, clearing is idempotent.
	return nil
}

func toRow(rec adminauth.AdminRecord) AdminUser {
	return AdminUser{
		ID:               rec.ID,
		Email:            rec.Email,
		PasswordHash:     rec.PasswordHash,
		Role:             rec.Role,
		Permissions:      strings.Join(rec.Permissions, ","),
		Active:           rec.Active,
		FailedAttempts:   rec.FailedAttempts,
		LockedUntil:      rec.LockedUntil,
		VerificationCode: rec.VerificationCode,
		CodeExpiresAt:    rec.CodeExpiresAt,
	}
}

func toRecord(row AdminUser) adminauth.AdminRecord {
	var perms []string
	if row.Permissions != "" {
		perms = strings.Split(row.Permissions, ",")
	}
	return adminauth.AdminRecord{
		ID:               row.ID,
		Email:            row.Email,
		PasswordHash:     row.PasswordHash,
		Role:             row.Role,
		Permissions:      perms,
		Active:           row.Active,
		FailedAttempts:   row.FailedAttempts,
		LockedUntil:      row.LockedUntil,
		VerificationCode: row.VerificationCode,
		CodeExpiresAt:    row.CodeExpiresAt,
	}
}
