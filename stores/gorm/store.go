//go:build !wasm
// +build !wasm

// Package gorm provides a database-backed credential store for sessionkeeper,
// for hosts that already keep local state in a GORM-managed database.
package gorm

import (
	"errors"
	"time"

	"gorm.io/gorm"

	sk "github.com/panyam/sessionkeeper"
)

// AutoMigrate runs database migrations for the sessionkeeper table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialModel{})
}

// CredentialModel is the persisted row. A single session per database: the
// row always has ID 1.
type CredentialModel struct {
	ID           uint   `gorm:"primaryKey"`
	AccessToken  string `gorm:"type:text"`
	RefreshToken string `gorm:"type:text"`
	Subject      string `gorm:"type:text"`
	UpdatedAt    time.Time
}

func (CredentialModel) TableName() string {
	return "sessionkeeper_credentials"
}

// Store implements sessionkeeper.CredentialStore using GORM. Writes are
// immediate; Save is a no-op.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load() (*sk.Credential, error) {
	var model CredentialModel
	if err := s.db.First(&model, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	cred := &sk.Credential{
		AccessToken:  model.AccessToken,
		RefreshToken: model.RefreshToken,
		Subject:      model.Subject,
	}
	if !cred.Complete() {
		return nil, nil
	}
	return cred, nil
}

func (s *Store) Store(cred *sk.Credential) error {
	model := CredentialModel{
		ID:           1,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Subject:      cred.Subject,
	}
	return s.db.Save(&model).Error
}

func (s *Store) Clear() error {
	return s.db.Delete(&CredentialModel{}, "id = ?", 1).Error
}

func (s *Store) Save() error {
	return nil
}
