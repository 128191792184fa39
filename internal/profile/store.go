// Package profile persists saved connection profiles.
//
// A profile is the recallable half of a connection: name, transport kind,
// host, port, and SSH identity. Passwords and passphrases are never stored;
// the user supplies them at connect time.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned for operations on an unknown profile id.
var ErrNotFound = errors.New("profile not found")

// Profile is one saved connection.
type Profile struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Kind       string    `gorm:"not null" json:"kind"` // "telnet" or "ssh"
	Host       string    `gorm:"not null" json:"host"`
	Port       int       `gorm:"not null" json:"port"`
	Username   string    `json:"username,omitempty"`
	AuthMethod string    `json:"authMethod,omitempty"` // "password" or "publickey"
	KeyPath    string    `json:"keyPath,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Kind != "telnet" && p.Kind != "ssh" {
		return fmt.Errorf("invalid connection kind %q", p.Kind)
	}
	if p.Host == "" {
		return fmt.Errorf("profile host is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	switch p.AuthMethod {
	case "", "password", "publickey":
	default:
		return fmt.Errorf("invalid auth method %q", p.AuthMethod)
	}
	return nil
}

// Store is a sqlite-backed profile collection.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the profile database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Profile{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create stores a new profile and returns it with its assigned id.
func (s *Store) Create(p Profile) (Profile, error) {
	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	p.ID = uuid.New().String()
	if err := s.db.Create(&p).Error; err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

// Update replaces a profile's fields, keeping its id and creation time.
func (s *Store) Update(p Profile) (Profile, error) {
	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	var existing Profile
	if err := s.db.First(&existing, "id = ?", p.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("find profile: %w", err)
	}
	p.CreatedAt = existing.CreatedAt
	if err := s.db.Save(&p).Error; err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// Delete removes a profile. Deleting an unknown id returns ErrNotFound.
func (s *Store) Delete(id string) error {
	res := s.db.Delete(&Profile{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one profile by id.
func (s *Store) Get(id string) (Profile, error) {
	var p Profile
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

// List returns all profiles ordered by name.
func (s *Store) List() ([]Profile, error) {
	var out []Profile
	if err := s.db.Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}
