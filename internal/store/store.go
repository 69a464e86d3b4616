// Package store persists users, clients and refresh-token rotation records in
// a relational database through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lattice-auth/lattice"
)

type UserRow struct {
	UserID             string `gorm:"primaryKey"`
	UID                string `gorm:"uniqueIndex"`
	Email              string `gorm:"uniqueIndex"`
	Username           string `gorm:"uniqueIndex"`
	Mobile             string `gorm:"index"`
	PasswordHash       string
	Enabled            bool
	Locked             bool
	Roles              []string `gorm:"serializer:json"`
	Providers          []string `gorm:"serializer:json"`
	LastPasswordChange time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ClientRow struct {
	ClientID   string `gorm:"primaryKey"`
	ClientName string
	ClientType string
	Secret     string
	Status     string
	ExpiresAt  time.Time
	Origins    []string `gorm:"serializer:json"`
	Scopes     []string `gorm:"serializer:json"`
	CreatedAt  time.Time
}

type RefreshRow struct {
	RecordID     string `gorm:"primaryKey"`
	JTI          string `gorm:"uniqueIndex"`
	ClientID     string
	UserID       string
	AuthType     string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Status       string
	Provider     string
	ProviderData []byte
}

type SequenceRow struct {
	Name string `gorm:"primaryKey"`
	Next int64
}

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) a sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&UserRow{}, &ClientRow{}, &RefreshRow{}, &SequenceRow{}); err != nil {
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateUser assigns the record id and the human-readable UID before the row
// is written, in one transaction with the sequence bump.
func (s *Store) CreateUser(ctx context.Context, user *lattice.User) error {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, "user_uid")
		if err != nil {
			return err
		}
		row := userToRow(user)
		row.UID = fmt.Sprintf("UA%07d", seq)
		return tx.Create(row).Error
	})
}

func (s *Store) CreateClient(ctx context.Context, client *lattice.Client) error {
	return s.db.WithContext(ctx).Create(clientToRow(client)).Error
}

func (s *Store) FindUserByEntrypoint(ctx context.Context, value string) (*lattice.User, error) {
	var row UserRow
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ? OR mobile = ?", value, value, value).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query user by entrypoint: %w", err)
	}
	return rowToUser(&row), nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*lattice.User, error) {
	var row UserRow
	err := s.db.WithContext(ctx).Where("user_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query user by id: %w", err)
	}
	return rowToUser(&row), nil
}

func (s *Store) FindClientByID(ctx context.Context, id string) (*lattice.Client, error) {
	var row ClientRow
	err := s.db.WithContext(ctx).Where("client_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query client: %w", err)
	}
	return rowToClient(&row), nil
}

// FindClientsByScope lists clients granted a scope, for provisioning and ops
// queries. Scopes are stored as a JSON array so the match is textual.
func (s *Store) FindClientsByScope(ctx context.Context, scope string) ([]*lattice.Client, error) {
	var rows []ClientRow
	err := s.db.WithContext(ctx).
		Where(`scopes LIKE ?`, `%"`+scope+`"%`).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not query clients by scope: %w", err)
	}
	clients := make([]*lattice.Client, 0, len(rows))
	for i := range rows {
		clients = append(clients, rowToClient(&rows[i]))
	}
	return clients, nil
}

func (s *Store) CreateRefresh(ctx context.Context, rec *lattice.RefreshRecord) error {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(refreshToRow(rec)).Error
}

// ConsumeRefresh is the single-use gate: the conditional delete decides the
// winner when two requests present the same token concurrently, because only
// one delete can affect the row.
func (s *Store) ConsumeRefresh(ctx context.Context, jti string) (*lattice.RefreshRecord, error) {
	var rec *lattice.RefreshRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row RefreshRow
		err := tx.Where("jti = ?", jti).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not query refresh record: %w", err)
		}
		res := tx.Where("jti = ?", jti).Delete(&RefreshRow{})
		if res.Error != nil {
			return fmt.Errorf("could not delete refresh record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// lost the race to a concurrent consume
			return nil
		}
		rec = rowToRefresh(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredRefresh reaps records whose expiry has passed. Tokens past
// expiry already fail signature validation; this only bounds table growth.
func (s *Store) PurgeExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&RefreshRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("could not purge refresh records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func nextSequence(tx *gorm.DB, name string) (int64, error) {
	var row SequenceRow
	err := tx.Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = SequenceRow{Name: name, Next: 1}
		if err := tx.Create(&row).Error; err != nil {
			return 0, fmt.Errorf("could not create sequence %s: %w", name, err)
		}
		return row.Next, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not read sequence %s: %w", name, err)
	}
	row.Next++
	if err := tx.Save(&row).Error; err != nil {
		return 0, fmt.Errorf("could not bump sequence %s: %w", name, err)
	}
	return row.Next, nil
}

func userToRow(u *lattice.User) *UserRow {
	return &UserRow{
		UserID:             u.UserID,
		Email:              u.Email,
		Username:           u.Username,
		Mobile:             u.Mobile,
		PasswordHash:       u.PasswordHash,
		Enabled:            u.Enabled,
		Locked:             u.Locked,
		Roles:              u.Roles,
		Providers:          u.Providers,
		LastPasswordChange: u.LastPasswordChange,
	}
}

func rowToUser(row *UserRow) *lattice.User {
	return &lattice.User{
		UserID:             row.UserID,
		Email:              row.Email,
		Username:           row.Username,
		Mobile:             row.Mobile,
		PasswordHash:       row.PasswordHash,
		Enabled:            row.Enabled,
		Locked:             row.Locked,
		Roles:              row.Roles,
		Providers:          row.Providers,
		LastPasswordChange: row.LastPasswordChange,
	}
}

func clientToRow(c *lattice.Client) *ClientRow {
	return &ClientRow{
		ClientID:   c.ClientID,
		ClientName: c.ClientName,
		ClientType: c.ClientType,
		Secret:     c.Secret,
		Status:     string(c.Status),
		ExpiresAt:  c.ExpiresAt,
		Origins:    c.Origins,
		Scopes:     c.Scopes,
	}
}

func rowToClient(row *ClientRow) *lattice.Client {
	return &lattice.Client{
		ClientID:   row.ClientID,
		ClientName: row.ClientName,
		ClientType: row.ClientType,
		Secret:     row.Secret,
		Status:     lattice.ClientStatus(row.Status),
		ExpiresAt:  row.ExpiresAt,
		Origins:    row.Origins,
		Scopes:     row.Scopes,
	}
}

func refreshToRow(rec *lattice.RefreshRecord) *RefreshRow {
	return &RefreshRow{
		RecordID:     rec.RecordID,
		JTI:          rec.JTI,
		ClientID:     rec.ClientID,
		UserID:       rec.UserID,
		AuthType:     string(rec.AuthType),
		IssuedAt:     rec.IssuedAt,
		ExpiresAt:    rec.ExpiresAt,
		Status:       string(rec.Status),
		Provider:     rec.Provider,
		ProviderData: rec.ProviderData,
	}
}

func rowToRefresh(row *RefreshRow) *lattice.RefreshRecord {
	return &lattice.RefreshRecord{
		RecordID:     row.RecordID,
		JTI:          row.JTI,
		ClientID:     row.ClientID,
		UserID:       row.UserID,
		AuthType:     lattice.AuthType(row.AuthType),
		IssuedAt:     row.IssuedAt,
		ExpiresAt:    row.ExpiresAt,
		Status:       lattice.RefreshStatus(row.Status),
		Provider:     row.Provider,
		ProviderData: row.ProviderData,
	}
}
