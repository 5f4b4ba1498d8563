package tokencache

import (
	"time"

	"gorm.io/gorm"

	"github.com/fitstack/mindbridge/app/models"
)

// Repository provides the durable token records behind the cache. Rows
// survive restarts and feed the retention sweep.
type Repository interface {
	Create(token *models.ApiToken) error
	LatestValid(username string, notBefore time.Time) (*models.ApiToken, error)
	LiveByUsername(username string) ([]models.ApiToken, error)
	RevokeByToken(accessToken string) error
	RevokeByUsername(username string) (int64, error)
	DeleteStale(cutoff time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a token repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(token *models.ApiToken) error {
	return r.db.Create(token).Error
}

// LatestValid returns the most recent unrevoked token for the username
// whose expiry is after notBefore.
func (r *gormRepository) LatestValid(username string, notBefore time.Time) (*models.ApiToken, error) {
	var token models.ApiToken
	err := r.db.
		Where("username = ? AND revoked = ? AND expires_at > ?", username, false, notBefore).
		Order("issued_at DESC").
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// LiveByUsername returns every unrevoked token row for the username.
func (r *gormRepository) LiveByUsername(username string) ([]models.ApiToken, error) {
	var tokens []models.ApiToken
	err := r.db.
		Where("username = ? AND revoked = ?", username, false).
		Find(&tokens).Error
	return tokens, err
}

func (r *gormRepository) RevokeByToken(accessToken string) error {
	return r.db.Model(&models.ApiToken{}).
		Where("access_token = ?", accessToken).
		Update("revoked", true).Error
}

func (r *gormRepository) RevokeByUsername(username string) (int64, error) {
	tx := r.db.Model(&models.ApiToken{}).
		Where("username = ? AND revoked = ?", username, false).
		Update("revoked", true)
	return tx.RowsAffected, tx.Error
}

// DeleteStale removes revoked rows and rows expired before the cutoff.
func (r *gormRepository) DeleteStale(cutoff time.Time) (int64, error) {
	tx := r.db.
		Where("revoked = ? OR expires_at < ?", true, cutoff).
		Delete(&models.ApiToken{})
	return tx.RowsAffected, tx.Error
}
