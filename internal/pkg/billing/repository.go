package billing

import (
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service. Every
// mutation that guards an invariant (credit floor, event idempotency,
// timestamp fencing, single mapping per user) is expressed as one atomic
// conditional write so no caller-side locking is needed.
type Repository interface {
	GetCustomerMapping(userID uint) (*models.CustomerMapping, error)
	GetCustomerMappingByExternalID(provider, externalCustomerID string) (*models.CustomerMapping, error)
	CreateCustomerMappingIfAbsent(m *models.CustomerMapping) (bool, *models.CustomerMapping, error)

	EnsureCreditBalance(userID uint, initialGrant int64) error
	GetCreditBalance(userID uint) (*models.CreditBalance, error)
	DecrementCredit(userID uint) (bool, error)
	ResetCreditBalance(userID uint, newBalance int64) error

	GetSubscriptionState(userID uint) (*models.SubscriptionState, error)
	ApplySubscriptionState(userID uint, status, externalCustomerID, priceID string, eventTimestamp int64, overrideTies bool) (bool, error)

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	PurgeProcessedEventsBefore(cutoff time.Time) (int64, error)

	EnqueueReconciliationItem(item *models.BillingReconciliationItem) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCustomerMapping(userID uint) (*models.CustomerMapping, error) {
	var m models.CustomerMapping
	if err := r.db.Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetCustomerMappingByExternalID(provider, externalCustomerID string) (*models.CustomerMapping, error) {
	var m models.CustomerMapping
	err := r.db.Where("provider = ? AND external_customer_id = ?", provider, externalCustomerID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) CreateCustomerMappingIfAbsent(m *models.CustomerMapping) (bool, *models.CustomerMapping, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(m)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.CustomerMapping
	if err := r.db.Where("user_id = ?", m.UserID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) EnsureCreditBalance(userID uint, initialGrant int64) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.CreditBalance{
		UserID:           userID,
		CreditsRemaining: initialGrant,
	}).Error
}

func (r *gormRepository) GetCreditBalance(userID uint) (*models.CreditBalance, error) {
	var b models.CreditBalance
	if err := r.db.Where("user_id = ?", userID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// DecrementCredit spends one credit. The WHERE clause makes the decrement
// conditional on a positive balance, so concurrent spends against the last
// credit can never both succeed and the balance can never go negative.
func (r *gormRepository) DecrementCredit(userID uint) (bool, error) {
	tx := r.db.Model(&models.CreditBalance{}).
		Where("user_id = ? AND credits_remaining > 0", userID).
		Updates(map[string]interface{}{
			"credits_remaining": gorm.Expr("credits_remaining - ?", 1),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ResetCreditBalance(userID uint, newBalance int64) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"credits_remaining": newBalance}),
	}).Create(&models.CreditBalance{
		UserID:           userID,
		CreditsRemaining: newBalance,
	}).Error
}

func (r *gormRepository) GetSubscriptionState(userID uint) (*models.SubscriptionState, error) {
	var s models.SubscriptionState
	if err := r.db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplySubscriptionState writes the new status only when the event is newer
// than the stored one (last_event_timestamp fencing). Stale and redelivered
// events fall through with applied=false and no change. overrideTies widens
// the fence to equal timestamps: subscription lifecycle events carry the
// processor's authoritative status and may overwrite state recorded at the
// same second by the coarser checkout-completed signal.
func (r *gormRepository) ApplySubscriptionState(userID uint, status, externalCustomerID, priceID string, eventTimestamp int64, overrideTies bool) (bool, error) {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.SubscriptionState{
		UserID: userID,
		Status: models.SubscriptionStatusNone,
	}).Error; err != nil {
		return false, err
	}

	fence := "user_id = ? AND last_event_timestamp < ?"
	if overrideTies {
		fence = "user_id = ? AND last_event_timestamp <= ?"
	}
	tx := r.db.Model(&models.SubscriptionState{}).
		Where(fence, userID, eventTimestamp).
		Updates(map[string]interface{}{
			"status":               status,
			"external_customer_id": externalCustomerID,
			"current_price_id":     priceID,
			"last_event_timestamp": eventTimestamp,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// PurgeProcessedEventsBefore garbage-collects cleanly processed event
// records older than the cutoff. Events that recorded a processing error
// are kept so a redelivery can still reprocess them. The retention window
// must exceed the processor's maximum redelivery window or dedup
// protection is lost.
func (r *gormRepository) PurgeProcessedEventsBefore(cutoff time.Time) (int64, error) {
	tx := r.db.Where("processed_at IS NOT NULL AND processing_error = '' AND created_at < ?", cutoff).
		Delete(&models.BillingWebhookEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) EnqueueReconciliationItem(item *models.BillingReconciliationItem) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoNothing: true,
	}).Create(item).Error
}
