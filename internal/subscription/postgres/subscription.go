package postgres

import (
	"time"

	"gorm.io/gorm"

	subDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/tutor-billing/internal/subscription"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) subscription.RepositoryAPI {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) CreatePlan(plan *subDatamodel.Plan) error {
	return r.db.Create(plan).Error
}

func (r *SubscriptionRepository) GetPlanByID(id int64) (*subDatamodel.Plan, error) {
	var plan subDatamodel.Plan
	err := r.db.Where("id = ?", id).First(&plan).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *SubscriptionRepository) GetPlanByName(name string) (*subDatamodel.Plan, error) {
	var plan subDatamodel.Plan
	err := r.db.Where("name = ?", name).First(&plan).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *SubscriptionRepository) GetActivePlans() ([]*subDatamodel.Plan, error) {
	var plans []*subDatamodel.Plan
	err := r.db.Where("is_active = ?", true).
		Order("price_cents ASC").
		Find(&plans).Error
	return plans, err
}

func (r *SubscriptionRepository) DeactivatePlan(id int64) error {
	return r.db.Model(&subDatamodel.Plan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

func (r *SubscriptionRepository) CreateSubscription(sub *subDatamodel.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetSubscriptionByID(id int64) (*subDatamodel.Subscription, error) {
	var sub subDatamodel.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetSubscriptionsByOwnerID(ownerID int64) ([]*subDatamodel.Subscription, error) {
	var subs []*subDatamodel.Subscription
	err := r.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// GetLiveSubscription finds a subscription that still blocks a new
// one: anything not yet expired or fully cancelled-and-ended.
func (r *SubscriptionRepository) GetLiveSubscription(ownerID, planID int64) (*subDatamodel.Subscription, error) {
	var sub subDatamodel.Subscription
	err := r.db.Where("owner_id = ? AND plan_id = ?", ownerID, planID).
		Where("status IN ?", []string{
			subscription.StatusTrial,
			subscription.StatusActive,
			subscription.StatusPastDue,
		}).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByLastTxnExternalID(externalID string) (*subDatamodel.Subscription, error) {
	var sub subDatamodel.Subscription
	err := r.db.Where("last_txn_external_id = ?", externalID).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) UpdateSubscription(sub *subDatamodel.Subscription) error {
	sub.UpdatedAt = time.Now()
	return r.db.Save(sub).Error
}

func (r *SubscriptionRepository) GetDueForRenewal(now time.Time) ([]*subDatamodel.Subscription, error) {
	var subs []*subDatamodel.Subscription
	err := r.db.Where("auto_renew = ?", true).
		Where("status IN ?", []string{subscription.StatusTrial, subscription.StatusActive}).
		Where("renewal_date <= ?", now).
		Order("renewal_date ASC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) GetCancelledPastEnd(now time.Time) ([]*subDatamodel.Subscription, error) {
	var subs []*subDatamodel.Subscription
	err := r.db.Where("status = ? AND end_date <= ?", subscription.StatusCancelled, now).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) GetPastDueBeyondGrace(now time.Time) ([]*subDatamodel.Subscription, error) {
	var subs []*subDatamodel.Subscription
	err := r.db.Where("status = ? AND grace_until IS NOT NULL AND grace_until <= ?", subscription.StatusPastDue, now).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) GetPastDueWithinGrace(now time.Time) ([]*subDatamodel.Subscription, error) {
	var subs []*subDatamodel.Subscription
	err := r.db.Where("status = ? AND grace_until IS NOT NULL AND grace_until > ?", subscription.StatusPastDue, now).
		Find(&subs).Error
	return subs, err
}

// ConsumeCredit decrements one credit only while credits remain; the
// guard makes double bookings impossible.
func (r *SubscriptionRepository) ConsumeCredit(id int64) (bool, error) {
	result := r.db.Model(&subDatamodel.Subscription{}).
		Where("id = ? AND session_credits_remaining > 0", id).
		Updates(map[string]interface{}{
			"session_credits_remaining": gorm.Expr("session_credits_remaining - 1"),
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
