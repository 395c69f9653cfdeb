package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	txnDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/transaction"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) ledger.RepositoryAPI {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(txn *txnDatamodel.Transaction) error {
	return r.db.Create(txn).Error
}

func (r *LedgerRepository) GetByID(id int64) (*txnDatamodel.Transaction, error) {
	var txn txnDatamodel.Transaction
	err := r.db.Where("id = ?", id).First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *LedgerRepository) GetByExternalID(externalID string) (*txnDatamodel.Transaction, error) {
	var txn txnDatamodel.Transaction
	err := r.db.Where("external_id = ?", externalID).First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *LedgerRepository) GetByPayerID(payerID int64, q ledger.HistoryQuery) ([]*txnDatamodel.Transaction, error) {
	var txns []*txnDatamodel.Transaction
	err := r.historyScope(payerID, q).
		Order("created_at DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&txns).Error
	return txns, err
}

func (r *LedgerRepository) CountByPayerID(payerID int64, q ledger.HistoryQuery) (int64, error) {
	var count int64
	err := r.historyScope(payerID, q).Count(&count).Error
	return count, err
}

func (r *LedgerRepository) historyScope(payerID int64, q ledger.HistoryQuery) *gorm.DB {
	scope := r.db.Model(&txnDatamodel.Transaction{}).Where("payer_id = ?", payerID)
	if q.TxnType != "" {
		scope = scope.Where("txn_type = ?", q.TxnType)
	}
	if q.Status != "" {
		scope = scope.Where("status = ?", q.Status)
	}
	return scope
}

// Settle flips a pending row to its settled status. The status guard
// makes concurrent and replayed settlements harmless.
func (r *LedgerRepository) Settle(id int64, status string, failureReason *string, processorResponse json.RawMessage, settledAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"settled_at": settledAt,
		"updated_at": time.Now(),
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	if processorResponse != nil {
		updates["processor_response"] = processorResponse
	}

	result := r.db.Model(&txnDatamodel.Transaction{}).
		Where("id = ? AND status = ?", id, ledger.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AddRefund accumulates a refund and flips the status to refunded once
// the whole amount is returned. The WHERE clause bounds the total so
// racing refunds cannot overdraw the transaction.
func (r *LedgerRepository) AddRefund(id int64, amountCents int64) (bool, error) {
	result := r.db.Model(&txnDatamodel.Transaction{}).
		Where("id = ? AND status = ?", id, ledger.StatusCompleted).
		Where("refund_amount_cents + ? <= amount_cents", amountCents).
		Updates(map[string]interface{}{
			"refund_amount_cents": gorm.Expr("refund_amount_cents + ?", amountCents),
			"status": gorm.Expr(
				"CASE WHEN refund_amount_cents + ? >= amount_cents THEN ? ELSE status END",
				amountCents, ledger.StatusRefunded,
			),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
