// internal/domain/audit/logger.go
package audit

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Logger writes audit transactions. Every write is best-effort: a failed
// insert is logged server-side and swallowed so it can never abort or mask
// the primary operation's outcome.
type Logger struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewLogger creates a new audit logger
func NewLogger(db *gorm.DB, log *logrus.Logger) *Logger {
	return &Logger{db: db, log: log}
}

// Entry carries the fields of one audit row.
type Entry struct {
	Type            string
	Status          string
	OrgID           uint
	CouponBatchID   *uint
	CreatedBy       uint
	PaymentIntentID string
	Amount          *float64
	Currency        string
	Description     string
	ErrorMessage    string
	Metadata        map[string]interface{}
}

// Log inserts one transaction row. Errors never propagate.
func (l *Logger) Log(entry Entry) {
	l.LogTx(l.db, entry)
}

// LogTx inserts one transaction row using the given handle, so callers that
// want the audit row committed atomically with their own writes can pass
// their transaction. Errors still never propagate.
func (l *Logger) LogTx(tx *gorm.DB, entry Entry) {
	currency := entry.Currency
	if currency == "" {
		currency = "usd"
	}

	var metadata string
	if entry.Metadata != nil {
		if raw, err := json.Marshal(entry.Metadata); err == nil {
			metadata = string(raw)
		}
	}

	row := Transaction{
		Type:            entry.Type,
		Status:          entry.Status,
		OrgID:           entry.OrgID,
		CouponBatchID:   entry.CouponBatchID,
		CreatedBy:       entry.CreatedBy,
		PaymentIntentID: entry.PaymentIntentID,
		Amount:          entry.Amount,
		Currency:        currency,
		Description:     entry.Description,
		ErrorMessage:    entry.ErrorMessage,
		Metadata:        metadata,
	}

	if err := tx.Create(&row).Error; err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"type":   entry.Type,
			"status": entry.Status,
		}).Error("Failed to write audit transaction")
	}
}

// MarkPaymentSucceeded flips the payment audit row for an intent to succeeded.
func (l *Logger) MarkPaymentSucceeded(tx *gorm.DB, paymentIntentID string) {
	err := tx.Model(&Transaction{}).
		Where("payment_intent_id = ? AND type = ?", paymentIntentID, TypePayment).
		Update("status", StatusSucceeded).Error
	if err != nil {
		l.log.WithError(err).WithField("payment_intent_id", paymentIntentID).
			Error("Failed to mark audit transaction succeeded")
	}
}

// MarkPaymentFailed flips the payment audit row for an intent to failed and
// records the provider's error message.
func (l *Logger) MarkPaymentFailed(tx *gorm.DB, paymentIntentID, errorMessage string) {
	err := tx.Model(&Transaction{}).
		Where("payment_intent_id = ? AND type = ?", paymentIntentID, TypePayment).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": errorMessage,
		}).Error
	if err != nil {
		l.log.WithError(err).WithField("payment_intent_id", paymentIntentID).
			Error("Failed to mark audit transaction failed")
	}
}
