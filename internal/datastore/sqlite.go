package datastore

import (
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/deterrent"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// Store is the SQLite-backed persistence layer. It satisfies
// escalation.Store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and
// migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&AlertRecord{}, &ActivationRecord{}, &TransitionRecord{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	return &Store{
		db:     db,
		logger: logging.ForService("datastore"),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAlert records a normalized detection with its disposition.
func (s *Store) SaveAlert(event *alert.DetectionEvent, key alert.Key, disposition string) error {
	record := AlertRecord{
		AlertKey:          key.String(),
		CommonName:        event.Species.CommonName,
		ScientificName:    event.Species.ScientificName,
		Confidence:        event.Confidence,
		RiskScore:         event.RiskScore,
		AlertLevel:        event.AlertLevel.String(),
		RecommendedAction: event.RecommendedAction,
		Disposition:       disposition,
		EventTime:         event.Timestamp,
		ReceivedAt:        event.ReceivedAt,
	}

	if err := s.db.Create(&record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("alert_key", record.AlertKey).
			Build()
	}
	return nil
}

// SaveActivation records a fresh deterrent activation with its
// effectiveness pending.
func (s *Store) SaveActivation(activation *deterrent.Activation) error {
	record := ActivationRecord{
		ID:                   activation.ID,
		SoundType:            activation.SoundType,
		ActivatedAt:          activation.ActivatedAt,
		WindowEnd:            activation.WindowEnd,
		EffectivenessStatus:  activation.Effectiveness.Status.String(),
		EffectivenessPercent: activation.Effectiveness.Percent,
	}

	if err := s.db.Create(&record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("activation_id", activation.ID).
			Build()
	}
	return nil
}

// UpdateActivationEffectiveness resolves the measurement of an
// activation.
func (s *Store) UpdateActivationEffectiveness(activationID string, effectiveness deterrent.Effectiveness) error {
	result := s.db.Model(&ActivationRecord{}).
		Where("id = ?", activationID).
		Updates(map[string]any{
			"effectiveness_status":  effectiveness.Status.String(),
			"effectiveness_percent": effectiveness.Percent,
		})
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("activation_id", activationID).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("activation %s not found", activationID).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// PendingActivations returns activations whose effectiveness
// measurement never resolved, for rescheduling after a restart.
func (s *Store) PendingActivations() ([]*deterrent.Activation, error) {
	var records []ActivationRecord
	err := s.db.
		Where("effectiveness_status = ?", deterrent.EffectivenessPending.String()).
		Order("activated_at asc").
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	activations := make([]*deterrent.Activation, 0, len(records))
	for i := range records {
		activations = append(activations, recordToActivation(&records[i]))
	}
	return activations, nil
}

func recordToActivation(record *ActivationRecord) *deterrent.Activation {
	return &deterrent.Activation{
		ID:          record.ID,
		SoundType:   record.SoundType,
		ActivatedAt: record.ActivatedAt,
		WindowEnd:   record.WindowEnd,
		Effectiveness: deterrent.Effectiveness{
			Status: deterrent.EffectivenessPending,
		},
	}
}

// RecentAlerts returns the newest alert records for history listings.
func (s *Store) RecentAlerts(limit int) ([]AlertRecord, error) {
	var records []AlertRecord
	err := s.db.Order("received_at desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return records, nil
}

// SessionTransitions returns the audit trail of one session in order.
func (s *Store) SessionTransitions(sessionID string) ([]TransitionRecord, error) {
	var records []TransitionRecord
	err := s.db.
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", sessionID).
			Build()
	}
	return records, nil
}

// saveTransition appends one audit row.
func (s *Store) saveTransition(record *TransitionRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", record.SessionID).
			Build()
	}
	return nil
}
