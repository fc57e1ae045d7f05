package typing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type stateRecord struct {
	Namespace string    `gorm:"column:namespace;primaryKey"`
	Name      string    `gorm:"column:name;primaryKey"`
	State     string    `gorm:"column:state"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// GormStateStore keeps MinimalState blobs in <raw namespace>._destination_state.
// The table is created by SQLBuilder.CreateStateTable during Prepare.
type GormStateStore struct {
	db     *gorm.DB
	table  string // unquoted, gorm quotes it
	logger *zap.Logger
}

func NewGormStateStore(db *gorm.DB, d Dialect, rawNamespace string, logger *zap.Logger) *GormStateStore {
	schema, table := d.CatalogLocation(rawNamespace, StateTableName)
	if schema != "" {
		table = schema + "." + table
	}
	return &GormStateStore{db: db, table: table, logger: logger.Named("state-store")}
}

// Load returns the stream's state with every pending migration applied. An
// upgraded blob is written back before Load returns.
func (s *GormStateStore) Load(ctx context.Context, id StreamID) (MinimalState, error) {
	log := s.logger.With(zap.String("stream", id.String()))

	var rows []stateRecord
	err := s.db.WithContext(ctx).Table(s.table).
		Select("state").
		Where("namespace = ? AND name = ?", id.Namespace, id.Name).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return MinimalState{}, fmt.Errorf("load state for %s: %w", id, err)
	}

	var raw []byte
	if len(rows) > 0 {
		raw = []byte(rows[0].State)
	}
	st, changed, err := migrateState(id.String(), raw)
	if err != nil {
		return MinimalState{}, err
	}
	if changed {
		log.Info("Upgraded destination state.", zap.Int("version", st.Version), zap.Bool("was_absent", len(rows) == 0))
		if err := s.Save(ctx, id, st); err != nil {
			return MinimalState{}, fmt.Errorf("persist migrated state: %w", err)
		}
	}
	return st, nil
}

func (s *GormStateStore) Save(ctx context.Context, id StreamID, st MinimalState) error {
	st.Version = CurrentStateVersion()
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", id, err)
	}
	rec := stateRecord{Namespace: id.Namespace, Name: id.Name, State: string(blob), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save state for %s: %w", id, err)
	}
	return nil
}
