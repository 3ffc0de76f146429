package repositories

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainerrors "xchain-router.backend/internal/domain/errors"
	domainrepos "xchain-router.backend/internal/domain/repositories"
	"xchain-router.backend/internal/execution"
	"xchain-router.backend/pkg/crypto"
)

// planRecord is the Postgres `bytea`-backed row for one ExecutionPlan. Only
// Status is stored in the clear (needed to query for InProgress plans on
// worker restart without decrypting every row); the plan body itself is
// AES-GCM ciphertext, generalized from the teacher's session_store.go
// encrypt/decrypt dance applied to session payloads.
type planRecord struct {
	UUID      string `gorm:"primaryKey;type:varchar(32)"`
	Status    uint8  `gorm:"index"`
	Blob      string `gorm:"type:bytea"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (planRecord) TableName() string { return "execution_plans" }

type planRepo struct {
	db            *gorm.DB
	encryptionKey []byte
}

// NewPlanRepository builds a PlanRepository. encryptionKey must be a 32-byte
// AES-256 key.
func NewPlanRepository(db *gorm.DB, encryptionKey []byte) domainrepos.PlanRepository {
	return &planRepo{db: db, encryptionKey: encryptionKey}
}

func (r *planRepo) Save(ctx context.Context, plan *execution.ExecutionPlan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return err
	}

	blob, err := crypto.EncryptGCM(r.encryptionKey, body)
	if err != nil {
		return err
	}

	rec := planRecord{
		UUID:   hex.EncodeToString(plan.UUID[:]),
		Status: uint8(plan.Status()),
		Blob:   blob,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "blob", "updated_at"}),
	}).Create(&rec).Error
}

func (r *planRepo) Get(ctx context.Context, planUUID [16]byte) (*execution.ExecutionPlan, error) {
	var rec planRecord
	err := r.db.WithContext(ctx).Where("uuid = ?", hex.EncodeToString(planUUID[:])).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	body, err := crypto.DecryptGCM(r.encryptionKey, rec.Blob)
	if err != nil {
		return nil, err
	}

	var plan execution.ExecutionPlan
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepo) ListInProgress(ctx context.Context) ([][16]byte, error) {
	var recs []planRecord
	statuses := []uint8{uint8(execution.SimpleNotStarted), uint8(execution.SimpleInProgress)}
	if err := r.db.WithContext(ctx).Where("status IN ?", statuses).Find(&recs).Error; err != nil {
		return nil, err
	}

	uuids := make([][16]byte, 0, len(recs))
	for _, rec := range recs {
		raw, err := hex.DecodeString(rec.UUID)
		if err != nil || len(raw) != 16 {
			continue
		}
		var id [16]byte
		copy(id[:], raw)
		uuids = append(uuids, id)
	}
	return uuids, nil
}

func (r *planRepo) Delete(ctx context.Context, planUUID [16]byte) error {
	return r.db.WithContext(ctx).Where("uuid = ?", hex.EncodeToString(planUUID[:])).Delete(&planRecord{}).Error
}
