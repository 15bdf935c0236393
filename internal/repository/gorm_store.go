package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// WithResourceLock opens a transaction and takes a row lock on the resource,
// so concurrent mutations on the same resource queue behind each other while
// other resources proceed untouched.
func (s *gormStore) WithResourceLock(ctx context.Context, resourceID uint, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res models.Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&res, resourceID).Error; err != nil {
			return translate(err)
		}
		return fn(&gormTx{tx: tx})
	})
}

func (s *gormStore) GetResource(ctx context.Context, id uint) (*models.Resource, error) {
	var res models.Resource
	if err := s.db.WithContext(ctx).
		Preload("Hours").
		Preload("Blackouts").
		First(&res, id).Error; err != nil {
		return nil, translate(err)
	}
	return &res, nil
}

func (s *gormStore) GetReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *gormStore) GetReservationByReference(ctx context.Context, ref string) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).Where("reference = ?", ref).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *gormStore) ListReservations(ctx context.Context, resourceID uint, from, to time.Time, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	var rs []models.Reservation
	q := s.db.WithContext(ctx).
		Where("resource_id = ? AND start_at < ? AND end_at > ?", resourceID, to, from)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("start_at ASC, id ASC").Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *gormStore) ListSeries(ctx context.Context, parentID uint) ([]models.Reservation, error) {
	var rs []models.Reservation
	if err := s.db.WithContext(ctx).
		Where("id = ? OR parent_id = ?", parentID, parentID).
		Order("start_at ASC").
		Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *gormStore) GetWaitlistEntry(ctx context.Context, id uint) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *gormStore) ListWaitlistForOwner(ctx context.Context, ownerID uint) ([]models.WaitlistEntry, error) {
	var es []models.WaitlistEntry
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC, id ASC").
		Find(&es).Error; err != nil {
		return nil, err
	}
	return es, nil
}

func (s *gormStore) ListWaitlistForResource(ctx context.Context, resourceID uint) ([]models.WaitlistEntry, error) {
	var es []models.WaitlistEntry
	if err := s.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("position ASC").
		Find(&es).Error; err != nil {
		return nil, err
	}
	return es, nil
}

func (s *gormStore) ElapsedReservations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var rs []models.Reservation
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND end_at <= ?", models.BlockingStatuses, now).
		Order("id ASC").
		Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *gormStore) StaleOffers(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	var es []models.WaitlistEntry
	if err := s.db.WithContext(ctx).
		Where("status = ? AND offer_expires_at <= ?", models.WaitlistOffered, now).
		Order("id ASC").
		Find(&es).Error; err != nil {
		return nil, err
	}
	return es, nil
}

func (s *gormStore) SyncResource(ctx context.Context, res *models.Resource) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hours := res.Hours
		blackouts := res.Blackouts
		res.Hours = nil
		res.Blackouts = nil

		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(res).Error; err != nil {
			return err
		}
		if err := tx.Where("resource_id = ?", res.ID).Delete(&models.BusinessHours{}).Error; err != nil {
			return err
		}
		if err := tx.Where("resource_id = ?", res.ID).Delete(&models.BlackoutDate{}).Error; err != nil {
			return err
		}
		for i := range hours {
			hours[i].ID = 0
			hours[i].ResourceID = res.ID
		}
		if len(hours) > 0 {
			if err := tx.Create(&hours).Error; err != nil {
				return err
			}
		}
		for i := range blackouts {
			blackouts[i].ID = 0
			blackouts[i].ResourceID = res.ID
		}
		if len(blackouts) > 0 {
			if err := tx.Create(&blackouts).Error; err != nil {
				return err
			}
		}
		res.Hours = hours
		res.Blackouts = blackouts
		return nil
	})
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) Resource(id uint) (*models.Resource, error) {
	var res models.Resource
	if err := t.tx.Preload("Hours").Preload("Blackouts").First(&res, id).Error; err != nil {
		return nil, translate(err)
	}
	return &res, nil
}

func (t *gormTx) Overlapping(resourceID uint, start, end time.Time, excludeID uint) ([]models.Reservation, error) {
	var rs []models.Reservation
	q := t.tx.
		Where("resource_id = ? AND status IN ?", resourceID, models.BlockingStatuses).
		Where("start_at < ? AND end_at > ?", end, start)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Order("start_at ASC").Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (t *gormTx) CreateReservation(r *models.Reservation) error {
	return t.tx.Create(r).Error
}

func (t *gormTx) CreateReservations(rs []*models.Reservation) error {
	return t.tx.Create(rs).Error
}

func (t *gormTx) CreateRecurrenceRule(rule *models.RecurrenceRule) error {
	return t.tx.Create(rule).Error
}

func (t *gormTx) ReservationByID(id uint) (*models.Reservation, error) {
	var r models.Reservation
	if err := t.tx.First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormTx) UpdateReservationStatus(id uint, status models.ReservationStatus) error {
	return t.tx.Model(&models.Reservation{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (t *gormTx) NextWaitlistPosition(resourceID uint) (uint, error) {
	var next int64
	err := t.tx.Model(&models.WaitlistEntry{}).
		Where("resource_id = ?", resourceID).
		Select("COALESCE(MAX(position), 0) + 1").
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return uint(next), nil
}

func (t *gormTx) CreateWaitlistEntry(e *models.WaitlistEntry) error {
	return t.tx.Create(e).Error
}

func (t *gormTx) WaitlistEntryByID(id uint) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	if err := t.tx.First(&e, id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (t *gormTx) WaitingEntries(resourceID uint) ([]models.WaitlistEntry, error) {
	var es []models.WaitlistEntry
	err := t.tx.
		Where("resource_id = ? AND status = ?", resourceID, models.WaitlistWaiting).
		Order("position ASC").
		Find(&es).Error
	if err != nil {
		return nil, err
	}
	return es, nil
}

func (t *gormTx) SaveWaitlistEntry(e *models.WaitlistEntry) error {
	return t.tx.Save(e).Error
}
