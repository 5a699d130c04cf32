package payments

import (
	"time"

	"github.com/openlocale/website/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the payment persistence operations used by the
// service. WithLock and WithTransaction hand a transaction-scoped Repository
// to the callback so every state-changing sequence runs in one transaction.
type Repository interface {
	GetByUUID(uuid string) (*models.Payment, error)
	Create(p *models.Payment) error
	Save(p *models.Payment) error
	// Renewals returns the payments whose Repeat points at the given
	// payment, oldest first.
	Renewals(uuid string) ([]models.Payment, error)
	// DueRecurring returns recurring payments whose next charge date has
	// passed.
	DueRecurring(now time.Time) ([]models.Payment, error)
	GetOrCreateCustomer(origin string, userID int64, email string) (*models.Customer, error)
	SaveCustomer(c *models.Customer) error
	// WithLock runs fn in a transaction with the payment row locked for
	// update.
	WithLock(uuid string, fn func(tx Repository, p *models.Payment) error) error
	WithTransaction(fn func(tx Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByUUID(uuid string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Preload("Customer").Where("uuid = ?", uuid).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) Save(p *models.Payment) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) Renewals(uuid string) ([]models.Payment, error) {
	var renewals []models.Payment
	err := r.db.Where("`repeat` = ?", uuid).Order("created ASC").Find(&renewals).Error
	return renewals, err
}

func (r *gormRepository) DueRecurring(now time.Time) ([]models.Payment, error) {
	var candidates []models.Payment
	err := r.db.Preload("Customer").
		Where("recurring <> '' AND state IN ?", []int{models.PaymentAccepted, models.PaymentProcessed}).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var due []models.Payment
	for _, p := range candidates {
		years, months, err := models.PeriodDelta(p.Recurring)
		if err != nil {
			continue
		}
		renewals, err := r.Renewals(p.UUID)
		if err != nil {
			return nil, err
		}
		// The last charge attempt in the chain, rejected ones included,
		// so failed renewals are not retried before the next pass.
		lastCharge := p.Created
		for _, renewal := range renewals {
			if renewal.Created.After(lastCharge) {
				lastCharge = renewal.Created
			}
		}
		if !lastCharge.AddDate(years, months, 0).After(now) {
			due = append(due, p)
		}
	}
	return due, nil
}

func (r *gormRepository) GetOrCreateCustomer(origin string, userID int64, email string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Where(models.Customer{Origin: origin, UserID: userID}).
		Attrs(models.Customer{Email: email}).
		FirstOrCreate(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) SaveCustomer(c *models.Customer) error {
	return r.db.Save(c).Error
}

func (r *gormRepository) WithLock(uuid string, fn func(tx Repository, p *models.Payment) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("uuid = ?", uuid).First(&p).Error
		if err != nil {
			return err
		}
		if err := tx.Model(&p).Association("Customer").Find(&p.Customer); err != nil {
			return err
		}
		return fn(&gormRepository{db: tx}, &p)
	})
}

func (r *gormRepository) WithTransaction(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
