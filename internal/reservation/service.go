package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/redis"
)

const (
	defaultHoldWindow = 10 * time.Minute
	defaultCooldown   = 5 * time.Second
)

// Reservation outcomes reported to metrics.
const (
	outcomeGranted      = "granted"
	outcomeInsufficient = "insufficient"
	outcomeRateLimited  = "rate_limited"
	outcomeReleased     = "released"
	outcomeExpired      = "expired"
	outcomeError        = "error"
)

type txDB interface {
	db.TxRunner
	DB() *gorm.DB
}

// ServiceParams wires the reservation manager.
type ServiceParams struct {
	DB         txDB
	Ledger     inventory.Ledger
	Cooldowns  redis.CooldownStore
	Metrics    *metrics.EngineMetrics
	Logger     *logger.Logger
	HoldWindow time.Duration
	Cooldown   time.Duration
}

// Service manages per-shopper, per-product stock locks.
type Service struct {
	db         txDB
	ledger     inventory.Ledger
	cooldowns  redis.CooldownStore
	metrics    *metrics.EngineMetrics
	logg       *logger.Logger
	holdWindow time.Duration
	cooldown   time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock ledger required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	holdWindow := params.HoldWindow
	if holdWindow <= 0 {
		holdWindow = defaultHoldWindow
	}
	cooldown := params.Cooldown
	if cooldown < 0 {
		cooldown = defaultCooldown
	}
	return &Service{
		db:         params.DB,
		ledger:     params.Ledger,
		cooldowns:  params.Cooldowns,
		metrics:    params.Metrics,
		logg:       logg,
		holdWindow: holdWindow,
		cooldown:   cooldown,
		now:        time.Now,
	}, nil
}

// Reserve sets the shopper's hold on product to qty. An existing live lock is
// resized by the delta; an expired one is compensated and replaced.
func (s *Service) Reserve(ctx context.Context, shopperID, productID uuid.UUID, qty int, sessionID string) (*models.StockLock, error) {
	lock, err := s.reserve(ctx, shopperID, productID, qty, sessionID)
	s.metrics.Reservation(reserveOutcome(err))
	return lock, err
}

func (s *Service) reserve(ctx context.Context, shopperID, productID uuid.UUID, qty int, sessionID string) (*models.StockLock, error) {
	if shopperID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shopper and product are required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if s.coolingDown(ctx, shopperID, productID) {
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "reservation recently released, try again shortly").
			WithDetails(map[string]any{"product_id": productID})
	}

	var result models.StockLock
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.WithContext(ctx).Select("id", "is_active").Where("id = ?", productID).Take(&product).Error; err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
				WithDetails(map[string]any{"product_id": productID})
		}

		now := s.now().UTC()
		existing, err := findLock(ctx, tx, shopperID, productID)
		if err != nil {
			return err
		}

		if existing != nil && existing.ActiveAt(now) {
			if now.Before(existing.CooldownUntil) {
				return pkgerrors.New(pkgerrors.CodeRateLimit, "reservation changed too recently").
					WithDetails(map[string]any{"product_id": productID, "retry_at": existing.CooldownUntil})
			}
			updated, err := s.resize(ctx, tx, *existing, qty, sessionID, now)
			if err != nil {
				return err
			}
			result = updated
			return nil
		}

		if existing != nil {
			if err := s.dropExpired(ctx, tx, *existing, now); err != nil {
				return err
			}
		}

		ok, err := s.ledger.Hold(ctx, tx, productID, qty)
		if err != nil {
			return err
		}
		if !ok {
			return insufficient(ctx, tx, productID, qty)
		}

		lock := models.StockLock{
			UserID:        shopperID,
			ProductID:     productID,
			SessionID:     sessionID,
			Quantity:      qty,
			ExpiresAt:     now.Add(s.holdWindow),
			CooldownUntil: now.Add(s.cooldown),
		}
		if err := tx.WithContext(ctx).Create(&lock).Error; err != nil {
			if db.IsUniqueViolation(err, "ux_stock_locks_user_product") {
				return pkgerrors.New(pkgerrors.CodeStockRaceLost, "concurrent reservation for the same product").
					WithDetails(map[string]any{"product_id": productID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock lock")
		}
		result = lock
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":    shopperID.String(),
		"product_id": productID.String(),
		"quantity":   result.Quantity,
		"expires_at": result.ExpiresAt,
	})
	s.logg.Info(logCtx, "stock reserved")
	return &result, nil
}

func (s *Service) resize(ctx context.Context, tx *gorm.DB, lock models.StockLock, qty int, sessionID string, now time.Time) (models.StockLock, error) {
	delta := qty - lock.Quantity
	switch {
	case delta > 0:
		ok, err := s.ledger.Hold(ctx, tx, lock.ProductID, delta)
		if err != nil {
			return lock, err
		}
		if !ok {
			return lock, insufficient(ctx, tx, lock.ProductID, delta)
		}
	case delta < 0:
		ok, err := s.ledger.Unhold(ctx, tx, lock.ProductID, -delta)
		if err != nil {
			return lock, err
		}
		if !ok {
			return lock, pkgerrors.New(pkgerrors.CodeTransactionAborted, "reserved counter below held quantity")
		}
	}

	expiresAt := now.Add(s.holdWindow)
	cooldownUntil := now.Add(s.cooldown)
	res := tx.WithContext(ctx).Exec(`
		UPDATE stock_locks
		SET quantity = ?, session_id = ?, expires_at = ?, cooldown_until = ?, updated_at = ?
		WHERE id = ? AND quantity = ? AND expires_at > ?
	`, qty, sessionID, expiresAt, cooldownUntil, now, lock.ID, lock.Quantity, now)
	ok, err := db.Applied(res)
	if err != nil {
		return lock, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock lock")
	}
	if !ok {
		return lock, pkgerrors.New(pkgerrors.CodeStockRaceLost, "reservation changed concurrently").
			WithDetails(map[string]any{"product_id": lock.ProductID})
	}

	lock.Quantity = qty
	lock.SessionID = sessionID
	lock.ExpiresAt = expiresAt
	lock.CooldownUntil = cooldownUntil
	return lock, nil
}

// dropExpired removes a lock the sweeper has not reached yet and hands its
// quantity back. Losing the delete to the sweeper is fine: it unholds instead.
func (s *Service) dropExpired(ctx context.Context, tx *gorm.DB, lock models.StockLock, now time.Time) error {
	removed, err := deleteExpiredLock(ctx, tx, lock.ID, now)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	return s.unholdLock(ctx, tx, lock)
}

// unholdLock hands a deleted lock's quantity back. reserved below the lock's
// quantity means the ledger drifted; the caller's transaction must abort.
func (s *Service) unholdLock(ctx context.Context, tx *gorm.DB, lock models.StockLock) error {
	ok, err := s.ledger.Unhold(ctx, tx, lock.ProductID, lock.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below lock quantity").
			WithDetails(map[string]any{"product_id": lock.ProductID, "quantity": lock.Quantity})
	}
	return nil
}

// Release drops the shopper's hold and starts the cooldown. Releasing a lock
// that no longer exists succeeds.
func (s *Service) Release(ctx context.Context, shopperID, productID uuid.UUID) error {
	if shopperID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shopper and product are required")
	}

	released := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		lock, err := findLock(ctx, tx, shopperID, productID)
		if err != nil || lock == nil {
			return err
		}
		res := tx.WithContext(ctx).Exec(`DELETE FROM stock_locks WHERE id = ? AND quantity = ?`, lock.ID, lock.Quantity)
		ok, err := db.Applied(res)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stock lock")
		}
		if !ok {
			return nil
		}
		if err := s.unholdLock(ctx, tx, *lock); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		s.metrics.Reservation(outcomeError)
		return err
	}
	if !released {
		return nil
	}
	s.metrics.Reservation(outcomeReleased)
	s.startCooldown(ctx, shopperID, productID)
	return nil
}

// ExpireStale deletes up to limit locks whose hold window has passed and
// compensates reserved once per deleted row. Each lock gets its own
// transaction so one bad row does not block the rest.
func (s *Service) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()

	var stale []models.StockLock
	if err := s.db.DB().WithContext(ctx).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired stock locks")
	}

	expired := 0
	var errs error
	for _, lock := range stale {
		lock := lock
		removed := false
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			removed, err = deleteExpiredLock(ctx, tx, lock.ID, now)
			if err != nil || !removed {
				return err
			}
			return s.unholdLock(ctx, tx, lock)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire lock %s: %w", lock.ID, err))
			continue
		}
		if removed {
			expired++
		}
	}
	for i := 0; i < expired; i++ {
		s.metrics.Reservation(outcomeExpired)
	}
	return expired, errs
}

// ListActive returns the shopper's live holds.
func (s *Service) ListActive(ctx context.Context, shopperID uuid.UUID) ([]models.StockLock, error) {
	if shopperID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shopper is required")
	}
	var locks []models.StockLock
	err := s.db.DB().WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", shopperID, s.now().UTC()).
		Order("created_at ASC").
		Find(&locks).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock locks")
	}
	return locks, nil
}

func (s *Service) coolingDown(ctx context.Context, shopperID, productID uuid.UUID) bool {
	if s.cooldowns == nil || s.cooldown <= 0 {
		return false
	}
	exists, err := s.cooldowns.Exists(ctx, s.cooldowns.CooldownKey(shopperID.String(), productID.String()))
	if err != nil {
		// fail open: after a release no lock row is left to carry cooldown_until
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "reservation cooldown lookup failed")
		return false
	}
	return exists
}

func (s *Service) startCooldown(ctx context.Context, shopperID, productID uuid.UUID) {
	if s.cooldowns == nil || s.cooldown <= 0 {
		return
	}
	key := s.cooldowns.CooldownKey(shopperID.String(), productID.String())
	if err := s.cooldowns.Set(ctx, key, "1", s.cooldown); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "reservation cooldown not recorded")
	}
}

func findLock(ctx context.Context, tx *gorm.DB, shopperID, productID uuid.UUID) (*models.StockLock, error) {
	var lock models.StockLock
	err := tx.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", shopperID, productID).
		Take(&lock).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock lock")
	}
	return &lock, nil
}

func deleteExpiredLock(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(`DELETE FROM stock_locks WHERE id = ? AND expires_at <= ?`, id, now)
	ok, err := db.Applied(res)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete expired stock lock")
	}
	return ok, nil
}

func insufficient(ctx context.Context, tx *gorm.DB, productID uuid.UUID, requested int) error {
	details := map[string]any{"product_id": productID, "requested": requested}
	var product models.Product
	if err := tx.WithContext(ctx).Select("on_hand", "reserved").Where("id = ?", productID).Take(&product).Error; err == nil {
		details["available"] = product.Available()
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to reserve").WithDetails(details)
}

func reserveOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeGranted
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		return outcomeInsufficient
	case pkgerrors.IsCode(err, pkgerrors.CodeRateLimit):
		return outcomeRateLimited
	default:
		return outcomeError
	}
}
