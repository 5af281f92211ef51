package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// OrderRepository handles read/write operations for orders and their audit logs.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating OrderRepository with custom DB instance")

	return &OrderRepository{db: db}
}

// OrderSearchOptions narrows a Search call. Zero values mean "no filter"
// except UserID, which is always required.
type OrderSearchOptions struct {
	UserID        uint
	Venue         *string
	Symbol        *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Create inserts a new order into the database.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "Create",
		"venue":  order.Venue,
		"symbol": order.Symbol,
		"side":   order.Side,
		"qty":    order.RequestedAmount,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching order by ID")

	var order model.Order

	err := r.db.WithContext(ctx).
		Preload("Logs").
		First(&order, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindByClientID fetches an order by the client uuid sent with the
// submission. Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByClientID(
	ctx context.Context,
	userID uint,
	clientID string,
) (*model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "FindByClientID",
		"user_id":   userID,
		"client_id": clientID,
	}).Debug("Fetching order by client ID")

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("client_id = ? AND user_id = ?", clientID, userID).
		Order("created_at DESC").
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":      "OrderRepository",
				"op":        "FindByClientID",
				"user_id":   userID,
				"client_id": clientID,
			}).Info("Order not found by client ID")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "FindByClientID",
			"user_id":   userID,
			"client_id": clientID,
		}).WithError(err).Error("Failed to fetch order by client ID")

		return nil, err
	}

	return &order, nil
}

// Search returns the user's orders newest first, narrowed by the given
// options.
func (r *OrderRepository) Search(
	ctx context.Context,
	opts OrderSearchOptions,
) ([]model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":    "OrderRepository",
		"op":      "Search",
		"user_id": opts.UserID,
	}).Debug("Searching orders")

	query := r.db.WithContext(ctx).
		Where("user_id = ?", opts.UserID)

	if opts.Venue != nil {
		query = query.Where("venue = ?", *opts.Venue)
	}
	if opts.Symbol != nil {
		query = query.Where("symbol = ?", *opts.Symbol)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}
	if opts.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *opts.CreatedBefore)
	}

	query = query.Order("created_at DESC, id DESC")

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "Search",
			"user_id": opts.UserID,
		}).WithError(err).Error("Failed to search orders")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "Search",
		"user_id":     opts.UserID,
		"rows_return": len(orders),
	}).Info("Orders fetched")

	return orders, nil
}

// FindNeedingReconcile lists non-terminal orders whose submission timed out
// with unknown fate, for the reconciliation loop.
func (r *OrderRepository) FindNeedingReconcile(
	ctx context.Context,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("needs_reconcile = ? AND status IN ?",
			true,
			[]string{model.OrderStatusPending, model.OrderStatusPartiallyFilled},
		).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindNeedingReconcile",
		}).WithError(err).Error("Failed to fetch orders needing reconcile")

		return nil, err
	}

	return orders, nil
}

// FindOpenProtective lists active stop-loss and take-profit orders for the
// monitor loop.
func (r *OrderRepository) FindOpenProtective(
	ctx context.Context,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("role IN ? AND status IN ?",
			[]string{model.OrderRoleStopLoss, model.OrderRoleTakeProfit},
			[]string{model.OrderStatusPending, model.OrderStatusPartiallyFilled},
		).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindOpenProtective",
		}).WithError(err).Error("Failed to fetch open protective orders")

		return nil, err
	}

	return orders, nil
}

// ---------------------------------------------------
// Transaction helpers
// ---------------------------------------------------

// CreateWithAutoLog inserts the order and its first audit log row inside one
// transaction.
func (r *OrderRepository) CreateWithAutoLog(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "CreateWithAutoLog",
		"venue":  order.Venue,
		"symbol": order.Symbol,
		"side":   order.Side,
	}).Info("Creating order with automatic audit log")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			logger.WithError(err).Error("Failed to create order inside transaction")
			return err
		}

		logEntry := &model.OrderLog{
			OrderID:   order.ID,
			Venue:     order.Venue,
			Symbol:    order.Symbol,
			Side:      order.Side,
			OrderType: order.OrderType,
			Quantity:  order.RequestedAmount,
			Price:     order.Price,
			Status:    order.Status,
			CreatedAt: time.Now(),
		}

		if err := tx.Create(logEntry).Error; err != nil {
			logger.WithError(err).Error("Failed to create auto audit log")
			return err
		}

		return nil
	})
}

// UpdateStatusWithAutoLog moves the order to newStatus and records an audit
// log row in one transaction. Transitions the lifecycle forbids are rejected.
func (r *OrderRepository) UpdateStatusWithAutoLog(
	ctx context.Context,
	orderID uint,
	newStatus string,
	reason string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "UpdateStatusWithAutoLog",
		"order_id":  orderID,
		"newStatus": newStatus,
		"reason":    reason,
	}).Info("Updating order status with automatic audit log")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order

		if err := tx.First(&order, orderID).Error; err != nil {
			logger.WithError(err).Error("Failed to load order inside transaction")
			return err
		}

		if !order.CanTransition(newStatus) {
			return model.ErrInvalidTransition(order.Status, newStatus)
		}

		updates := map[string]interface{}{
			"status":          newStatus,
			"needs_reconcile": false,
		}
		if newStatus == model.OrderStatusFilled {
			now := time.Now()
			updates["executed_at"] = &now
		}

		if err := tx.
			Model(&model.Order{}).
			Where("id = ?", orderID).
			Updates(updates).Error; err != nil {
			logger.WithError(err).Error("Failed to update order status inside transaction")
			return err
		}

		logEntry := &model.OrderLog{
			OrderID:   order.ID,
			Venue:     order.Venue,
			Symbol:    order.Symbol,
			Side:      order.Side,
			OrderType: order.OrderType,
			Quantity:  order.RequestedAmount,
			Price:     order.Price,
			Status:    newStatus,
			Reason:    reason,
			CreatedAt: time.Now(),
		}

		if err := tx.Create(logEntry).Error; err != nil {
			logger.WithError(err).Error("Failed to create auto audit log on status update")
			return err
		}

		return nil
	})
}

// SetNeedsReconcile flags an order whose submission timed out with unknown
// fate so the monitor resolves it instead of anyone resubmitting.
func (r *OrderRepository) SetNeedsReconcile(
	ctx context.Context,
	orderID uint,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "SetNeedsReconcile",
		"order_id": orderID,
	}).Warn("Flagging order for reconciliation")

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("needs_reconcile", true).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "SetNeedsReconcile",
			"order_id": orderID,
		}).WithError(err).Error("Failed to flag order for reconciliation")

		return err
	}

	return nil
}

// UpdateFill records execution details reported by the venue.
func (r *OrderRepository) UpdateFill(
	ctx context.Context,
	orderID uint,
	externalID string,
	filledAmount float64,
	averagePrice float64,
	fees float64,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "UpdateFill",
		"order_id":    orderID,
		"external_id": externalID,
		"filled":      filledAmount,
	}).Debug("Updating order fill details")

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"external_id":   externalID,
			"filled_amount": filledAmount,
			"average_price": averagePrice,
			"fees":          fees,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateFill",
			"order_id": orderID,
		}).WithError(err).Error("Failed to update order fill details")

		return err
	}

	return nil
}
