package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/gateway"
	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/metrics"
	"github.com/NineNineAFK/verto/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type PaymentGateway interface {
	Token(ctx context.Context) (string, error)
	Initiate(ctx context.Context, req gateway.InitiateRequest) (json.RawMessage, error)
	QueryStatus(ctx context.Context, merchantOrderID string) (*domain.GatewayStatus, error)
}

type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, s *domain.Settlement) error
}

var merchantOrderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,63}$`)

type PaymentService struct {
	uow         repository.UnitOfWork
	orders      repository.OrderRepository
	products    repository.ProductRepository
	carts       repository.CartRepository
	users       repository.UserRepository
	audits      repository.AuditRepository
	cartService *CartService
	gateway     PaymentGateway
	publisher   SettlementPublisher
	metrics     *metrics.Metrics
	redirectURL string
	now         func() time.Time
}

type PaymentDeps struct {
	UnitOfWork  repository.UnitOfWork
	Orders      repository.OrderRepository
	Products    repository.ProductRepository
	Carts       repository.CartRepository
	Users       repository.UserRepository
	Audits      repository.AuditRepository
	CartService *CartService
	Gateway     PaymentGateway
	Publisher   SettlementPublisher
	Metrics     *metrics.Metrics
	// RedirectURL is where the gateway sends the buyer back; the merchant order id is
	// appended as a query parameter.
	RedirectURL string
}

func NewPaymentService(d PaymentDeps) *PaymentService {
	return &PaymentService{
		uow:         d.UnitOfWork,
		orders:      d.Orders,
		products:    d.Products,
		carts:       d.Carts,
		users:       d.Users,
		audits:      d.Audits,
		cartService: d.CartService,
		gateway:     d.Gateway,
		publisher:   d.Publisher,
		metrics:     d.Metrics,
		redirectURL: d.RedirectURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type InitiateResult struct {
	MerchantOrderID string
	Order           *domain.Order
	// Gateway is the gateway's answer, passed through unchanged.
	Gateway json.RawMessage
}

// Initiate snapshots the user's cart into a pending order and asks the gateway to start a
// checkout for it. merchantOrderID may be empty, in which case one is generated.
func (s *PaymentService) Initiate(ctx context.Context, userID primitive.ObjectID, merchantOrderID string) (*InitiateResult, error) {
	if merchantOrderID != "" && !merchantOrderIDPattern.MatchString(merchantOrderID) {
		return nil, domain.Validationf("merchantOrderId must be 1-63 letters, digits, '_' or '-'")
	}

	view, err := s.cartService.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(view.PurchasableLines()) == 0 || !view.TotalAmount.IsPositive() {
		return nil, domain.ErrEmptyCart
	}

	if merchantOrderID == "" {
		merchantOrderID = "ORDER_" + uuid.NewString()
	}
	log := logging.FromContext(ctx).With(zap.String("merchant_order_id", merchantOrderID))

	order := domain.NewPendingOrder(userID, view, merchantOrderID, s.now())
	if err := s.orders.Insert(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, domain.Validationf("merchantOrderId %s is already in use", merchantOrderID)
		}
		return nil, err
	}

	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		MerchantOrderID: merchantOrderID,
		AmountMinor:     domain.MinorUnits(view.TotalAmount),
		RedirectURL:     s.redirectTarget(merchantOrderID),
	})
	if err != nil {
		// the order stays pending; a later reconcile settles it if the gateway did accept it
		log.Error("payment initiation failed", zap.Error(err))
		return nil, err
	}

	log.Info("payment initiated", zap.String("amount", view.TotalAmount.StringFixed(2)))
	return &InitiateResult{MerchantOrderID: merchantOrderID, Order: order, Gateway: resp}, nil
}

func (s *PaymentService) redirectTarget(merchantOrderID string) string {
	return s.redirectURL + "?merchantOrderId=" + url.QueryEscape(merchantOrderID)
}

// Reconcile pulls the gateway's status for merchantOrderID and applies it. Completion side
// effects run in the same transaction as the pending to completed transition, and only for
// the call that wins that transition, so repeated reconciles decrement stock once.
func (s *PaymentService) Reconcile(ctx context.Context, merchantOrderID string) (*domain.Settlement, error) {
	if merchantOrderID == "" {
		return nil, domain.Validationf("merchantOrderId is required")
	}
	log := logging.FromContext(ctx).With(zap.String("merchant_order_id", merchantOrderID))

	gw, err := s.gateway.QueryStatus(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	mapped := domain.MapGatewayState(gw.State)
	settlement := &domain.Settlement{MerchantOrderID: merchantOrderID, Status: mapped}
	var transitioned bool

	err = s.uow.Do(ctx, func(tx repository.Tx) error {
		settlement.Order, settlement.Applied, transitioned = nil, false, false

		order, err := s.orders.FindByMerchantID(tx, merchantOrderID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		settlement.Order = order

		if !domain.CanTransitionTo(order.Status(), mapped) {
			// terminal already; report what is stored
			settlement.Status = order.Status()
			return nil
		}

		at := s.now()
		won, err := s.orders.Transition(tx, merchantOrderID, mapped, *gw, at)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		transitioned = true
		applyGatewayStatus(order, mapped, gw, at)

		if mapped != domain.PaymentStatusCompleted {
			return nil
		}
		if err := s.completeOrder(tx, order); err != nil {
			return err
		}
		settlement.Applied = true
		return nil
	})
	if err != nil {
		log.Error("settlement failed", zap.Error(err))
		return nil, err
	}

	if settlement.Order == nil {
		log.Warn("reconciled unknown order", zap.String("gateway_state", gw.State))
		return settlement, nil
	}

	s.metrics.Settlement(settlement.Status.String(), settlement.Applied)
	if transitioned && settlement.Status.IsTerminal() {
		s.publish(ctx, settlement)
	}
	log.Info("order reconciled",
		zap.String("status", settlement.Status.String()),
		zap.Bool("applied", settlement.Applied))
	return settlement, nil
}

// completeOrder decrements stock for every order line, clamped at zero, and clears the
// buyer's cart in both representations.
func (s *PaymentService) completeOrder(tx repository.Tx, order *domain.Order) error {
	log := logging.FromContext(tx.Context())

	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		p, err := s.products.FindByID(tx, item.ProductID)
		if errors.Is(err, repository.ErrProductNotFound) {
			log.Warn("ordered product no longer exists", zap.String("product_id", item.ProductID.Hex()))
			continue
		}
		if err != nil {
			return err
		}

		applied := min(item.Quantity, max(p.StockQuantity, 0))
		newStock := p.StockQuantity
		if applied > 0 {
			if newStock, err = s.products.AdjustStock(tx, p.ID, -applied); err != nil {
				return err
			}
		}
		if applied < item.Quantity {
			log.Warn("sale clamped to available stock",
				zap.String("product_id", p.ID.Hex()),
				zap.Int("requested", item.Quantity),
				zap.Int("applied", applied))
		}

		warehouseID, productID := p.WarehouseID, p.ID
		err = s.audits.Append(tx, &domain.AuditEntry{
			WarehouseID: &warehouseID,
			ProductID:   &productID,
			UserID:      order.UserID,
			Delta:       -applied,
			Details: domain.SaleDetails{
				OrderID:         order.ID,
				MerchantOrderID: order.PaymentDetails.MerchantTransactionID,
				Requested:       item.Quantity,
				Applied:         applied,
				NewStock:        newStock,
			},
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
	}

	if err := s.carts.DeleteCart(tx, order.UserID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	return s.users.ClearEmbeddedCart(tx, order.UserID)
}

func applyGatewayStatus(order *domain.Order, status domain.PaymentStatus, gw *domain.GatewayStatus, at time.Time) {
	order.PaymentDetails.Status = status
	if gw.TransactionID != "" {
		order.PaymentDetails.TransactionID = gw.TransactionID
	}
	if gw.Timestamp != nil {
		order.PaymentDetails.PaymentTimestamp = gw.Timestamp
	}
	if gw.ErrorCode != "" {
		order.PaymentDetails.ErrorMessage = gw.ErrorCode
	}
	order.UpdatedAt = at
}

func (s *PaymentService) publish(ctx context.Context, settlement *domain.Settlement) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSettlement(ctx, settlement); err != nil {
		logging.FromContext(ctx).Error("failed to publish settlement",
			zap.String("merchant_order_id", settlement.MerchantOrderID),
			zap.Error(err))
	}
}

// Order returns the stored order for a merchant order id.
func (s *PaymentService) Order(ctx context.Context, merchantOrderID string) (*domain.Order, error) {
	if merchantOrderID == "" {
		return nil, domain.Validationf("merchantOrderId is required")
	}
	return s.orders.FindByMerchantID(repository.NoTx(ctx), merchantOrderID)
}

// CheckGateway verifies that a gateway token can be obtained.
func (s *PaymentService) CheckGateway(ctx context.Context) error {
	_, err := s.gateway.Token(ctx)
	return err
}
