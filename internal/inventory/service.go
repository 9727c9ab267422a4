package inventory

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/ariefcatur/go-pos-checkout/internal/audit"
	"github.com/ariefcatur/go-pos-checkout/internal/auth"
	"go.uber.org/zap"
)

const (
	MaxAdjustDelta  = 1000
	MinReasonLength = 5
	MaxReasonLength = 200
)

// Service is the manager-facing front of the ledger: it checks capability and
// input, and writes the audit record for committed corrections.
type Service struct {
	Ledger Ledger
	Audit  audit.Sink
	Log    *zap.Logger
}

func (s *Service) List(ctx context.Context) ([]Row, error) { return s.Ledger.List(ctx) }

func (s *Service) Level(ctx context.Context, catalogItemID string) (int, error) {
	return s.Ledger.Level(ctx, catalogItemID)
}

// Adjust applies a manual restock or shrinkage correction. Rejected attempts
// leave no audit entry.
func (s *Service) Adjust(ctx context.Context, actor auth.Principal, catalogItemID string, delta int, reason string) (Adjustment, error) {
	if !actor.Role.CanManage() {
		return Adjustment{}, apperr.Forbidden("role %s may not adjust inventory", actor.Role)
	}
	reason = strings.TrimSpace(reason)
	if delta < -MaxAdjustDelta || delta > MaxAdjustDelta {
		return Adjustment{}, apperr.Validation("delta must be within [-%d, %d]", MaxAdjustDelta, MaxAdjustDelta)
	}
	if n := len(reason); n < MinReasonLength || n > MaxReasonLength {
		return Adjustment{}, apperr.Validation("reason must be %d-%d characters", MinReasonLength, MaxReasonLength)
	}

	adj, err := s.Ledger.Adjust(ctx, catalogItemID, delta)
	if err != nil {
		s.Log.Info("inventory adjust rejected",
			zap.String("catalog_item_id", catalogItemID), zap.Int("delta", delta), zap.Error(err))
		return Adjustment{}, err
	}

	s.Audit.Record(ctx, audit.NewEntry(actor.ID, audit.ActionAdjustStock, audit.EntityInventory, catalogItemID, map[string]any{
		"delta":            delta,
		"reason":           reason,
		"previousQuantity": adj.PreviousQuantity,
		"newQuantity":      adj.Row.QuantityOnHand,
	}))
	s.Log.Info("inventory adjusted",
		zap.String("catalog_item_id", catalogItemID),
		zap.Int("previous", adj.PreviousQuantity),
		zap.Int("current", adj.Row.QuantityOnHand))
	return adj, nil
}
