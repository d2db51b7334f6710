package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditAction string

const (
	ActionCreate           AuditAction = "create"
	ActionIncrease         AuditAction = "increase"
	ActionDecrease         AuditAction = "decrease"
	ActionDelete           AuditAction = "delete"
	ActionRestore          AuditAction = "restore"
	ActionEdit             AuditAction = "edit"
	ActionSale             AuditAction = "sale"
	ActionWarehouseDelete  AuditAction = "warehouse_delete"
	ActionWarehouseRestore AuditAction = "warehouse_restore"
)

// AuditDetails is the action-specific payload of an audit entry. Each action has exactly one
// payload type, returned by its Action method.
type AuditDetails interface {
	Action() AuditAction
}

type CreateDetails struct {
	Snapshot ProductSnapshot `bson:"product_snapshot" json:"product_snapshot"`
}

func (CreateDetails) Action() AuditAction { return ActionCreate }

// StockDeltaDetails backs both increase and decrease entries.
type StockDeltaDetails struct {
	Direction AuditAction `bson:"direction" json:"direction"`
	NewStock  int         `bson:"new_stock" json:"new_stock"`
}

func (d StockDeltaDetails) Action() AuditAction { return d.Direction }

type DeleteDetails struct {
	Snapshot ProductSnapshot `bson:"deleted_snapshot" json:"deleted_snapshot"`
	Token    string          `bson:"token" json:"token"`
}

func (DeleteDetails) Action() AuditAction { return ActionDelete }

type RestoreDetails struct {
	Token string `bson:"token" json:"token"`
}

func (RestoreDetails) Action() AuditAction { return ActionRestore }

type EditDetails struct {
	Previous ProductSnapshot `bson:"previous" json:"previous"`
	Current  ProductSnapshot `bson:"current" json:"current"`
}

func (EditDetails) Action() AuditAction { return ActionEdit }

type SaleDetails struct {
	OrderID         primitive.ObjectID `bson:"order_id" json:"order_id"`
	MerchantOrderID string             `bson:"merchant_order_id" json:"merchant_order_id"`
	Requested       int                `bson:"requested" json:"requested"`
	Applied         int                `bson:"applied" json:"applied"`
	NewStock        int                `bson:"new_stock" json:"new_stock"`
}

func (SaleDetails) Action() AuditAction { return ActionSale }

type WarehouseDeleteDetails struct {
	Token    string `bson:"token" json:"token"`
	Affected int    `bson:"affected" json:"affected"`
}

func (WarehouseDeleteDetails) Action() AuditAction { return ActionWarehouseDelete }

type WarehouseRestoreDetails struct {
	Token    string `bson:"token" json:"token"`
	Restored int    `bson:"restored" json:"restored"`
}

func (WarehouseRestoreDetails) Action() AuditAction { return ActionWarehouseRestore }

// ArchiveMarker is stamped into the details of audit entries whose warehouse was permanently
// deleted, under the "archive" key.
type ArchiveMarker struct {
	OriginalWarehouseID primitive.ObjectID `bson:"original_warehouse_id" json:"original_warehouse_id"`
	ArchivedAt          time.Time          `bson:"archived_at" json:"archived_at"`
}

// archiveKey is the details field holding the ArchiveMarker.
const archiveKey = "archive"

type AuditEntry struct {
	ID          primitive.ObjectID
	WarehouseID *primitive.ObjectID
	ProductID   *primitive.ObjectID
	UserID      primitive.ObjectID
	Delta       int
	Details     AuditDetails
	Archived    bool
	Archive     *ArchiveMarker
	CreatedAt   time.Time
}

func (e *AuditEntry) Action() AuditAction {
	if e.Details == nil {
		return ""
	}
	return e.Details.Action()
}

// auditDocument is the stored shape; details are decoded according to action.
type auditDocument struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty"`
	WarehouseID *primitive.ObjectID `bson:"warehouse"`
	ProductID   *primitive.ObjectID `bson:"product,omitempty"`
	UserID      primitive.ObjectID  `bson:"user"`
	Action      AuditAction         `bson:"action"`
	Delta       int                 `bson:"delta"`
	Details     bson.RawValue       `bson:"details"`
	Archived    bool                `bson:"archived"`
	CreatedAt   time.Time           `bson:"created_at"`
}

func (e AuditEntry) MarshalBSON() ([]byte, error) {
	if e.Details == nil {
		return nil, fmt.Errorf("audit entry without details")
	}
	details, err := marshalDetails(e.Details, e.Archive)
	if err != nil {
		return nil, err
	}
	return bson.Marshal(auditDocument{
		ID:          e.ID,
		WarehouseID: e.WarehouseID,
		ProductID:   e.ProductID,
		UserID:      e.UserID,
		Action:      e.Details.Action(),
		Delta:       e.Delta,
		Details:     details,
		Archived:    e.Archived,
		CreatedAt:   e.CreatedAt,
	})
}

func marshalDetails(d AuditDetails, archive *ArchiveMarker) (bson.RawValue, error) {
	raw, err := bson.Marshal(d)
	if err != nil {
		return bson.RawValue{}, fmt.Errorf("marshal audit details: %w", err)
	}
	if archive != nil {
		var doc bson.D
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return bson.RawValue{}, fmt.Errorf("marshal audit details: %w", err)
		}
		doc = append(doc, bson.E{Key: archiveKey, Value: archive})
		if raw, err = bson.Marshal(doc); err != nil {
			return bson.RawValue{}, fmt.Errorf("marshal audit details: %w", err)
		}
	}
	return bson.RawValue{Type: bson.TypeEmbeddedDocument, Value: raw}, nil
}

func (e *AuditEntry) UnmarshalBSON(data []byte) error {
	var doc auditDocument
	if err := bson.Unmarshal(data, &doc); err != nil {
		return err
	}

	details, err := decodeDetails(doc.Action, doc.Details)
	if err != nil {
		return err
	}
	var marker struct {
		Archive *ArchiveMarker `bson:"archive"`
	}
	if err := doc.Details.Unmarshal(&marker); err != nil {
		return fmt.Errorf("decode archive marker: %w", err)
	}

	*e = AuditEntry{
		ID:          doc.ID,
		WarehouseID: doc.WarehouseID,
		ProductID:   doc.ProductID,
		UserID:      doc.UserID,
		Delta:       doc.Delta,
		Details:     details,
		Archived:    doc.Archived,
		Archive:     marker.Archive,
		CreatedAt:   doc.CreatedAt,
	}
	return nil
}

func decodeDetails(action AuditAction, raw bson.RawValue) (AuditDetails, error) {
	var target AuditDetails
	switch action {
	case ActionCreate:
		target = &CreateDetails{}
	case ActionIncrease, ActionDecrease:
		target = &StockDeltaDetails{}
	case ActionDelete:
		target = &DeleteDetails{}
	case ActionRestore:
		target = &RestoreDetails{}
	case ActionEdit:
		target = &EditDetails{}
	case ActionSale:
		target = &SaleDetails{}
	case ActionWarehouseDelete:
		target = &WarehouseDeleteDetails{}
	case ActionWarehouseRestore:
		target = &WarehouseRestoreDetails{}
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}

	if err := raw.Unmarshal(target); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", action, err)
	}

	// callers switch on value types
	switch d := target.(type) {
	case *CreateDetails:
		return *d, nil
	case *StockDeltaDetails:
		d.Direction = action
		return *d, nil
	case *DeleteDetails:
		return *d, nil
	case *RestoreDetails:
		return *d, nil
	case *EditDetails:
		return *d, nil
	case *SaleDetails:
		return *d, nil
	case *WarehouseDeleteDetails:
		return *d, nil
	case *WarehouseRestoreDetails:
		return *d, nil
	}
	return target, nil
}
