package ringdb

import (
	"fmt"

	"github.com/google/uuid"
)

type Op int

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpDelete Op = 2
)

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

// Change describes one committed mutation of the primary sequence. Exactly
// one Change is produced per successful insert/update/delete; it drives the
// derived index sequences of the owning ring and is then delivered to every
// subscriber. Guid lets external consumers deduplicate deliveries.
type Change struct {
	Guid   string
	Op     Op
	Ring   string
	ID     uint64
	RawKey []byte

	// OldValue/NewValue are the serialized values in the mutated ring; nil
	// means no local entry on that side (NewValue is nil for deletes).
	OldValue *string
	NewValue *string
}

func newChange(op Op, ring string, id uint64, rawKey []byte, oldValue, newValue *string) *Change {
	return &Change{
		Guid:     uuid.New().String(),
		Op:       op,
		Ring:     ring,
		ID:       id,
		RawKey:   rawKey,
		OldValue: oldValue,
		NewValue: newValue,
	}
}

func (chg *Change) HasOld() bool { return chg.OldValue != nil }
func (chg *Change) HasNew() bool { return chg.NewValue != nil }

func (chg *Change) String() string {
	return fmt.Sprintf("%s %s/%d", chg.Op, chg.Ring, chg.ID)
}
