package dynamodb

import (
	"fmt"

	"github.com/legrandjeremy/maxence-rag/domain/keys"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

type updateKind int

const (
	opSet updateKind = iota
	opSetIfNotExists
	opIncrement
	opAdd
	opRemove
)

type updateOp struct {
	kind  updateKind
	name  string
	value interface{}
}

// UpdateSet is a typed partial update: only the attributes named here are
// touched. Entity services build one from their optional-field update
// structs, adding any index key pair that the change invalidates.
type UpdateSet struct {
	ops   []updateOp
	names map[string]struct{}
}

// NewUpdate returns an empty update.
func NewUpdate() *UpdateSet {
	return &UpdateSet{names: make(map[string]struct{})}
}

// immutable attributes are owned by the engine or define record identity.
var immutable = map[string]struct{}{
	AttrPK: {}, AttrSK: {}, AttrID: {}, AttrCreatedAt: {}, AttrUpdatedAt: {}, AttrEntityType: {},
}

func (u *UpdateSet) push(kind updateKind, name string, value interface{}) *UpdateSet {
	u.ops = append(u.ops, updateOp{kind: kind, name: name, value: value})
	u.names[name] = struct{}{}
	return u
}

// Set assigns an attribute.
func (u *UpdateSet) Set(name string, value interface{}) *UpdateSet {
	return u.push(opSet, name, value)
}

// SetIfNotExists assigns an attribute only when the stored item lacks it.
func (u *UpdateSet) SetIfNotExists(name string, value interface{}) *UpdateSet {
	return u.push(opSetIfNotExists, name, value)
}

// Increment rewrites name = name + delta. The attribute must already exist.
func (u *UpdateSet) Increment(name string, delta int) *UpdateSet {
	return u.push(opIncrement, name, delta)
}

// Add is the store's native atomic ADD; a missing attribute counts as zero.
func (u *UpdateSet) Add(name string, delta int) *UpdateSet {
	return u.push(opAdd, name, delta)
}

// Remove deletes an attribute.
func (u *UpdateSet) Remove(name string) *UpdateSet {
	return u.push(opRemove, name, nil)
}

// SetIndex rewrites an index key pair; a zero pair removes it so the record
// drops out of the index.
func (u *UpdateSet) SetIndex(idx keys.Index, p keys.Pair) *UpdateSet {
	pkName, skName := indexAttributes(idx)
	if p.IsZero() {
		return u.Remove(pkName).Remove(skName)
	}
	return u.Set(pkName, p.PK).Set(skName, p.SK)
}

// Has reports whether the update touches name.
func (u *UpdateSet) Has(name string) bool {
	_, ok := u.names[name]
	return ok
}

// Empty reports whether nothing but the timestamp would change.
func (u *UpdateSet) Empty() bool {
	return len(u.ops) == 0
}

// Names returns the touched attribute names in insertion order.
func (u *UpdateSet) Names() []string {
	out := make([]string, 0, len(u.ops))
	for _, op := range u.ops {
		out = append(out, op.name)
	}
	return out
}

// seedable immutable attributes may be written with SetIfNotExists, which
// never overwrites, so an upsert can create a well-formed record.
var seedable = map[string]struct{}{
	AttrID: {}, AttrCreatedAt: {}, AttrEntityType: {},
}

func (u *UpdateSet) validate() error {
	for _, op := range u.ops {
		if _, ok := seedable[op.name]; ok && op.kind == opSetIfNotExists {
			continue
		}
		if _, ok := immutable[op.name]; ok {
			return apperrors.NewValidationError(fmt.Sprintf("attribute %s cannot be updated", op.name))
		}
		if op.name == "" {
			return apperrors.NewValidationError("update attribute name is empty")
		}
	}
	return nil
}

// builder renders the update, always refreshing updatedAt.
func (u *UpdateSet) builder(updatedAt string) expression.UpdateBuilder {
	b := expression.Set(expression.Name(AttrUpdatedAt), expression.Value(updatedAt))
	for _, op := range u.ops {
		name := expression.Name(op.name)
		switch op.kind {
		case opSet:
			b = b.Set(name, expression.Value(op.value))
		case opSetIfNotExists:
			b = b.Set(name, expression.IfNotExists(name, expression.Value(op.value)))
		case opIncrement:
			b = b.Set(name, expression.Plus(name, expression.Value(op.value)))
		case opAdd:
			b = b.Add(name, expression.Value(op.value))
		case opRemove:
			b = b.Remove(name)
		}
	}
	return b
}

func indexAttributes(idx keys.Index) (string, string) {
	if idx == keys.IndexB {
		return AttrGSI2PK, AttrGSI2SK
	}
	return AttrGSI1PK, AttrGSI1SK
}
