package dynamodb

import (
	"fmt"

	"github.com/legrandjeremy/maxence-rag/domain/keys"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names shared by every record.
const (
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrGSI2PK     = "GSI2PK"
	AttrGSI2SK     = "GSI2SK"
	AttrEntityType = "EntityType"
	AttrID         = "id"
	AttrCreatedAt  = "createdAt"
	AttrUpdatedAt  = "updatedAt"
)

// Header is the engine-owned part of every stored record. Entity records
// embed it so their keys and bookkeeping fields flatten into the item.
type Header struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK     string `dynamodbav:"GSI1SK,omitempty"`
	GSI2PK     string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK     string `dynamodbav:"GSI2SK,omitempty"`
	EntityType string `dynamodbav:"EntityType"`
	ID         string `dynamodbav:"id"`
	CreatedAt  string `dynamodbav:"createdAt"`
	UpdatedAt  string `dynamodbav:"updatedAt"`
}

// NewHeader builds a header from a derived key set.
func NewHeader(entityType keys.EntityType, id string, ks keys.Set) Header {
	return Header{
		PK:         ks.Primary.PK,
		SK:         ks.Primary.SK,
		GSI1PK:     ks.IndexA.PK,
		GSI1SK:     ks.IndexA.SK,
		GSI2PK:     ks.IndexB.PK,
		GSI2SK:     ks.IndexB.SK,
		EntityType: string(entityType),
		ID:         id,
	}
}

// Key returns the primary key pair.
func (h Header) Key() keys.Pair {
	return keys.Pair{PK: h.PK, SK: h.SK}
}

// IndexPair returns the key pair stored for an alternate index.
func (h Header) IndexPair(idx keys.Index) keys.Pair {
	if idx == keys.IndexB {
		return keys.Pair{PK: h.GSI2PK, SK: h.GSI2SK}
	}
	return keys.Pair{PK: h.GSI1PK, SK: h.GSI1SK}
}

// Type returns the parsed entity tag.
func (h Header) Type() keys.EntityType {
	return keys.EntityType(h.EntityType)
}

// StoredRecord is a record as read back from the table: the decoded header
// plus the full raw item for entity-specific decoding.
type StoredRecord struct {
	Header
	Item map[string]types.AttributeValue
}

// Decode unmarshals the raw item into an entity record.
func (r StoredRecord) Decode(out interface{}) error {
	if err := attributevalue.UnmarshalMap(r.Item, out); err != nil {
		return fmt.Errorf("failed to decode %s record %s/%s: %w", r.EntityType, r.PK, r.SK, err)
	}
	return nil
}

func newStoredRecord(item map[string]types.AttributeValue) (StoredRecord, error) {
	var h Header
	if err := attributevalue.UnmarshalMap(item, &h); err != nil {
		return StoredRecord{}, fmt.Errorf("failed to decode record header: %w", err)
	}
	return StoredRecord{Header: h, Item: item}, nil
}

func newStoredRecords(items []map[string]types.AttributeValue) ([]StoredRecord, error) {
	out := make([]StoredRecord, 0, len(items))
	for _, item := range items {
		rec, err := newStoredRecord(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func keyAttributes(p keys.Pair) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: p.PK},
		AttrSK: &types.AttributeValueMemberS{Value: p.SK},
	}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
