package reqpool

import (
	"encoding/json"
	"errors"
	"fmt"
)

// KeyEnvelope is the JSON form of a RequestKey: {"kind": ..., "key": {...}}.
type KeyEnvelope struct {
	Kind RequestKind     `json:"kind"`
	Key  json.RawMessage `json:"key"`
}

// EntityEnvelope carries a key and its entity: {"kind": ..., "key": {...}, "entity": {...}}.
type EntityEnvelope struct {
	KeyEnvelope
	Entity json.RawMessage `json:"entity"`
}

// NewKeyEnvelope wraps key for transport.
func NewKeyEnvelope(key RequestKey) (KeyEnvelope, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return KeyEnvelope{}, fmt.Errorf("marshal %s key: %w", key.Kind(), err)
	}
	return KeyEnvelope{Kind: key.Kind(), Key: raw}, nil
}

// NewEntityEnvelope wraps key and entity for transport.
func NewEntityEnvelope(key RequestKey, entity RequestEntity) (EntityEnvelope, error) {
	if key.Kind() != entity.Kind() {
		return EntityEnvelope{}, fmt.Errorf("key kind %s does not match entity kind %s", key.Kind(), entity.Kind())
	}
	ke, err := NewKeyEnvelope(key)
	if err != nil {
		return EntityEnvelope{}, err
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return EntityEnvelope{}, fmt.Errorf("marshal %s entity: %w", entity.Kind(), err)
	}
	return EntityEnvelope{KeyEnvelope: ke, Entity: raw}, nil
}

// DecodeKey returns the concrete key the envelope carries.
func (e KeyEnvelope) DecodeKey() (RequestKey, error) {
	if len(e.Key) == 0 {
		return nil, errors.New("key is required")
	}
	switch e.Kind {
	case KindGuestInput:
		return decodeAs[GuestInputRequestKey](e.Key)
	case KindBatchGuestInput:
		return decodeAs[BatchGuestInputRequestKey](e.Key)
	case KindSingleProof:
		return decodeAs[SingleProofRequestKey](e.Key)
	case KindAggregation:
		return decodeAs[AggregationRequestKey](e.Key)
	case KindBatchProof:
		return decodeAs[BatchProofRequestKey](e.Key)
	default:
		return nil, fmt.Errorf("unknown request kind %q", e.Kind)
	}
}

// Decode returns the concrete key and entity the envelope carries.
func (e EntityEnvelope) Decode() (RequestKey, RequestEntity, error) {
	key, err := e.DecodeKey()
	if err != nil {
		return nil, nil, err
	}
	if len(e.Entity) == 0 {
		return nil, nil, errors.New("entity is required")
	}

	var entity RequestEntity
	switch e.Kind {
	case KindGuestInput:
		entity, err = decodeAs[GuestInputRequestEntity](e.Entity)
	case KindBatchGuestInput:
		entity, err = decodeAs[BatchGuestInputRequestEntity](e.Entity)
	case KindSingleProof:
		entity, err = decodeAs[SingleProofRequestEntity](e.Entity)
	case KindAggregation:
		entity, err = decodeAs[AggregationRequestEntity](e.Entity)
	case KindBatchProof:
		entity, err = decodeAs[BatchProofRequestEntity](e.Entity)
	}
	if err != nil {
		return nil, nil, err
	}
	return key, entity, nil
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
