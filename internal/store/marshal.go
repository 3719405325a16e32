package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/ir"
)

// AttrValue converts an attribute value for storage. Values ir cannot
// represent are kept as their fmt rendering. A nil value (cleared
// attribute) has no representation and returns nil.
func AttrValue(v any) ir.Value {
	if v == nil {
		return nil
	}
	return ir.FromGoLoose(v)
}

// ChangeValue is the canonical form of a change. Only the fields the op
// uses are present.
func ChangeValue(c changes.Change) ir.Object {
	obj := ir.Object{
		"op":    ir.String(c.Op),
		"child": ir.Int(c.Child),
	}
	switch c.Op {
	case changes.OpInsert:
		obj["parent"] = ir.Int(c.Parent)
		obj["index"] = ir.Int(c.Index)
		obj["type"] = ir.String(c.Type)
	case changes.OpRemove:
		obj["parent"] = ir.Int(c.Parent)
	case changes.OpMove:
		obj["parent"] = ir.Int(c.Parent)
		obj["from"] = ir.Int(c.From)
		obj["to"] = ir.Int(c.To)
	case changes.OpSetAttribute:
		obj["attr"] = ir.String(c.Attr)
		if v := AttrValue(c.Value); v != nil {
			obj["value"] = v
		}
	}
	return obj
}

// ChangesValue is the canonical form of a change list.
func ChangesValue(list changes.List) ir.List {
	out := make(ir.List, len(list))
	for i, c := range list {
		out[i] = ChangeValue(c)
	}
	return out
}

// Digest returns the content digest of a change list.
func Digest(list changes.List) (string, error) {
	return ir.Hash(ir.DomainPass, ChangesValue(list))
}

// marshalValue encodes an attribute value as canonical JSON, or NULL.
func marshalValue(v any) (sql.NullString, error) {
	val := AttrValue(v)
	if val == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(val)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal value: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalValue decodes a stored attribute value into plain Go values.
func unmarshalValue(data sql.NullString) (any, error) {
	if !data.Valid {
		return nil, nil
	}
	v, err := ir.Unmarshal([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return ir.ToGo(v), nil
}
