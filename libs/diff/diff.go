package diff

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	odiff "github.com/r3labs/diff/v3"
	"github.com/shopspring/decimal"
)

// Change is one edited field, rendered as text for clients and audit logs.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func GetCustomDiffer() *odiff.Differ {
	ret, err := odiff.NewDiffer(odiff.CustomValueDiffers(&UUIDComparer{}, &DecimalComparer{}))
	if err != nil {
		panic(err)
	}
	return ret
}

// Changes diffs two values of the same struct type. Field names come from `diff` tags.
func Changes(a, b any) ([]Change, error) {
	changelog, err := GetCustomDiffer().Diff(a, b)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	changes := make([]Change, 0, len(changelog))
	for _, c := range changelog {
		changes = append(changes, Change{
			Field: strings.Join(c.Path, "."),
			From:  render(c.From),
			To:    render(c.To),
		})
	}
	return changes, nil
}

func render(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

type UUIDComparer struct{}

var (
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

func matchType(t reflect.Type, a, b reflect.Value) bool {
	aok := a.IsValid() && a.Type() == t
	bok := b.IsValid() && b.Type() == t
	return (aok && bok) || (!a.IsValid() && bok) || (!b.IsValid() && aok)
}

func (c UUIDComparer) Match(a, b reflect.Value) bool {
	return matchType(uuidType, a, b)
}

// Diff reports a uuid as a single leaf instead of sixteen bytes.
func (c UUIDComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	if !a.IsValid() || !b.IsValid() {
		if a.IsValid() != b.IsValid() {
			cl.Add(odiff.UPDATE, path, valueOrNil(a), valueOrNil(b))
		}
		return nil
	}

	u1 := a.Interface().(uuid.UUID)
	u2 := b.Interface().(uuid.UUID)
	if u1 != u2 {
		cl.Add(odiff.UPDATE, path, u1.String(), u2.String())
	}
	return nil
}

// uuid is a leaf
func (c UUIDComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
}

// DecimalComparer compares amounts numerically, so 40 and 40.00 are equal.
type DecimalComparer struct{}

func (c DecimalComparer) Match(a, b reflect.Value) bool {
	return matchType(decimalType, a, b)
}

func (c DecimalComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	if !a.IsValid() || !b.IsValid() {
		if a.IsValid() != b.IsValid() {
			cl.Add(odiff.UPDATE, path, valueOrNil(a), valueOrNil(b))
		}
		return nil
	}

	d1 := a.Interface().(decimal.Decimal)
	d2 := b.Interface().(decimal.Decimal)
	if !d1.Equal(d2) {
		cl.Add(odiff.UPDATE, path, d1.String(), d2.String())
	}
	return nil
}

func (c DecimalComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
}

func valueOrNil(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}
