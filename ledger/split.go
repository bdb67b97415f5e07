package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SplitTolerance is the largest accepted gap between a custom split and the expense total.
var SplitTolerance = decimal.New(1, -2)

type SplitMethod string

const (
	SplitEqual  SplitMethod = "equal"
	SplitCustom SplitMethod = "custom"
)

// CustomEntry is a raw, user supplied share amount.
type CustomEntry struct {
	UserID UserID
	Amount string
}

// SplitRequest carries everything a SplitStrategy may need.
type SplitRequest struct {
	Members []UserID
	Custom  []CustomEntry
}

// SplitStrategy turns an expense total into per member shares.
type SplitStrategy func(total decimal.Decimal, req SplitRequest) ([]ShareRequest, error)

// SplitStrategyFactory returns the strategy for a split method.
func SplitStrategyFactory(method SplitMethod) (SplitStrategy, error) {
	switch method {
	case SplitEqual, "":
		return func(total decimal.Decimal, req SplitRequest) ([]ShareRequest, error) {
			return EqualSplit(total, req.Members)
		}, nil
	case SplitCustom:
		return func(total decimal.Decimal, req SplitRequest) ([]ShareRequest, error) {
			return CustomSplit(total, req.Custom)
		}, nil
	default:
		return nil, invalid("split_method", "unknown split method %q", method)
	}
}

// EqualSplit gives every member round(total/n, 2). The rounded shares are not
// redistributed, so their sum may differ from total by up to half a cent per member.
func EqualSplit(total decimal.Decimal, members []UserID) ([]ShareRequest, error) {
	if len(members) == 0 {
		return nil, invalid("members", "at least one member is required")
	}
	if err := uniqueMembers(members); err != nil {
		return nil, err
	}

	each := total.Div(decimal.NewFromInt(int64(len(members)))).Round(2)
	shares := make([]ShareRequest, 0, len(members))
	for _, m := range members {
		shares = append(shares, ShareRequest{UserID: m, Amount: each})
	}
	return shares, nil
}

// CustomSplit validates caller supplied amounts. Every entry must be a non-negative number
// and the entries must add up to total within SplitTolerance.
func CustomSplit(total decimal.Decimal, entries []CustomEntry) ([]ShareRequest, error) {
	if len(entries) == 0 {
		return nil, invalid("shares", "at least one share is required")
	}

	members := make([]UserID, 0, len(entries))
	shares := make([]ShareRequest, 0, len(entries))
	sum := decimal.Zero
	for _, entry := range entries {
		amount, err := decimal.NewFromString(strings.TrimSpace(entry.Amount))
		if err != nil {
			return nil, invalid("shares", "share for %s is not a number: %q", entry.UserID, entry.Amount)
		}
		if amount.IsNegative() {
			return nil, invalid("shares", "share for %s is negative", entry.UserID)
		}
		members = append(members, entry.UserID)
		shares = append(shares, ShareRequest{UserID: entry.UserID, Amount: amount})
		sum = sum.Add(amount)
	}
	if err := uniqueMembers(members); err != nil {
		return nil, err
	}

	if sum.Sub(total).Abs().GreaterThan(SplitTolerance) {
		return nil, invalid("shares", "shares add up to %s but the expense total is %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return shares, nil
}

// ParseAmount parses an expense total. It must be a positive number.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, invalid("amount", "%q is not a number", s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, invalid("amount", "must be positive")
	}
	return amount, nil
}

func uniqueMembers(members []UserID) error {
	seen := make(map[UserID]struct{}, len(members))
	for _, m := range members {
		if m == "" {
			return invalid("members", "empty member id")
		}
		if _, ok := seen[m]; ok {
			return invalid("members", "member %s appears twice", m)
		}
		seen[m] = struct{}{}
	}
	return nil
}
