package ledger

import (
	"fmt"
	"strings"
)

// Category is the icon group of an expense. It is stored next to the title,
// never inside it.
type Category int

const (
	CategoryFood Category = iota
	CategoryLodging
	CategoryTransport
	CategoryActivity
	CategoryShopping
	CategoryOther
	CategoryCnt
)

// DefaultCategory is used when an expense is created without a category.
const DefaultCategory = CategoryFood

var categoryNames = [CategoryCnt]string{"food", "lodging", "transport", "activity", "shopping", "other"}

var categoryIcons = [CategoryCnt]string{"🍽️", "🏨", "🚕", "🎟️", "🛍️", "🧾"}

func (c Category) Valid() bool {
	return c >= 0 && c < CategoryCnt
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Icon returns the emoji shown for the category.
func (c Category) Icon() string {
	if !c.Valid() {
		return categoryIcons[CategoryOther]
	}
	return categoryIcons[c]
}

// ParseCategory accepts a category name or its icon. Empty input means DefaultCategory.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory, nil
	}
	for i := Category(0); i < CategoryCnt; i++ {
		if strings.EqualFold(s, categoryNames[i]) || s == categoryIcons[i] {
			return i, nil
		}
	}
	return CategoryOther, invalid("category", "unknown category %q", s)
}

// SplitLegacyTitle reads titles written as "<icon> <title>" by older clients.
// Only the known category icons count as a marker; any other leading emoji stays
// part of the title.
func SplitLegacyTitle(title string) (Category, string) {
	for i := Category(0); i < CategoryCnt; i++ {
		icon := categoryIcons[i]
		if rest, ok := strings.CutPrefix(title, icon); ok {
			return i, strings.TrimSpace(rest)
		}
		// some clients drop the variation selector
		if bare := strings.TrimSuffix(icon, "\ufe0f"); bare != icon {
			if rest, ok := strings.CutPrefix(title, bare); ok {
				return i, strings.TrimSpace(rest)
			}
		}
	}
	return CategoryOther, title
}
