package enums

import "fmt"

// ItemCondition maps to the item_condition enum in Postgres.
type ItemCondition string

const (
	ItemConditionNew        ItemCondition = "NEW"
	ItemConditionGood       ItemCondition = "GOOD"
	ItemConditionWorn       ItemCondition = "WORN"
	ItemConditionDamaged    ItemCondition = "DAMAGED"
	ItemConditionUnrentable ItemCondition = "UNRENTABLE"
)

var validItemConditions = []ItemCondition{
	ItemConditionNew,
	ItemConditionGood,
	ItemConditionWorn,
	ItemConditionDamaged,
	ItemConditionUnrentable,
}

// IsValid reports whether the value matches the canonical item condition enum.
func (c ItemCondition) IsValid() bool {
	for _, candidate := range validItemConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseItemCondition converts raw input into ItemCondition.
func ParseItemCondition(value string) (ItemCondition, error) {
	for _, candidate := range validItemConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item condition %q", value)
}
