package export

import (
	"fmt"
	"strings"
)

// ListDelimiter joins list-valued fields into a single string.
const ListDelimiter = ","

// JoinList joins items in order. An item containing the delimiter would not
// survive a split, so it is rejected.
func JoinList(items []string) (string, error) {
	for _, item := range items {
		if strings.Contains(item, ListDelimiter) {
			return "", fmt.Errorf("list item %q contains delimiter %q", item, ListDelimiter)
		}
	}
	return strings.Join(items, ListDelimiter), nil
}

// SplitList is the inverse of JoinList. An empty string yields no items.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ListDelimiter)
}

// PartitionLabels splits labels by owner into system and user label names.
// Source order is preserved in all three lists.
func PartitionLabels(labels []Label) (all, system, user []string) {
	for _, l := range labels {
		all = append(all, l.Name)
		if l.Owner == SystemLabelOwner {
			system = append(system, l.Name)
		} else {
			user = append(user, l.Name)
		}
	}
	return all, system, user
}
