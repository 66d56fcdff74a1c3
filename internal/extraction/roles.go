package extraction

import "strings"

// Role is the semantic meaning of a listing table column.
type Role string

const (
	RoleRank      Role = "rank"
	RoleCoin      Role = "coin"
	RolePrice     Role = "price"
	RoleChange24  Role = "change_24h"
	RoleVolume24  Role = "volume_24h"
	RoleMarketCap Role = "market_cap"
)

// Roles lists every role in resolution order.
var Roles = []Role{RoleRank, RoleCoin, RolePrice, RoleChange24, RoleVolume24, RoleMarketCap}

// RoleMap maps a role to a zero-based column index.
// A role absent from the map is undetermined.
type RoleMap map[Role]int

// Index returns the column index for role and whether it was determined.
func (m RoleMap) Index(role Role) (int, bool) {
	idx, ok := m[role]
	return idx, ok
}

// roleMatchers decide whether a lower-cased header names a role.
var roleMatchers = map[Role]func(h string) bool{
	RoleRank: func(h string) bool {
		return h == "#" || strings.Contains(h, "rank")
	},
	RoleCoin: func(h string) bool {
		return strings.Contains(h, "coin") || strings.Contains(h, "name") || strings.Contains(h, "asset")
	},
	RolePrice: func(h string) bool {
		return strings.Contains(h, "price")
	},
	RoleChange24: func(h string) bool {
		return strings.Contains(h, "24h") &&
			!strings.Contains(h, "7d") &&
			!strings.Contains(h, "1h") &&
			!strings.Contains(h, "volume")
	},
	RoleVolume24: func(h string) bool {
		return strings.Contains(h, "volume")
	},
	RoleMarketCap: func(h string) bool {
		return strings.Contains(h, "market") || strings.Contains(h, "mkt cap")
	},
}

// BuildRoleMap assigns each role the first header whose text matches it.
// Headers must already be lower-cased and trimmed.
func BuildRoleMap(headers []string) RoleMap {
	roles := make(RoleMap)
	for _, role := range Roles {
		match := roleMatchers[role]
		for i, h := range headers {
			if match(h) {
				roles[role] = i
				break
			}
		}
	}
	return roles
}
