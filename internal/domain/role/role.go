package role

// Role identifies the actor authorizing an operation. Session issuance lives
// outside this engine; callers pass the role extracted from their token.
type Role string

const (
	Supplier         Role = "supplier"
	Manufacturer     Role = "manufacturer"
	WarehouseManager Role = "warehouse_manager"
	Retailer         Role = "retailer"
)

// All lists every known role
var All = []Role{Supplier, Manufacturer, WarehouseManager, Retailer}

// Valid reports whether r is a known role
func Valid(r Role) bool {
	for _, known := range All {
		if r == known {
			return true
		}
	}
	return false
}

// buyerSeller maps each buying role to the role it purchases from,
// following the supplier -> manufacturer -> warehouse -> retail chain.
var buyerSeller = map[Role]Role{
	Manufacturer:     Supplier,
	WarehouseManager: Manufacturer,
	Retailer:         WarehouseManager,
}

// ValidTradingPair reports whether buyer may place orders against seller
func ValidTradingPair(buyer, seller Role) bool {
	return buyerSeller[buyer] == seller
}
