package payments

// Plan is one purchasable credit pack. The catalog is the source the checkout
// flow captures its grant from; reconciliation later works off the captured
// copy, never off this table.
type Plan struct {
	ID           string
	Name         string
	Amount       int
	ValidityDays int
	PriceCents   int
}

var planCatalog = []Plan{
	{ID: "pack_starter", Name: "Starter Pack (10 covers)", Amount: 10, ValidityDays: 30, PriceCents: 490},
	{ID: "pack_standard", Name: "Standard Pack (30 covers)", Amount: 30, ValidityDays: 90, PriceCents: 990},
	{ID: "pack_festival", Name: "Festival Pack (100 covers)", Amount: 100, ValidityDays: 180, PriceCents: 2490},
}

// PlanByID resolves a plan id from the catalog.
func PlanByID(id string) (*Plan, bool) {
	for i := range planCatalog {
		if planCatalog[i].ID == id {
			return &planCatalog[i], true
		}
	}
	return nil, false
}

// Plans returns the purchasable catalog for display.
func Plans() []Plan {
	out := make([]Plan, len(planCatalog))
	copy(out, planCatalog)
	return out
}
