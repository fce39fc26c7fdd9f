package license

// PlanKey identifies a subscription tier.
type PlanKey string

const (
	// PlanStarter is the entry tier for single-location shops.
	PlanStarter PlanKey = "starter"
	// PlanClinic adds grooming and veterinary scheduling features.
	PlanClinic PlanKey = "clinic"
	// PlanMax unlocks everything, including multi-location inventory.
	PlanMax PlanKey = "max"
)

// ValidPlans returns all recognized plan keys.
func ValidPlans() []PlanKey {
	return []PlanKey{PlanStarter, PlanClinic, PlanMax}
}

// IsValid checks if the plan key is a recognized value.
func (p PlanKey) IsValid() bool {
	for _, valid := range ValidPlans() {
		if p == valid {
			return true
		}
	}
	return false
}

// DefaultGraceDays is the policy default applied when a subscription does not
// carry an explicit grace window.
const DefaultGraceDays = 7

// PlanDefaults holds the per-plan entitlement defaults. The schema is closed:
// every field is typed and enumerated here rather than carried as free-form
// flags in the grant payload.
type PlanDefaults struct {
	MaxSeats  int
	GraceDays int
}

// planDefaults maps each plan to its defaults.
var planDefaults = map[PlanKey]PlanDefaults{
	PlanStarter: {
		MaxSeats:  3,
		GraceDays: DefaultGraceDays,
	},
	PlanClinic: {
		MaxSeats:  10,
		GraceDays: DefaultGraceDays,
	},
	PlanMax: {
		MaxSeats:  50,
		GraceDays: DefaultGraceDays,
	},
}

// Defaults returns the entitlement defaults for a plan. Unknown plans get
// starter defaults.
func Defaults(plan PlanKey) PlanDefaults {
	if d, ok := planDefaults[plan]; ok {
		return d
	}
	return planDefaults[PlanStarter]
}
