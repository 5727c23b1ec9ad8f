package engine

import (
	"fmt"
	"sort"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
)

// MaxQuantity bounds every requested, required and resulting stock figure.
const MaxQuantity int64 = 1_000_000_000_000

// ComponentAvailability is one line of a feasibility report.
type ComponentAvailability struct {
	ComponentID int64  `json:"componentId"`
	Name        string `json:"name"`
	Required    int64  `json:"required"`
	Available   int64  `json:"available"`
	// Reserved is what open orders already promise. Display only.
	Reserved    int64 `json:"reserved"`
	IsAvailable bool  `json:"isAvailable"`
}

type Report struct {
	IsFeasible bool                    `json:"isFeasible"`
	Details    []ComponentAvailability `json:"details"`
}

// Shortfalls returns the details that are not available.
func (r Report) Shortfalls() []ComponentAvailability {
	var out []ComponentAvailability
	for _, d := range r.Details {
		if !d.IsAvailable {
			out = append(out, d)
		}
	}
	return out
}

type requirement struct {
	componentID int64
	name        string
	required    int64
}

func validateQuantity(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: must be greater than 0, got %d", ErrInvalidQuantity, quantity)
	}
	if quantity > MaxQuantity {
		return fmt.Errorf("%w: %d", ErrQuantityOverflow, quantity)
	}
	return nil
}

// requirements multiplies the BOM by quantity. Lines naming the same
// component are merged in first-seen order.
func requirements(lines []recipes.Line, quantity int64) ([]requirement, error) {
	if len(lines) == 0 {
		return nil, ErrNotAProduct
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	idx := make(map[int64]int, len(lines))
	var out []requirement
	for _, l := range lines {
		if l.QuantityRequired <= 0 {
			return nil, fmt.Errorf("%w: bom line %d has quantity_required %d", ErrInvalidQuantity, l.ID, l.QuantityRequired)
		}
		if l.QuantityRequired > MaxQuantity/quantity {
			return nil, fmt.Errorf("%w: %d x %d of component %d", ErrQuantityOverflow, l.QuantityRequired, quantity, l.ComponentID)
		}
		need := l.QuantityRequired * quantity

		if i, ok := idx[l.ComponentID]; ok {
			if out[i].required > MaxQuantity-need {
				return nil, fmt.Errorf("%w: component %d", ErrQuantityOverflow, l.ComponentID)
			}
			out[i].required += need
			continue
		}
		idx[l.ComponentID] = len(out)
		out = append(out, requirement{componentID: l.ComponentID, name: l.ComponentName, required: need})
	}
	return out, nil
}

// Evaluate decides whether quantity units can be built from stock. It is a
// pure function: stock and reserved are whatever snapshot the caller read.
// Every component is reported, not only the first short one. A component
// missing from stock counts as zero available.
func Evaluate(lines []recipes.Line, quantity int64, stock map[int64]items.Item, reserved map[int64]int64) (Report, error) {
	reqs, err := requirements(lines, quantity)
	if err != nil {
		return Report{}, err
	}
	return buildReport(reqs, stock, reserved), nil
}

func buildReport(reqs []requirement, stock map[int64]items.Item, reserved map[int64]int64) Report {
	rep := Report{IsFeasible: true, Details: make([]ComponentAvailability, 0, len(reqs))}
	for _, rq := range reqs {
		it, ok := stock[rq.componentID]
		name := rq.name
		if name == "" && ok {
			name = it.Name
		}
		d := ComponentAvailability{
			ComponentID: rq.componentID,
			Name:        name,
			Required:    rq.required,
			Available:   it.QuantityInStock,
			Reserved:    reserved[rq.componentID],
		}
		d.IsAvailable = ok && d.Available >= d.Required
		if !d.IsAvailable {
			rep.IsFeasible = false
		}
		rep.Details = append(rep.Details, d)
	}
	return rep
}

// lockSet returns the distinct ids to lock, ascending.
func lockSet(reqs []requirement, extra ...int64) []int64 {
	seen := make(map[int64]struct{}, len(reqs)+len(extra))
	ids := make([]int64, 0, len(reqs)+len(extra))
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, rq := range reqs {
		add(rq.componentID)
	}
	for _, id := range extra {
		add(id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
