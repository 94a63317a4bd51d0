package chunking

import "fmt"

// Tier is one rung of the fallback ladder. All sizes are in bytes.
type Tier struct {
	Name       string
	TargetSize int
	MinSize    int
	Overlap    int
}

// Validate checks that the tier can make forward progress.
func (t Tier) Validate() error {
	if t.MinSize <= 0 {
		return fmt.Errorf("%w: %s: min size must be positive", ErrInvalidTier, t.Name)
	}
	if t.TargetSize < t.MinSize {
		return fmt.Errorf("%w: %s: target size %d below min size %d", ErrInvalidTier, t.Name, t.TargetSize, t.MinSize)
	}
	if t.Overlap < 0 || t.Overlap >= t.MinSize {
		return fmt.Errorf("%w: %s: overlap %d must be in [0, %d)", ErrInvalidTier, t.Name, t.Overlap, t.MinSize)
	}
	return nil
}

// String renders the tier as "name(target/min/overlap)".
func (t Tier) String() string {
	return fmt.Sprintf("%s(%d/%d/%d)", t.Name, t.TargetSize, t.MinSize, t.Overlap)
}

// Ladder is an ordered list of tiers, most generous first.
type Ladder []Tier

// DefaultLadder is the tier list used when none is configured.
var DefaultLadder = Ladder{
	{Name: "xl", TargetSize: 25000, MinSize: 12000, Overlap: 500},
	{Name: "large", TargetSize: 15000, MinSize: 8000, Overlap: 400},
	{Name: "medium", TargetSize: 8000, MinSize: 4000, Overlap: 300},
	{Name: "small", TargetSize: 4000, MinSize: 2000, Overlap: 200},
	{Name: "xs", TargetSize: 2000, MinSize: 1000, Overlap: 100},
	{Name: "xxs", TargetSize: 1000, MinSize: 500, Overlap: 50},
}

// Validate checks every tier and that target sizes strictly decrease.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return ErrEmptyLadder
	}
	for i, t := range l {
		if err := t.Validate(); err != nil {
			return err
		}
		if i > 0 && t.TargetSize >= l[i-1].TargetSize {
			return fmt.Errorf("%w: %s: target size must be smaller than %s", ErrInvalidTier, t.Name, l[i-1].Name)
		}
	}
	return nil
}
