package sound

import (
	"cmp"
	"fmt"
	"slices"
)

// Program is one selectable instrument
type Program struct {
	Bank   int    `json:"bank"`
	Preset int    `json:"preset"`
	Name   string `json:"name"`
}

func (p Program) String() string {
	if p.Name == "" {
		return fmt.Sprintf("%03d:%03d", p.Bank, p.Preset)
	}
	return fmt.Sprintf("%03d:%03d %s", p.Bank, p.Preset, p.Name)
}

// Catalogue lists the programs an engine offers, sorted by bank then preset
type Catalogue []Program

// NewCatalogue sorts and de-duplicates programs
func NewCatalogue(programs []Program) Catalogue {
	c := slices.Clone(programs)
	slices.SortStableFunc(c, func(a, b Program) int {
		return cmp.Or(cmp.Compare(a.Bank, b.Bank), cmp.Compare(a.Preset, b.Preset))
	})
	return slices.CompactFunc(c, func(a, b Program) bool {
		return a.Bank == b.Bank && a.Preset == b.Preset
	})
}

// Banks returns the distinct bank numbers
func (c Catalogue) Banks() []int {
	var banks []int
	for _, p := range c {
		if len(banks) == 0 || banks[len(banks)-1] != p.Bank {
			banks = append(banks, p.Bank)
		}
	}
	return banks
}

// Nearest snaps a requested program onto the catalogue: the nearest bank
// first, then the nearest preset inside that bank. Ties go to the lower
// number. An empty catalogue accepts any bank and presets 0..127.
func (c Catalogue) Nearest(bank, preset int) Program {
	if len(c) == 0 {
		return Program{Bank: max(0, bank), Preset: min(127, max(0, preset))}
	}
	b := nearest(c.Banks(), bank)

	var best Program
	found := false
	for _, p := range c {
		if p.Bank != b {
			continue
		}
		if !found || abs(p.Preset-preset) < abs(best.Preset-preset) {
			best, found = p, true
		}
	}
	return best
}

// Next returns the program after p, wrapping around. delta may be negative.
func (c Catalogue) Next(p Program, delta int) Program {
	if len(c) == 0 {
		return p
	}
	i := slices.IndexFunc(c, func(x Program) bool { return x.Bank == p.Bank && x.Preset == p.Preset })
	if i < 0 {
		return c.Nearest(p.Bank, p.Preset)
	}
	n := len(c)
	return c[((i+delta)%n+n)%n]
}

func nearest(sorted []int, v int) int {
	best := sorted[0]
	for _, x := range sorted[1:] {
		if abs(x-v) < abs(best-v) {
			best = x
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
