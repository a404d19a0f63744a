package ledger

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Amounts is the fee owed for each semester of a class.
type Amounts struct {
	Sem1 decimal.Decimal `json:"sem1"`
	Sem2 decimal.Decimal `json:"sem2"`
}

// FeeStructure maps a class identifier to its semester fees. It is built once
// and never mutated, so it can be shared between goroutines.
type FeeStructure struct {
	classes map[string]Amounts
}

// NewFeeStructure copies the table. Negative amounts are rejected.
func NewFeeStructure(table map[string]Amounts) (FeeStructure, error) {
	classes := make(map[string]Amounts, len(table))
	for class, a := range table {
		if class == "" {
			return FeeStructure{}, fmt.Errorf("fee structure: empty class identifier")
		}
		if a.Sem1.IsNegative() || a.Sem2.IsNegative() {
			return FeeStructure{}, fmt.Errorf("fee structure: class %s has a negative amount", class)
		}
		classes[class] = Amounts{Sem1: round(a.Sem1), Sem2: round(a.Sem2)}
	}
	return FeeStructure{classes: classes}, nil
}

// DefaultFeeStructure is the table used when no file is configured.
func DefaultFeeStructure() FeeStructure {
	fs, _ := NewFeeStructure(map[string]Amounts{
		"9":  {Sem1: decimal.NewFromInt(5500), Sem2: decimal.NewFromInt(4500)},
		"10": {Sem1: decimal.NewFromInt(6000), Sem2: decimal.NewFromInt(5000)},
		"11": {Sem1: decimal.NewFromInt(7000), Sem2: decimal.NewFromInt(6000)},
		"12": {Sem1: decimal.NewFromInt(7500), Sem2: decimal.NewFromInt(6500)},
	})
	return fs
}

// Lookup returns the amounts of a class.
func (fs FeeStructure) Lookup(class string) (Amounts, bool) {
	a, ok := fs.classes[class]
	return a, ok
}

// Classes returns the known class identifiers in numeric-then-lexical order.
func (fs FeeStructure) Classes() []string {
	out := make([]string, 0, len(fs.classes))
	for c := range fs.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// Table returns a copy of the whole table.
func (fs FeeStructure) Table() map[string]Amounts {
	out := make(map[string]Amounts, len(fs.classes))
	for c, a := range fs.classes {
		out[c] = a
	}
	return out
}

type structureFile struct {
	Classes map[string]struct {
		Sem1 float64 `yaml:"sem1"`
		Sem2 float64 `yaml:"sem2"`
	} `yaml:"classes"`
}

// LoadFeeStructure reads a YAML table of the form
//
//	classes:
//	  "10": {sem1: 6000, sem2: 5000}
func LoadFeeStructure(path string) (FeeStructure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FeeStructure{}, fmt.Errorf("failed to read fee structure file: %w", err)
	}
	return ParseFeeStructure(data)
}

// ParseFeeStructure decodes the YAML form accepted by LoadFeeStructure.
func ParseFeeStructure(data []byte) (FeeStructure, error) {
	var f structureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return FeeStructure{}, fmt.Errorf("failed to unmarshal fee structure: %w", err)
	}
	if len(f.Classes) == 0 {
		return FeeStructure{}, fmt.Errorf("fee structure: no classes defined")
	}
	table := make(map[string]Amounts, len(f.Classes))
	for class, a := range f.Classes {
		table[class] = Amounts{Sem1: decimal.NewFromFloat(a.Sem1), Sem2: decimal.NewFromFloat(a.Sem2)}
	}
	return NewFeeStructure(table)
}
