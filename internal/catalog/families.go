package catalog

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var familyPattern = regexp.MustCompile(`^(GH|PL|GT|CE|AA|CBM)\d+(_\d+)?$`)

// deletedFamilies were removed from the catalog and have no listing.
var deletedFamilies = []string{
	"CBM33", "CBM7", "CE10", "GH145", "GH155", "GH21", "GH40",
	"GH41", "GH60", "GH61", "GH69", "GT36", "PL19",
}

// ValidFamily checks the name of a family or subfamily, e.g. "GH5" or "GH5_2".
func ValidFamily(name string) error {
	if !familyPattern.MatchString(name) {
		return &FamilyError{Family: name, Message: "expected a class prefix (GH, PL, GT, CE, AA, CBM) followed by a number, e.g. GH5 or GH5_2"}
	}
	if slices.Contains(deletedFamilies, name) {
		return &FamilyError{Family: name, Message: "family was deleted from CAZy; see https://www.cazypedia.org for its reclassification"}
	}
	return nil
}

// familyLimits is the highest family number generated for each class.
var familyLimits = []struct {
	prefix string
	max    int
}{
	{"GH", 173}, {"GT", 115}, {"PL", 20}, {"CE", 20}, {"AA", 17}, {"CBM", 91},
}

// namedCategories are curated family lists selectable with --category.
var namedCategories = map[string][]string{
	"plant_cell_wall": {
		"GH5", "GH6", "GH7", "GH8", "GH9", "GH10", "GH11", "GH12", "GH26", "GH28", "GH44", "GH45",
		"GH48", "GH53", "GH88", "GH95", "GH16", "GH17", "GH74", "GH81", "GH23", "GH27", "GH33",
		"GH51", "GH54", "GH62", "GH67", "GH77", "GH78", "GH84", "GH103", "GH106", "GH146", "GH1",
		"GH2", "GH3", "GH13", "GH18", "GH20", "GH29", "GH31", "GH32", "GH35", "GH38", "GH39",
		"GH42", "GH43", "GH52", "GH57", "GH92", "GH127", "GH130", "GH137", "GH138", "GH139",
		"GH141", "GH142", "GH143", "GH147",
	},
	"host-specific(base)": {
		"GH2", "GH16", "GH18", "GH20", "GH29", "GH31", "GH33", "GH36", "GH84", "GH89", "GH95",
		"GH98", "GH101", "GH109", "GH110", "GH112", "GH123",
	},
	"host-specific(extra)": {
		"GH1", "GH3", "GH5", "GH23", "GH32", "GH34", "GH35", "GH38", "GH39", "GH42", "GH43",
		"GH67", "GH77", "GH83", "GH85", "GH88", "GH94", "GH129", "GH130", "GH136", "GH139",
		"GH141", "GH151", "GH156",
	},
	"mucus": {
		"GH2", "GH16", "GH16_3", "GH16_24", "GH18", "GH20", "GH29", "GH31", "GH33", "GH34", "GH36",
		"GH84", "GH85", "GH89", "GH95", "GH98", "GH101", "GH109", "GH110", "GH112", "GH123",
		"GH129", "GH156",
	},
	"milk_glycans": {
		"GH2", "GH16", "GH18", "GH20", "GH29", "GH31", "GH33", "GH34", "GH35", "GH36", "GH84",
		"GH85", "GH89", "GH95", "GH98", "GH101", "GH109", "GH110", "GH112", "GH123", "GH129",
		"GH141", "GH156",
	},
	"xyloglucan": {
		"GH5", "GH5_4", "GH9", "GH12", "GH26", "GH44", "GH45", "GH48", "GH16", "GH16_20", "GH74",
		"GH3", "GH43", "CBM65", "CBM75",
	},
	"example_category": {"GH62", "GT9", "PL9", "CE1", "AA2", "CBM4"},
}

// Categories returns every category name, "all" and the class names included.
func Categories() []string {
	names := []string{"all"}
	for _, l := range familyLimits {
		names = append(names, strings.ToLower(l.prefix))
	}
	for name := range namedCategories {
		names = append(names, name)
	}
	slices.Sort(names[1+len(familyLimits):])
	return names
}

// CategoryFamilies resolves a category name to its families. The class names
// ("gh", "pl", ...) expand to every non-deleted family of that class and "all"
// to every family of every class.
func CategoryFamilies(category string) ([]string, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if fams, ok := namedCategories[category]; ok {
		return slices.Clone(fams), nil
	}

	var out []string
	for _, l := range familyLimits {
		if category != "all" && category != strings.ToLower(l.prefix) {
			continue
		}
		for i := 1; i <= l.max; i++ {
			name := fmt.Sprintf("%s%d", l.prefix, i)
			if !slices.Contains(deletedFamilies, name) {
				out = append(out, name)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown family category %q (valid: %s)", category, strings.Join(Categories(), ", "))
	}
	return out, nil
}
