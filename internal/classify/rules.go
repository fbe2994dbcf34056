package classify

import (
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

type rule struct {
	substring string
	category  model.Category
}

// staticAccountRules maps common accounting account-path fragments to categories.
// Order matters: more specific fragments come first.
var staticAccountRules = []rule{
	{"contract labor", model.CategorySubcontractor},
	{"subcontract", model.CategorySubcontractor},
	{"payroll", model.CategoryLabor},
	{"wages", model.CategoryLabor},
	{"salaries", model.CategoryLabor},
	{"labor", model.CategoryLabor},
	{"job materials", model.CategoryMaterials},
	{"cost of goods sold", model.CategoryMaterials},
	{"materials", model.CategoryMaterials},
	{"supplies", model.CategoryMaterials},
	{"lumber", model.CategoryMaterials},
	{"equipment rental", model.CategoryEquipment},
	{"equipment", model.CategoryEquipment},
	{"small tools", model.CategoryEquipment},
	{"tools", model.CategoryEquipment},
	{"machinery", model.CategoryEquipment},
	{"permit", model.CategoryPermits},
	{"licenses", model.CategoryPermits},
	{"office", model.CategoryManagement},
	{"insurance", model.CategoryManagement},
	{"legal & professional", model.CategoryManagement},
	{"professional fees", model.CategoryManagement},
	{"utilities", model.CategoryManagement},
	{"advertising", model.CategoryManagement},
}

// keywordRules scan the transaction description when the account path gave no answer.
var keywordRules = []rule{
	{"labor", model.CategoryLabor},
	{"wage", model.CategoryLabor},
	{"payroll", model.CategoryLabor},
	{"subcontractor", model.CategorySubcontractor},
	{"contractor", model.CategorySubcontractor},
	{"material", model.CategoryMaterials},
	{"supply", model.CategoryMaterials},
	{"supplies", model.CategoryMaterials},
	{"lumber", model.CategoryMaterials},
	{"concrete", model.CategoryMaterials},
	{"equipment", model.CategoryEquipment},
	{"rental", model.CategoryEquipment},
	{"tool", model.CategoryEquipment},
	{"machinery", model.CategoryEquipment},
	{"permit", model.CategoryPermits},
	{"fee", model.CategoryPermits},
	{"license", model.CategoryPermits},
	{"management", model.CategoryManagement},
	{"admin", model.CategoryManagement},
	{"office", model.CategoryManagement},
}

func matchRules(rules []rule, text string) (rule, bool) {
	if text == "" {
		return rule{}, false
	}
	for _, r := range rules {
		if strings.Contains(text, r.substring) {
			return r, true
		}
	}
	return rule{}, false
}
