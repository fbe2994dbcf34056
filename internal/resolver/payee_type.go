package resolver

import (
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

var payeeTypeKeywords = []struct {
	typ      model.PayeeType
	keywords []string
}{
	{model.PayeeSubcontractor, []string{"contract labor", "contract-labor", "subcontract"}},
	{model.PayeeMaterialSupplier, []string{"material", "supplies", "supply"}},
	{model.PayeeEquipmentRental, []string{"equipment", "rental"}},
	{model.PayeePermitAuthority, []string{"permit", "license"}},
}

// InferPayeeType guesses what kind of vendor an auto-created payee is from the account path
// of the transaction that introduced it.
func InferPayeeType(accountPath string) model.PayeeType {
	path := strings.ToLower(accountPath)
	for _, entry := range payeeTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(path, kw) {
				return entry.typ
			}
		}
	}
	return model.PayeeOther
}
