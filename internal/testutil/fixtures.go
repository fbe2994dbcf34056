package testutil

import "github.com/Veraticus/tally/internal/model"

// StandardSeed is a small contractor's books: a few jobs, a catch-all overhead
// project, regular vendors, one client and a materials mapping.
func StandardSeed() Seed {
	return Seed{
		Projects: []model.Project{
			{Number: "2024-001", Name: "Kitchen Remodel"},
			{Number: "2024-002", Name: "Deck Addition"},
			{Number: "MISC", Name: "Misc Overhead"},
		},
		Payees: []model.Payee{
			{Name: "ACME Supply", Type: model.PayeeMaterialSupplier},
			{Name: "Bob's Electric", AlternateName: "Bob Electric LLC", Type: model.PayeeSubcontractor},
			{Name: "City Permits Office", Type: model.PayeePermitAuthority},
		},
		Clients: []model.Client{
			{Name: "Smith Family"},
			{Name: "Jones Residence", AlternateName: "Jones"},
		},
		Mappings: []model.AccountMapping{
			{QBAccountFullPath: "Job Expenses:Job Materials", InternalCategory: model.CategoryMaterials, IsActive: true},
		},
	}
}
