package model

import "strings"

// PayeeType describes what kind of vendor a payee is.
type PayeeType string

// Payee types.
const (
	PayeeSubcontractor    PayeeType = "subcontractor"
	PayeeMaterialSupplier PayeeType = "material_supplier"
	PayeeEquipmentRental  PayeeType = "equipment_rental"
	PayeePermitAuthority  PayeeType = "permit_authority"
	PayeeOther            PayeeType = "other"
)

// Payee is a vendor paid by the business.
type Payee struct {
	ID            string
	Name          string
	AlternateName string
	Type          PayeeType
}

// Client is a customer invoiced by the business.
type Client struct {
	ID            string
	Name          string
	AlternateName string
}

// Project is a job that expenses and revenues are booked against.
type Project struct {
	ID     string
	Number string
	Name   string
}

// NumberPrefix returns the part of the project number before the first dash.
func (p *Project) NumberPrefix() string {
	prefix, _, _ := strings.Cut(strings.TrimSpace(p.Number), "-")
	return prefix
}
