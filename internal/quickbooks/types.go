package quickbooks

import (
	"fmt"
	"strings"
	"time"
)

// EntityType is a provider transaction entity the query endpoint can select.
type EntityType string

// Entities used for reconciliation.
const (
	EntityBill     EntityType = "Bill"
	EntityPurchase EntityType = "Purchase"
	EntityInvoice  EntityType = "Invoice"
)

// ProviderTransaction is a provider record reduced to what reconciliation compares.
type ProviderTransaction struct {
	Date       time.Time
	ID         string
	Name       string
	DocNumber  string
	EntityType EntityType
	Amount     float64
}

type entityRef struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// providerEntity covers the fields shared by Bill, Purchase and Invoice.
type providerEntity struct {
	VendorRef   *entityRef `json:"VendorRef,omitempty"`
	EntityRef   *entityRef `json:"EntityRef,omitempty"`
	CustomerRef *entityRef `json:"CustomerRef,omitempty"`
	ID          string     `json:"Id"`
	DocNumber   string     `json:"DocNumber"`
	TxnDate     string     `json:"TxnDate"`
	TotalAmt    float64    `json:"TotalAmt"`
}

func (e providerEntity) counterparty(entity EntityType) string {
	var ref *entityRef
	switch entity {
	case EntityBill:
		ref = e.VendorRef
	case EntityPurchase:
		ref = e.EntityRef
	case EntityInvoice:
		ref = e.CustomerRef
	}
	if ref == nil {
		return ""
	}
	return strings.TrimSpace(ref.Name)
}

func (e providerEntity) toTransaction(entity EntityType) (ProviderTransaction, error) {
	date, err := time.Parse("2006-01-02", e.TxnDate)
	if err != nil {
		return ProviderTransaction{}, fmt.Errorf("%s %s has invalid TxnDate %q: %w", entity, e.ID, e.TxnDate, err)
	}
	return ProviderTransaction{
		ID:         e.ID,
		EntityType: entity,
		Date:       date,
		Amount:     e.TotalAmt,
		Name:       e.counterparty(entity),
		DocNumber:  e.DocNumber,
	}, nil
}
