package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
)

func txn(row int, date string, amount float64, name string) model.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return model.Transaction{Row: row, Date: d, Amount: amount, CounterpartyName: name}
}

func TestDetect_SecondOccurrenceIsDuplicate(t *testing.T) {
	batch := []model.Transaction{
		txn(2, "2024-03-01", -50, "Shell"),
		txn(3, "2024-03-01", -50, "SHELL"),
		txn(4, "2024-03-02", -50, "Shell"),
	}

	res := Detect(batch)

	require.Len(t, res.Unique, 2)
	require.Len(t, res.Duplicates, 1)
	dup := res.Duplicates[0]
	assert.Equal(t, 3, dup.Transaction.Row)
	assert.Equal(t, 2, dup.Original.Row)
	assert.Contains(t, dup.Reason, "Shell")
	assert.Contains(t, dup.Reason, "2024-03-01")
	assert.Contains(t, dup.Reason, "row 2")
}

func TestDetect_KeyIgnoresAccountAndDescription(t *testing.T) {
	a := txn(1, "2024-03-01", 12.5, "Depot")
	a.AccountPath = "Materials"
	b := txn(2, "2024-03-01", 12.5, "Depot")
	b.AccountPath = "Tools"
	b.Description = "different"

	res := Detect([]model.Transaction{a, b})

	assert.Len(t, res.Duplicates, 1)
}

func TestDetect_Idempotent(t *testing.T) {
	batch := []model.Transaction{
		txn(1, "2024-01-01", 10, "A"),
		txn(2, "2024-01-01", 10, "a"),
		txn(3, "2024-01-01", 10, "B"),
		txn(4, "2024-01-01", 10, "A"),
		txn(5, "2024-01-02", 10, "A"),
	}

	first := Detect(batch)
	second := Detect(first.Unique)

	assert.Empty(t, second.Duplicates)
	assert.Equal(t, first.Unique, second.Unique)
	assert.Len(t, first.Duplicates, 2)
}

func TestDetect_PreservesOrder(t *testing.T) {
	batch := []model.Transaction{
		txn(1, "2024-01-03", 1, "C"),
		txn(2, "2024-01-01", 1, "A"),
		txn(3, "2024-01-02", 1, "B"),
	}

	res := Detect(batch)

	assert.Equal(t, batch, res.Unique)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "2024-03-01|-1200.00|acme supply", Key(txn(1, "2024-03-01", -1200, " ACME Supply ")))
}
