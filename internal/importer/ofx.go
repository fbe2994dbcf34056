package importer

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/tally/internal/model"
)

// OFXOptions controls how bank statement lines become transactions.
type OFXOptions struct {
	// CreditsAsRevenue books positive (deposit) lines as invoices instead of expenses.
	CreditsAsRevenue bool
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes formatting issues some banks ship in OFX/QFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	// SGML tags missing their closing bracket at end of line.
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseOFX reads bank and credit card statements from an OFX/QFX file. Bank files carry no
// project or account path, so every line lands on the default project and is classified by
// its payee and memo.
func ParseOFX(r io.Reader, opts OFXOptions) ([]model.Transaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var (
		lines             []ofxgo.Transaction
		bankStmts, ccStmt int
	)
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			bankStmts++
			lines = append(lines, stmt.BankTranList.Transactions...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			ccStmt++
			lines = append(lines, stmt.BankTranList.Transactions...)
		}
	}

	transactions := make([]model.Transaction, 0, len(lines))
	for i, line := range lines {
		transactions = append(transactions, convertOFX(line, i+1, opts))
	}

	slog.Info("Parsed OFX file",
		"transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmt)
	return transactions, nil
}

func convertOFX(line ofxgo.Transaction, row int, opts OFXOptions) model.Transaction {
	amount, _ := line.TrnAmt.Float64()

	txnType := model.TypeExpense
	switch {
	case line.TrnType == ofxgo.TrnTypeCheck:
		txnType = model.TypeCheck
	case amount > 0 && opts.CreditsAsRevenue:
		txnType = model.TypeInvoice
	}

	return model.Transaction{
		Row:              row,
		Date:             line.DtPosted.Time,
		RawDate:          line.DtPosted.String(),
		RawAmount:        line.TrnAmt.String(),
		Amount:           amount,
		Type:             string(txnType),
		CounterpartyName: ofxPayee(line),
		Description:      strings.TrimSpace(string(line.Memo)),
	}
}

var cardPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// ofxPayee picks the cleanest counterparty name available on a statement line.
func ofxPayee(line ofxgo.Transaction) string {
	if line.Payee != nil && line.Payee.Name != "" {
		return strings.TrimSpace(string(line.Payee.Name))
	}

	name := strings.TrimSpace(string(line.Name))
	for _, prefix := range cardPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}
	// Leading "MM/DD " posting dates.
	if len(name) > 6 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}
