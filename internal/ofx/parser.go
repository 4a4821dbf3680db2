// Package ofx turns OFX/QFX bank and card statements into transactions
// ready for categorization.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line with no closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// Statement is one account's worth of parsed transactions.
type Statement struct {
	AccountID    string
	Kind         string
	Transactions []model.TransactionInput
}

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: common.OrDefault(logger)}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseStatements parses an OFX/QFX file into per-account statements.
func (p *Parser) ParseStatements(ctx context.Context, reader io.Reader) ([]Statement, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var statements []Statement
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		statements = append(statements, Statement{
			AccountID:    string(stmt.BankAcctFrom.AcctID),
			Kind:         "bank",
			Transactions: p.convertList(stmt.BankTranList, string(stmt.BankAcctFrom.AcctID)),
		})
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		statements = append(statements, Statement{
			AccountID:    string(stmt.CCAcctFrom.AcctID),
			Kind:         "credit_card",
			Transactions: p.convertList(stmt.BankTranList, string(stmt.CCAcctFrom.AcctID)),
		})
	}
	return statements, nil
}

// ParseFile parses an OFX/QFX file and returns every transaction in
// statement order.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.TransactionInput, error) {
	statements, err := p.ParseStatements(ctx, reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.TransactionInput
	for _, stmt := range statements {
		transactions = append(transactions, stmt.Transactions...)
	}

	p.logger.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"statements", len(statements))

	return transactions, nil
}

// GetAccounts extracts unique account IDs from the OFX file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
	statements, err := p.ParseStatements(ctx, reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, stmt := range statements {
		if stmt.AccountID == "" || seen[stmt.AccountID] {
			continue
		}
		seen[stmt.AccountID] = true
		accounts = append(accounts, stmt.AccountID)
	}
	return accounts, nil
}

func (p *Parser) convertList(list *ofxgo.TransactionList, accountID string) []model.TransactionInput {
	if list == nil {
		return nil
	}
	transactions := make([]model.TransactionInput, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		tx, err := p.convertTransaction(ofxTx)
		if err != nil {
			p.logger.Warn("Skipping OFX transaction",
				"account", accountID,
				"fitid", string(ofxTx.FiTID),
				"error", err)
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions
}

// convertTransaction keeps the OFX sign: debits are negative outflows.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction) (model.TransactionInput, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		return model.TransactionInput{}, fmt.Errorf("invalid amount: %w", err)
	}

	description := strings.TrimSpace(string(ofxTx.Name))
	if description == "" {
		description = strings.TrimSpace(string(ofxTx.Memo))
	}

	tx := model.TransactionInput{
		OccurredAt:  ofxTx.DtPosted.Time,
		Description: description,
		Reference:   string(ofxTx.FiTID),
		Merchant:    p.extractMerchantName(ofxTx),
		Amount:      amount,
	}
	if err := tx.Validate(); err != nil {
		return model.TransactionInput{}, err
	}
	return tx, nil
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " date stamps.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
