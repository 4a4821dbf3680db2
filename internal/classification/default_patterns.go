package classification

// DefaultPatterns returns the built-in transaction patterns. They seed
// system rules and supply candidate categories when a result has none.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Income patterns - highest priority
		{
			Name:       "Direct Deposit",
			Type:       PatternTypeIncome,
			Category:   "income",
			Regex:      `\b(DIRECTDEP|DIRECT\s*DEP|DIR\s*DEP|PAYROLL|SALARY|WAGES)\b`,
			Priority:   100,
			Confidence: 0.95,
		},
		{
			Name:       "Interest Income",
			Type:       PatternTypeIncome,
			Category:   "interest_income",
			Regex:      `\b(INTEREST|INT\s*EARNED|INT\s*INCOME|DIVIDEND)\b`,
			Priority:   95,
			Confidence: 0.90,
		},
		{
			Name:       "Tax Refund",
			Type:       PatternTypeIncome,
			Category:   "tax_refund",
			Regex:      `\b(TAX\s*REF|IRS\s*TREAS|STATE\s*TAX\s*REF|FED\s*TAX\s*REF)\b`,
			Priority:   95,
			Confidence: 0.95,
		},
		{
			Name:       "Credit/Refund",
			Type:       PatternTypeIncome,
			Category:   "refund",
			Regex:      `\b(REFUND|REIMB|REIMBURSEMENT|CASHBACK|CASH\s*BACK)\b`,
			Priority:   90,
			Confidence: 0.85,
		},
		{
			Name:       "Client Payment",
			Type:       PatternTypeIncome,
			Category:   "revenue",
			Regex:      `\b(PAYMENT\s*FROM|INVOICE|CUSTOMER\s*PAY)\b`,
			Priority:   85,
			Confidence: 0.80,
		},

		// Transfer patterns
		{
			Name:       "Wire Transfer",
			Type:       PatternTypeTransfer,
			Category:   "transfer",
			Regex:      `\b(WIRE\s*IN|WIRE\s*OUT|WIRE\s*TRANSFER|WIRE\s*XFER)\b`,
			Priority:   85,
			Confidence: 0.90,
		},
		{
			Name:       "Account Transfer",
			Type:       PatternTypeTransfer,
			Category:   "transfer",
			Regex:      `\b(TRANSFER|XFER|TFR|MOVE\s*MONEY|ACCOUNT\s*TO\s*ACCOUNT)\b`,
			Priority:   80,
			Confidence: 0.85,
		},
		{
			Name:       "Credit Card Payment",
			Type:       PatternTypeTransfer,
			Category:   "credit_card_payment",
			Regex:      `\b(CC\s*PAYMENT|CREDIT\s*CARD\s*PAY|CARD\s*PAYMENT)\b`,
			Priority:   75,
			Confidence: 0.80,
		},
		{
			Name:       "Loan Payment",
			Type:       PatternTypeTransfer,
			Category:   "loan_payment",
			Regex:      `\b(LOAN\s*PMT|MORTGAGE\s*PMT|AUTO\s*PMT|STUDENT\s*LOAN\s*PMT)\b`,
			Priority:   70,
			Confidence: 0.75,
		},

		// Expense patterns
		{
			Name:       "Cloud Hosting",
			Type:       PatternTypeExpense,
			Category:   "software",
			Regex:      `\b(AWS|AMAZON\s*WEB\s*SERVICES|GOOGLE\s*CLOUD|GCP|AZURE|DIGITALOCEAN|HEROKU|CLOUDFLARE)\b`,
			Priority:   65,
			Confidence: 0.80,
		},
		{
			Name:       "Software Subscription",
			Type:       PatternTypeExpense,
			Category:   "software",
			Regex:      `\b(GITHUB|ATLASSIAN|SLACK|ADOBE|MICROSOFT|DROPBOX|NOTION|ZOOM|SAAS)\b`,
			Priority:   60,
			Confidence: 0.75,
		},
		{
			Name:       "Travel",
			Type:       PatternTypeExpense,
			Category:   "travel",
			Regex:      `\b(AIRLINES?|AIRBNB|HOTEL|MARRIOTT|HILTON|UBER|LYFT|TAXI|DELTA|UNITED)\b`,
			Priority:   55,
			Confidence: 0.70,
		},
		{
			Name:       "Meals",
			Type:       PatternTypeExpense,
			Category:   "meals",
			Regex:      `\b(RESTAURANT|CAFE|COFFEE|STARBUCKS|DOORDASH|GRUBHUB|DINER|BISTRO)\b`,
			Priority:   55,
			Confidence: 0.70,
		},
		{
			Name:       "Utilities",
			Type:       PatternTypeExpense,
			Category:   "utilities",
			Regex:      `\b(ELECTRIC|POWER|WATER|GAS\s*CO|COMCAST|VERIZON|AT&T|INTERNET)\b`,
			Priority:   50,
			Confidence: 0.70,
		},
		{
			Name:       "ATM Withdrawal",
			Type:       PatternTypeExpense,
			Category:   "cash_withdrawal",
			Regex:      `\b(ATM|CASH\s*WITHDRAWAL|WITHDRAW)\b`,
			Priority:   50,
			Confidence: 0.80,
		},
		{
			Name:       "Fee",
			Type:       PatternTypeExpense,
			Category:   "bank_fees",
			Regex:      `\b(FEE|SERVICE\s*CHG|PENALTY|OVERDRAFT)\b`,
			Priority:   45,
			Confidence: 0.75,
		},
		{
			Name:       "Bill Payment",
			Type:       PatternTypeExpense,
			Category:   "subscriptions",
			Regex:      `\b(BILL\s*PAY|AUTOPAY|RECURRING|SUBSCRIPTION)\b`,
			Priority:   45,
			Confidence: 0.70,
		},
		{
			Name:       "Office Supplies",
			Type:       PatternTypeExpense,
			Category:   "office_supplies",
			Regex:      `\b(STAPLES|OFFICE\s*DEPOT|OFFICEMAX|PRINTER|TONER)\b`,
			Priority:   45,
			Confidence: 0.70,
		},
		{
			Name:       "Purchase",
			Type:       PatternTypeExpense,
			Category:   "shopping",
			Regex:      `\b(PURCHASE|POS|DEBIT|CARD\s*PURCHASE)\b`,
			Priority:   40,
			Confidence: 0.60,
		},
	}
}
