package typing

import "strings"

// SQL is an ordered list of transactions; each transaction is an ordered list
// of statements executed atomically by the Executor.
type SQL struct {
	Transactions [][]string
}

// Of builds SQL running every statement inside a single transaction.
func Of(statements ...string) SQL {
	stmts := nonEmpty(statements)
	if len(stmts) == 0 {
		return SQL{}
	}
	return SQL{Transactions: [][]string{stmts}}
}

// Separately builds SQL running each statement in its own transaction.
func Separately(statements ...string) SQL {
	var out SQL
	for _, s := range nonEmpty(statements) {
		out.Transactions = append(out.Transactions, []string{s})
	}
	return out
}

// Concat appends the transactions of parts in order.
func Concat(parts ...SQL) SQL {
	var out SQL
	for _, p := range parts {
		out.Transactions = append(out.Transactions, p.Transactions...)
	}
	return out
}

func (s SQL) IsEmpty() bool { return len(s.Transactions) == 0 }

// StatementCount is the total number of statements across transactions.
func (s SQL) StatementCount() int {
	n := 0
	for _, tx := range s.Transactions {
		n += len(tx)
	}
	return n
}

// String renders the SQL as a script, one BEGIN/COMMIT block per transaction.
func (s SQL) String() string {
	var b strings.Builder
	for i, tx := range s.Transactions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("BEGIN;\n")
		for _, stmt := range tx {
			b.WriteString(stmt)
			b.WriteString(";\n")
		}
		b.WriteString("COMMIT;\n")
	}
	return b.String()
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
