package query

import (
	"context"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

// Transaction issues BEGIN, COMMIT and ROLLBACK through the same path as
// any other statement. There is no nesting.
type Transaction struct {
	q      Query
	active bool
}

func NewTransaction(env Env) *Transaction {
	return &Transaction{q: newQuery(env, "")}
}

func (t *Transaction) Active() bool { return t.active }

// Begin opens the transaction. namespaces lists the datasets it will
// touch, for connections that have to prepare them first.
func (t *Transaction) Begin(ctx context.Context, namespaces ...string) error {
	if t.active {
		return errs.New(errs.ErrKindInvalidInput, "transaction already begun")
	}
	if err := t.q.env.validate(); err != nil {
		return err
	}
	if p, ok := t.q.env.Conn.(database.NamespacePreparer); ok && len(namespaces) > 0 {
		if err := p.PrepareNamespaces(ctx, namespaces...); err != nil {
			return err
		}
	}
	if err := t.q.exec(ctx, t.q.Builder.BeginQuery()); err != nil {
		return err
	}
	t.active = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.active {
		return errs.New(errs.ErrKindInvalidInput, "commit without transaction")
	}
	t.active = false
	return t.q.exec(ctx, t.q.Builder.CommitQuery())
}

// Rollback aborts the transaction. It is a no-op when none is active.
func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.active {
		return nil
	}
	t.active = false
	return t.q.exec(ctx, t.q.Builder.RollbackQuery())
}
