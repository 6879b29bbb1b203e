package query

import (
	"context"

	"github.com/koustreak/vtapi/internal/database"
)

// Select reads rows into its ResultSet. With a limit set it reads one page
// per execution and ExecuteNext moves to the following page.
type Select struct {
	Query
	Result database.ResultSet

	limit    int
	offset   int
	executed bool
}

func NewSelect(env Env, table string) *Select {
	s := &Select{Query: newQuery(env, table)}
	if env.Backend != nil {
		var types *database.TypeCatalog
		if env.Conn != nil {
			types = env.Conn.Types()
		}
		s.Result = env.Backend.NewResultSet(types, s.log)
	}
	return s
}

// From projects column of table. An empty table means the default one.
func (s *Select) From(table, column string) bool {
	if s.Builder == nil {
		return false
	}
	return s.Builder.KeyFrom(table, column)
}

// SetLimit sets the page size; 0 reads everything at once.
func (s *Select) SetLimit(n int) {
	s.limit = max(n, 0)
}

func (s *Select) Limit() int { return s.limit }

// Executed reports whether the statement ran at least once since the last
// Reset.
func (s *Select) Executed() bool { return s.executed }

// Execute runs the statement from its first page and returns the row
// count.
func (s *Select) Execute(ctx context.Context) (int, error) {
	s.offset = 0
	return s.fetch(ctx)
}

// ExecuteNext reads the page after the current one. Without a limit there
// is no next page and it returns 0.
func (s *Select) ExecuteNext(ctx context.Context) (int, error) {
	if !s.executed {
		return s.Execute(ctx)
	}
	if s.limit == 0 {
		s.Result.Clear()
		return 0, nil
	}
	s.offset += s.limit
	return s.fetch(ctx)
}

func (s *Select) fetch(ctx context.Context) (int, error) {
	if err := s.env.validate(); err != nil {
		s.err = err
		return -1, err
	}
	s.Builder.Limit(s.limit)
	s.Builder.Offset(s.offset)
	text := s.Builder.SelectQuery()
	s.executed = true
	if database.IsInvalidQuery(text) {
		s.err = database.ErrNoQuery(text)
		s.log.Error(s.err.Error())
		s.Result.Clear()
		return -1, s.err
	}
	n, err := s.env.Conn.Fetch(ctx, text, s.Builder.Params(), s.Result)
	s.err = err
	if err != nil {
		s.Result.Clear()
	}
	return n, err
}

// Count returns the number of rows the predicates select, ignoring paging.
func (s *Select) Count(ctx context.Context) (int64, error) {
	if err := s.env.validate(); err != nil {
		return 0, err
	}
	text := s.Builder.CountQuery()
	if database.IsInvalidQuery(text) {
		return 0, database.ErrNoQuery(text)
	}
	rs := s.env.Backend.NewResultSet(s.env.Conn.Types(), s.log)
	n, err := s.env.Conn.Fetch(ctx, text, s.Builder.Params(), rs)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, nil
	}
	rs.SetPos(0)
	return rs.GetInt8(0)
}

// Rewind forgets the result and paging position so the next Execute or
// ExecuteNext starts over. Keys and predicates stay.
func (s *Select) Rewind() {
	if s.Result != nil {
		s.Result.Clear()
	}
	s.offset = 0
	s.executed = false
}

// Reset clears the statement, the result and the paging position. The
// limit survives.
func (s *Select) Reset() {
	s.Query.Reset()
	if s.Result != nil {
		s.Result.Clear()
	}
	s.offset = 0
	s.executed = false
}
