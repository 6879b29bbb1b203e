package vtapi

import (
	"context"
	"time"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/query"
)

const (
	methodsTable     = "methods"
	methodsKeysTable = "methods_keys"
)

// Method iterates public.methods.
type Method struct {
	KeyValues
}

// NewMethod selects the method called name, or every method when name is
// empty.
func NewMethod(c *Commons, name string) *Method {
	m := &Method{KeyValues: newKeyValues(c.Derive(), "", methodsTable)}
	if b := m.where(); b != nil {
		if name != "" {
			b.WhereString("mtname", name, "=", "")
		}
		b.OrderBy("mtname", false)
	}
	m.onRow = func() { m.c.Context.Method = m.Name() }
	m.preUpdate = func(b database.QueryBuilder) bool {
		name := m.Name()
		return name != "" && b.WhereString("mtname", name, "=", "")
	}
	return m
}

func (m *Method) Name() string        { return m.str("mtname") }
func (m *Method) Description() string { return m.str("description") }
func (m *Method) Created() time.Time  { return m.ts("created") }

// LoadMethodKeys iterates the parameter and output keys of the current
// method.
func (m *Method) LoadMethodKeys() (*MethodKeys, error) {
	return NewMethodKeys(m.c)
}

// MethodKeyDefs reads every key of the current method.
func (m *Method) MethodKeyDefs(ctx context.Context) ([]MethodKeyDef, error) {
	keys, err := m.LoadMethodKeys()
	if err != nil {
		return nil, err
	}
	var defs []MethodKeyDef
	for {
		ok, err := keys.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return defs, nil
		}
		defs = append(defs, keys.Def())
	}
}

// --- MethodKeys ---

// MethodKeyDef declares one key of a method: a task parameter when it is
// an input, a column the method writes when it is an output.
type MethodKeyDef struct {
	Name        string
	Type        string
	InOut       database.InOutType
	Required    bool
	DefaultNum  []float64
	DefaultStr  []string
	Description string
}

func (k MethodKeyDef) validate() error {
	if k.Name == "" || k.Type == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "method key %q needs a name and a type", k.Name)
	}
	if _, ok := database.ParseInOutType(string(k.InOut)); !ok {
		return errs.Newf(errs.ErrKindInvalidInput, "method key %q: invalid inout %q", k.Name, k.InOut)
	}
	return nil
}

func (k MethodKeyDef) insert(ctx context.Context, c *Commons, method string) error {
	ins := query.NewInsert(c.Env(), methodsKeysTable)
	b := ins.Builder
	b.KeyString("mtname", method, "")
	b.KeyString("keyname", k.Name, "")
	b.KeyString("typname", k.Type, "")
	b.KeyInouttype("inout", string(k.InOut), "")
	b.KeyBool("required", k.Required, "")
	if len(k.DefaultNum) > 0 {
		b.KeyFloatVector("default_num", k.DefaultNum, "")
	}
	if len(k.DefaultStr) > 0 {
		b.KeyStringVector("default_str", k.DefaultStr, "")
	}
	if k.Description != "" {
		b.KeyString("description", k.Description, "")
	}
	return ins.Execute(ctx)
}

// MethodKeys iterates public.methods_keys of the Context's method.
type MethodKeys struct {
	KeyValues
}

func NewMethodKeys(c *Commons) (*MethodKeys, error) {
	if c.Context.Method == "" {
		return nil, errs.New(errs.ErrKindConfig, "method not specified")
	}
	k := &MethodKeys{KeyValues: newKeyValues(c.Derive(), "", methodsKeysTable)}
	if b := k.where(); b != nil {
		b.WhereString("mtname", c.Context.Method, "=", "")
		b.OrderBy("keyname", false)
	}
	return k, nil
}

func (k *MethodKeys) Name() string        { return k.str("keyname") }
func (k *MethodKeys) Type() string        { return k.str("typname") }
func (k *MethodKeys) Required() bool      { return k.flag("required") }
func (k *MethodKeys) Description() string { return k.str("description") }

func (k *MethodKeys) InOut() database.InOutType {
	v, err := k.sel.Result.GetInOutType(k.col("inout"))
	k.debug("inout", err)
	return v
}

func (k *MethodKeys) DefaultNum() []float64 {
	v, err := k.GetFloatVector("default_num")
	k.debug("default_num", err)
	return v
}

func (k *MethodKeys) DefaultStr() []string {
	v, err := k.GetStringVector("default_str")
	k.debug("default_str", err)
	return v
}

// Def returns the current row as a MethodKeyDef.
func (k *MethodKeys) Def() MethodKeyDef {
	return MethodKeyDef{
		Name:        k.Name(),
		Type:        k.Type(),
		InOut:       k.InOut(),
		Required:    k.Required(),
		DefaultNum:  k.DefaultNum(),
		DefaultStr:  k.DefaultStr(),
		Description: k.Description(),
	}
}
