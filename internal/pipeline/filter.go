package pipeline

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/jononovo/5ducksperday-sub010/internal/provider"
)

// contactFilter wraps a compiled CEL program that decides which contacts of
// a submission get enqueued. When disabled, Match always returns true.
type contactFilter struct {
	prog    cel.Program
	enabled bool
}

func newContactFilter(expr string) (contactFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return contactFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("contact_id", cel.IntType),
		cel.Variable("company_id", cel.IntType),
		cel.Variable("first_name", cel.StringType),
		cel.Variable("last_name", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("company_name", cel.StringType),
		cel.Variable("company_domain", cel.StringType),
	)
	if err != nil {
		return contactFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return contactFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return contactFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return contactFilter{}, err
	}
	return contactFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against one contact. Evaluation errors
// exclude the contact.
func (f contactFilter) Match(c provider.ContactIdentity) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"contact_id":     c.ContactID,
		"company_id":     c.CompanyID,
		"first_name":     c.FirstName,
		"last_name":      c.LastName,
		"email":          c.Email,
		"title":          c.Title,
		"company_name":   c.CompanyName,
		"company_domain": c.CompanyDomain,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
