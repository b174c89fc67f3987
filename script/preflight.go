package script

import (
	"fmt"
	"regexp"
	"strings"

	"src.elv.sh/pkg/parse"
)

// builtins are the Elvish builtins scene code may call besides the API.
var builtins = []string{
	"put", "echo", "var", "set", "if", "for", "while",
	"+", "-", "*", "/", "%",
	"<", "<=", "==", "!=", ">", ">=",
	"and", "or", "not", "num", "to-string",
}

// reserved are the builtin variables, some of which act on the process when
// assigned ($pwd changes directory, $paths rewrites PATH).
var reserved = map[string]bool{
	"pid": true, "ok": true, "nil": true, "true": true,
	"false": true, "buildinfo": true, "version": true, "paths": true,
	"args": true, "pwd": true, "before-chdir": true, "after-chdir": true,
	"value-out-indicator": true, "notify-bg-job-success": true, "num-bg-jobs": true,
}

// localName matches a plain local variable, optionally a rest variable.
var localName = regexp.MustCompile(`^@?[A-Za-z_][A-Za-z0-9_-]*$`)

// checker walks a parse tree and rejects anything outside the allow-list.
type checker struct {
	allowed map[string]bool
}

func newChecker(allowed map[string]bool) *checker {
	return &checker{allowed: allowed}
}

// check parses code and reports the first forbidden construct.
func (c *checker) check(name, code string) error {
	tree, err := parse.Parse(parse.Source{Name: name, Code: code}, parse.Config{})
	if err != nil {
		return err
	}
	return c.chunk(tree.Root)
}

func (c *checker) forbid(n parse.Node, format string, args ...any) error {
	r := n.Range()
	return fmt.Errorf("%w: %s at %d", ErrForbidden, fmt.Sprintf(format, args...), r.From)
}

func (c *checker) chunk(n *parse.Chunk) error {
	if n == nil {
		return nil
	}
	for _, p := range n.Pipelines {
		if p.Background {
			return c.forbid(p, "background job")
		}
		// Pipeline stages run on their own goroutines.
		if len(p.Forms) > 1 {
			return c.forbid(p, "pipeline")
		}
		for _, f := range p.Forms {
			if err := c.form(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *checker) form(f *parse.Form) error {
	if len(f.Redirs) > 0 {
		return c.forbid(f.Redirs[0], "redirection")
	}
	if f.Head != nil {
		name, ok := bareword(f.Head)
		if !ok {
			return c.forbid(f.Head, "computed command %s", parse.SourceText(f.Head))
		}
		if !c.allowed[name] {
			return c.forbid(f.Head, "command %s", name)
		}
		if name == "var" || name == "set" {
			if err := c.lvalues(f.Args); err != nil {
				return err
			}
		}
	}
	for _, a := range f.Args {
		if err := c.compound(a); err != nil {
			return err
		}
	}
	return c.pairs(f.Opts)
}

// lvalues checks the assignment targets of var and set, which are the
// arguments before "=". Only local variables may be written.
func (c *checker) lvalues(args []*parse.Compound) error {
	for _, a := range args {
		if name, ok := bareword(a); ok && name == "=" {
			return nil
		}
		if err := c.lvalue(a); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) lvalue(n *parse.Compound) error {
	for _, ix := range n.Indexings {
		h := ix.Head
		if h == nil {
			continue
		}
		switch h.Type {
		case parse.Braced:
			for _, e := range h.Braced {
				if err := c.lvalue(e); err != nil {
					return err
				}
			}
		case parse.Bareword, parse.SingleQuoted, parse.DoubleQuoted:
			name := strings.TrimPrefix(h.Value, "@")
			if !localName.MatchString(h.Value) || reserved[name] {
				return c.forbid(h, "assignment to $%s", h.Value)
			}
		default:
			return c.forbid(h, "computed assignment target %s", parse.SourceText(h))
		}
	}
	return nil
}

func (c *checker) pairs(ps []*parse.MapPair) error {
	for _, p := range ps {
		if err := c.compound(p.Key); err != nil {
			return err
		}
		if err := c.compound(p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) compounds(cs []*parse.Compound) error {
	for _, cn := range cs {
		if err := c.compound(cn); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) compound(n *parse.Compound) error {
	if n == nil {
		return nil
	}
	for _, ix := range n.Indexings {
		if err := c.primary(ix.Head); err != nil {
			return err
		}
		for _, a := range ix.Indices {
			if err := c.compounds(a.Compounds); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *checker) primary(p *parse.Primary) error {
	if p == nil {
		return nil
	}
	switch p.Type {
	case parse.Wildcard:
		return c.forbid(p, "wildcard")
	case parse.Tilde:
		return c.forbid(p, "tilde expansion")
	case parse.Variable:
		// Function variables and namespaces would reach commands the
		// allow-list keeps out.
		if strings.HasSuffix(p.Value, "~") || strings.Contains(p.Value, ":") {
			return c.forbid(p, "variable $%s", p.Value)
		}
	case parse.ExceptionCapture, parse.OutputCapture:
		return c.chunk(p.Chunk)
	case parse.Lambda:
		if err := c.compounds(p.Elements); err != nil {
			return err
		}
		if err := c.pairs(p.MapPairs); err != nil {
			return err
		}
		return c.chunk(p.Chunk)
	case parse.List:
		return c.compounds(p.Elements)
	case parse.Map:
		return c.pairs(p.MapPairs)
	case parse.Braced:
		return c.compounds(p.Braced)
	}
	return nil
}

// bareword returns the literal name of a compound made of a single bareword.
func bareword(n *parse.Compound) (string, bool) {
	if len(n.Indexings) != 1 {
		return "", false
	}
	ix := n.Indexings[0]
	if len(ix.Indices) > 0 || ix.Head == nil || ix.Head.Type != parse.Bareword {
		return "", false
	}
	return ix.Head.Value, true
}
