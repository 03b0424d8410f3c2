package resolve

// Warning records a reference lenient mode replaced with empty text.
type Warning struct {
	Reference string `json:"reference"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Context is the state of one top-level Resolve call. It is never shared
// between calls, so it needs no locking.
type Context struct {
	vars     map[string]string
	maxDepth int
	lenient  bool

	cache   map[string]string
	visited map[string]struct{}
	chain   []string
	depth   int

	warnings   []Warning
	references int
	cacheHits  int
}

func newContext(vars map[string]string, opts Options) *Context {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Context{
		vars:     copied,
		maxDepth: opts.MaxDepth,
		lenient:  opts.Lenient,
		cache:    make(map[string]string),
		visited:  make(map[string]struct{}),
		depth:    1,
	}
}

// Var returns the caller-supplied variable name.
func (c *Context) Var(name string) (string, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Vars returns a copy of the call's variables.
func (c *Context) Vars() map[string]string {
	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Depth is the nesting level of the reference being resolved, starting at 1
// for references written in the template itself.
func (c *Context) Depth() int {
	return c.depth
}

// Chain returns the keys of the references currently being resolved,
// outermost first.
func (c *Context) Chain() []string {
	return append([]string(nil), c.chain...)
}

func (c *Context) push(key string) {
	c.visited[key] = struct{}{}
	c.chain = append(c.chain, key)
}

func (c *Context) pop(key string) {
	delete(c.visited, key)
	c.chain = c.chain[:len(c.chain)-1]
}

func (c *Context) visiting(key string) bool {
	_, ok := c.visited[key]
	return ok
}
