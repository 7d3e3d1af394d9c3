package ir

// Global describes a module-level variable: its name, element type, array
// dimensions (empty for a scalar), and flattened initializer values (nil
// means zero-initialized).
type Global struct {
	Name string
	Type DataType
	Dims []int64
	Init []int64 // float elements hold their bit pattern: math.Float32bits for f32, math.Float64bits for f64
}

// Module is the top-level compilation unit consumed by the backend: a list
// of global variables, function declarations (no body), and function
// definitions").
type Module struct {
	Globals      []*Global
	Declarations []*Signature
	Functions    []*Function
}

// NewModule returns an empty Module.
func NewModule() *Module { return &Module{} }

// AddGlobal appends g to the module's global list.
func (m *Module) AddGlobal(g *Global) { m.Globals = append(m.Globals, g) }

// AddDeclaration registers an external function signature with no body.
func (m *Module) AddDeclaration(sig *Signature) { m.Declarations = append(m.Declarations, sig) }

// AddFunction registers a function definition.
func (m *Module) AddFunction(f *Function) { m.Functions = append(m.Functions, f) }
