package detector

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sync"
)

// ContractIndex tracks which .go files declare a weft component. A file
// declares a component when some type carries the contract method
//
//	Render(context.Context, io.Writer) error
//
// Detection parses the file and walks its AST; results are cached per path
// so repeated notifications for an unchanged file never re-parse. Removed
// files are answered from the cache alone, since their content is gone.
type ContractIndex struct {
	hasher *fileHasher

	mu      sync.Mutex
	entries map[string]bool
}

// NewContractIndex creates an empty contract index.
func NewContractIndex() *ContractIndex {
	return &ContractIndex{
		hasher:  newFileHasher(),
		entries: make(map[string]bool),
	}
}

// IsContractFile reports whether the file at path currently declares a weft
// component. Unparseable or unreadable files report false.
func (ci *ContractIndex) IsContractFile(path string) bool {
	if !ci.hasher.Changed(path) {
		ci.mu.Lock()
		cached, known := ci.entries[path]
		ci.mu.Unlock()
		if known {
			return cached
		}
	}

	declares := parseDeclaresComponent(path)

	ci.mu.Lock()
	ci.entries[path] = declares
	ci.mu.Unlock()

	return declares
}

// WasContractFile answers from the cache only. Used for removed files.
func (ci *ContractIndex) WasContractFile(path string) bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.entries[path]
}

// Evict drops the cached answer for a path.
func (ci *ContractIndex) Evict(path string) {
	ci.mu.Lock()
	delete(ci.entries, path)
	ci.mu.Unlock()
	ci.hasher.Evict(path)
}

func parseDeclaresComponent(path string) bool {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return false
	}

	for _, decl := range node.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || fn.Name.Name != "Render" {
			continue
		}
		if isRenderSignature(fn.Type) {
			return true
		}
	}
	return false
}

// isRenderSignature matches func(context.Context, io.Writer) error.
func isRenderSignature(ft *ast.FuncType) bool {
	if ft.Params == nil || len(ft.Params.List) != 2 {
		return false
	}
	if ft.Results == nil || len(ft.Results.List) != 1 {
		return false
	}
	if !isSelector(ft.Params.List[0].Type, "context", "Context") {
		return false
	}
	if !isSelector(ft.Params.List[1].Type, "io", "Writer") {
		return false
	}
	res, ok := ft.Results.List[0].Type.(*ast.Ident)
	return ok && res.Name == "error"
}

func isSelector(expr ast.Expr, pkg, name string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	ident, ok := sel.X.(*ast.Ident)
	return ok && ident.Name == pkg && sel.Sel.Name == name
}
