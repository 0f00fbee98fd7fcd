package syntax

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"
)

// Loader turns raw declaration-file bytes into a SourceFile model using
// Tree-sitter. A Loader is not safe for concurrent use; each worker owns its
// own instance.
type Loader struct {
	parser *sitter.Parser
	log    *zap.Logger
}

// NewLoader creates a Loader with the Python grammar.
func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Loader{parser: parser, log: log}
}

// Load parses content into a SourceFile. A file the grammar cannot make
// sense of yields a *ParseError; partial recovery is not attempted.
func (l *Loader) Load(ctx context.Context, path string, content []byte) (*SourceFile, error) {
	start := time.Now()

	tree, err := l.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, &ParseError{Path: path, Cause: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{Path: path, Cause: errors.New("source contains syntax errors")}
	}

	sf := &SourceFile{
		Path:     path,
		Text:     content,
		Imported: make(map[string]struct{}),
		Guarded:  make(map[string]struct{}),
		ClassPos: make(map[string]int),
	}
	sf.indexLines()

	l.walkModule(root, sf)

	l.log.Debug("loaded declaration file",
		zap.String("file", filepath.Base(path)),
		zap.Int("declarations", len(sf.Decls)),
		zap.Duration("elapsed", time.Since(start)))
	return sf, nil
}

// walkModule processes the top level of the file: imports, TYPE_CHECKING
// guard blocks, and class declarations.
func (l *Loader) walkModule(root *sitter.Node, sf *SourceFile) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)

		switch child.Type() {
		case "future_import_statement":
			sf.ImportEnd = int(child.EndByte())
			if strings.Contains(nodeText(child, sf.Text), "annotations") {
				sf.LazyAnnotations = true
			}

		case "import_statement", "import_from_statement":
			sf.ImportEnd = int(child.EndByte())
			bindImportedNames(child, sf.Text, sf.Imported)

		case "if_statement":
			if isTypeCheckingGuard(child, sf.Text) {
				l.collectGuardedImports(child, sf)
			}

		case "class_definition":
			l.parseClass(child, child, sf)

		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil && def.Type() == "class_definition" {
				l.parseClass(def, child, sf)
			}
		}
	}
}

// collectGuardedImports records names bound inside a TYPE_CHECKING block.
func (l *Loader) collectGuardedImports(ifNode *sitter.Node, sf *SourceFile) {
	body := ifNode.ChildByFieldName("consequence")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		switch stmt.Type() {
		case "import_statement", "import_from_statement":
			bindImportedNames(stmt, sf.Text, sf.Guarded)
		}
	}
}

// parseClass classifies one class declaration and, when interface-marked,
// extracts its method signatures. outer differs from node for decorated
// classes so the recorded line covers the decorators.
func (l *Loader) parseClass(node, outer *sitter.Node, sf *SourceFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, sf.Text)
	sf.ClassPos[name] = int(node.StartByte())

	decl := &InterfaceDeclaration{
		Name:        name,
		Line:        int(outer.StartPoint().Row) + 1,
		IsInterface: hasInterfaceMarker(node, sf.Text),
	}
	sf.Decls = append(sf.Decls, decl)

	if !decl.IsInterface {
		return
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			if sig := l.parseSignature(child, nil, sf); sig != nil {
				sig.Owner = decl
				decl.Methods = append(decl.Methods, sig)
			}
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil || def.Type() != "function_definition" {
				continue
			}
			if sig := l.parseSignature(def, child, sf); sig != nil {
				sig.Owner = decl
				decl.Methods = append(decl.Methods, sig)
			}
		}
	}
}

// parseSignature extracts one method signature. decorated is the wrapping
// decorated_definition when present, used for accessor classification.
func (l *Loader) parseSignature(node, decorated *sitter.Node, sf *SourceFile) *MethodSignature {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	sig := &MethodSignature{
		Name: nodeText(nameNode, sf.Text),
		Line: int(node.StartPoint().Row) + 1,
	}

	// The async marker and the def keyword are anonymous children.
	for i := 0; i < int(node.ChildCount()); i++ {
		tok := node.Child(i)
		switch tok.Type() {
		case "async":
			sig.IsAsync = true
		case "def":
			sig.DefSpan = Span{Start: int(tok.StartByte()), End: int(tok.EndByte())}
		}
	}

	if decorated != nil {
		sig.IsPropertyAccessor = hasAccessorDecorator(decorated, sf.Text)
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		sig.Params = parseParams(params, sf.Text, &sig.AnnRefs)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig.Return = &TypeRef{
			Text: nodeText(ret, sf.Text),
			Span: Span{Start: int(ret.StartByte()), End: int(ret.EndByte())},
		}
		collectAnnRefs(ret, sf.Text, &sig.AnnRefs)
	}
	return sig
}

// parseParams flattens the parameter list and harvests annotation refs.
func parseParams(params *sitter.Node, src []byte, refs *[]AnnRef) []Param {
	var out []Param
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, Param{Name: nodeText(p, src)})
		case "typed_parameter":
			var param Param
			if t := p.ChildByFieldName("type"); t != nil {
				param.Type = nodeText(t, src)
				collectAnnRefs(t, src, refs)
			}
			// The pattern is the first named child that is not the type.
			for j := 0; j < int(p.NamedChildCount()); j++ {
				c := p.NamedChild(j)
				if c.Type() == "identifier" {
					param.Name = nodeText(c, src)
					break
				}
			}
			out = append(out, param)
		case "default_parameter":
			var param Param
			if n := p.ChildByFieldName("name"); n != nil {
				param.Name = nodeText(n, src)
			}
			out = append(out, param)
		case "typed_default_parameter":
			var param Param
			if n := p.ChildByFieldName("name"); n != nil {
				param.Name = nodeText(n, src)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				param.Type = nodeText(t, src)
				collectAnnRefs(t, src, refs)
			}
			out = append(out, param)
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, Param{Name: nodeText(p, src)})
		}
	}
	return out
}

// collectAnnRefs walks an annotation expression and records identifier
// references. Only the object side of attribute access can name a
// file-local class, and string literals are lazily evaluated.
func collectAnnRefs(n *sitter.Node, src []byte, refs *[]AnnRef) {
	switch n.Type() {
	case "identifier":
		*refs = append(*refs, AnnRef{
			Name: nodeText(n, src),
			Span: Span{Start: int(n.StartByte()), End: int(n.EndByte())},
		})
	case "attribute":
		if obj := n.ChildByFieldName("object"); obj != nil {
			collectAnnRefs(obj, src, refs)
		}
	case "string":
		inner := strings.Trim(nodeText(n, src), "\"'")
		if isIdentifier(inner) {
			*refs = append(*refs, AnnRef{
				Name:   inner,
				Span:   Span{Start: int(n.StartByte()), End: int(n.EndByte())},
				Quoted: true,
			})
		}
	case "none":
		// The no-value marker is never a reference.
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			collectAnnRefs(n.NamedChild(i), src, refs)
		}
	}
}

// hasInterfaceMarker reports whether a class carries the interface
// capability: a Protocol or ABC base, qualified or subscripted, or an
// ABCMeta metaclass.
func hasInterfaceMarker(class *sitter.Node, src []byte) bool {
	supers := class.ChildByFieldName("superclasses")
	if supers == nil {
		return false
	}
	for i := 0; i < int(supers.NamedChildCount()); i++ {
		base := supers.NamedChild(i)
		switch base.Type() {
		case "identifier":
			if isMarkerName(nodeText(base, src)) {
				return true
			}
		case "attribute":
			if attr := base.ChildByFieldName("attribute"); attr != nil && isMarkerName(nodeText(attr, src)) {
				return true
			}
		case "subscript":
			if val := base.ChildByFieldName("value"); val != nil {
				txt := nodeText(val, src)
				if isMarkerName(txt) || strings.HasSuffix(txt, ".Protocol") {
					return true
				}
			}
		case "keyword_argument":
			name := base.ChildByFieldName("name")
			val := base.ChildByFieldName("value")
			if name != nil && val != nil && nodeText(name, src) == "metaclass" &&
				strings.HasSuffix(nodeText(val, src), "ABCMeta") {
				return true
			}
		}
	}
	return false
}

func isMarkerName(name string) bool {
	return name == "Protocol" || name == "ABC"
}

// hasAccessorDecorator reports whether a decorated method is a property-like
// accessor (exempt from all rules).
func hasAccessorDecorator(decorated *sitter.Node, src []byte) bool {
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		dec := decorated.NamedChild(i)
		if dec.Type() != "decorator" {
			continue
		}
		expr := strings.TrimPrefix(nodeText(dec, src), "@")
		if idx := strings.Index(expr, "("); idx > 0 {
			expr = expr[:idx]
		}
		switch {
		case expr == "property", expr == "cached_property", expr == "abstractproperty",
			expr == "functools.cached_property":
			return true
		case strings.HasSuffix(expr, ".setter"),
			strings.HasSuffix(expr, ".getter"),
			strings.HasSuffix(expr, ".deleter"):
			return true
		}
	}
	return false
}

// isTypeCheckingGuard reports whether an if-statement is the canonical
// type-checking-only import guard.
func isTypeCheckingGuard(ifNode *sitter.Node, src []byte) bool {
	cond := ifNode.ChildByFieldName("condition")
	if cond == nil {
		return false
	}
	txt := nodeText(cond, src)
	return txt == "TYPE_CHECKING" || txt == "typing.TYPE_CHECKING"
}

// bindImportedNames records the local names an import statement introduces.
func bindImportedNames(stmt *sitter.Node, src []byte, into map[string]struct{}) {
	switch stmt.Type() {
	case "import_statement":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			c := stmt.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				full := nodeText(c, src)
				root, _, _ := strings.Cut(full, ".")
				into[root] = struct{}{}
			case "aliased_import":
				if alias := c.ChildByFieldName("alias"); alias != nil {
					into[nodeText(alias, src)] = struct{}{}
				}
			}
		}
	case "import_from_statement":
		module := stmt.ChildByFieldName("module_name")
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			c := stmt.NamedChild(i)
			if module != nil && c.StartByte() == module.StartByte() {
				continue
			}
			switch c.Type() {
			case "dotted_name":
				into[nodeText(c, src)] = struct{}{}
			case "aliased_import":
				if alias := c.ChildByFieldName("alias"); alias != nil {
					into[nodeText(alias, src)] = struct{}{}
				}
			}
		}
	}
}

func nodeText(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
