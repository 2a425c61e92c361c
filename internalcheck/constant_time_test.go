package internalcheck

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

var secretPackages = []string{
	"github.com/flashbots/poplar/crypto",
	"github.com/flashbots/poplar/idpf",
	"github.com/flashbots/poplar/poplar1",
}

func loadSecretPackages(t *testing.T, mode packages.LoadMode) []*packages.Package {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{Mode: mode}, secretPackages...)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			t.Fatalf("load %s: %v", pkg.PkgPath, e)
		}
	}
	return pkgs
}

func TestNoDirectSecretComparison(t *testing.T) {
	pkgs := loadSecretPackages(t, packages.NeedSyntax|packages.NeedTypes|packages.NeedTypesInfo|packages.NeedFiles|packages.NeedName)

	var findings []string
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				be, ok := n.(*ast.BinaryExpr)
				if !ok || (be.Op != token.EQL && be.Op != token.NEQ) {
					return true
				}

				left := pkg.TypesInfo.TypeOf(be.X)
				right := pkg.TypesInfo.TypeOf(be.Y)
				pos := pkg.Fset.Position(be.Pos())

				switch {
				case isByteSlice(left) && isByteSlice(right):
					findings = append(findings, fmt.Sprintf("%s: avoid %s on bytes; use crypto/subtle", pos, be.Op))
				case isFieldElement(left) || isFieldElement(right):
					findings = append(findings, fmt.Sprintf("%s: avoid %s on field elements; use Equal", pos, be.Op))
				}
				return true
			})
		}
	}

	if len(findings) > 0 {
		t.Fatalf("constant-time policy violation:\n%s", strings.Join(findings, "\n"))
	}
}

func isByteSlice(typ types.Type) bool {
	if typ == nil {
		return false
	}

	switch tt := typ.(type) {
	case *types.Slice:
		return isByte(tt.Elem())
	case *types.Pointer:
		return isByteSlice(tt.Elem())
	case *types.Named:
		return isByteSlice(tt.Underlying())
	case *types.Array:
		return isByte(tt.Elem())
	default:
		return false
	}
}

func isByte(t types.Type) bool {
	basic, ok := t.(*types.Basic)
	return ok && basic.Kind() == types.Byte
}

func isFieldElement(typ types.Type) bool {
	named, ok := typ.(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return false
	}
	if named.Obj().Pkg().Path() != "github.com/flashbots/poplar/crypto" {
		return false
	}
	switch named.Obj().Name() {
	case "Field64", "Field255":
		return true
	}
	return false
}
