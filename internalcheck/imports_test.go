package internalcheck

import (
	"fmt"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestNoTestutilInProduction(t *testing.T) {
	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedName | packages.NeedImports}, "github.com/flashbots/poplar/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var findings []string
	for _, pkg := range pkgs {
		if pkg.PkgPath == "github.com/flashbots/poplar/testutil" {
			continue
		}
		if _, ok := pkg.Imports["github.com/flashbots/poplar/testutil"]; ok {
			findings = append(findings, fmt.Sprintf("%s: imports testutil outside tests", pkg.PkgPath))
		}
	}

	if len(findings) > 0 {
		t.Fatalf("import policy violation:\n%s", strings.Join(findings, "\n"))
	}
}
