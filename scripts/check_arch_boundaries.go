package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var allowed = map[string]map[string]bool{
	"cli": {
		"api":        true,
		"config":     true,
		"ledger":     true,
		"localstore": true,
		"logging":    true,
		"media":      true,
		"model":      true,
		"tracker":    true,
		"version":    true,
	},
	"tracker": {
		"api":   true,
		"model": true,
	},
	"api": {
		"model":   true,
		"version": true,
	},
	"ledger": {
		"localstore": true,
		"model":      true,
	},
	"media": {
		"localstore": true,
		"model":      true,
	},
	"config":     {},
	"fakeapi":    {},
	"localstore": {},
	"logging":    {},
	"model":      {},
	"version":    {},
}

const modulePrefix = "vidgen/internal/"

func main() {
	violations, err := checkBoundaries("internal")
	if err != nil {
		fmt.Fprintf(os.Stderr, "boundary walk failed: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "architecture boundary violations detected:")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "- %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("architecture boundary check: OK")
}

// checkBoundaries walks the non-test Go files under root (an internal/
// directory) and reports every import the allowed table forbids.
func checkBoundaries(root string) ([]string, error) {
	var violations []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		srcPkg := sourcePackage(rel)
		if srcPkg == "" {
			return nil
		}
		allowMap, ok := allowed[srcPkg]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: unknown source package %q", path, srcPkg))
			return nil
		}

		file, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, imp := range file.Imports {
			tgtPkg, ok := targetPackage(strings.Trim(imp.Path.Value, "\""))
			if !ok || tgtPkg == srcPkg {
				continue
			}
			if !allowMap[tgtPkg] {
				violations = append(violations, fmt.Sprintf("%s: %s -> %s is forbidden", path, srcPkg, tgtPkg))
			}
		}
		return nil
	})
	return violations, err
}

// sourcePackage maps a path relative to internal/ to its top-level package.
func sourcePackage(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

func targetPackage(importPath string) (string, bool) {
	rest, ok := strings.CutPrefix(importPath, modulePrefix)
	if !ok || rest == "" {
		return "", false
	}
	pkg, _, _ := strings.Cut(rest, "/")
	return pkg, true
}
