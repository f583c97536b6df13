package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// membership_write_audit scans internal/services and reports every method that writes
// membership links or commands. Only the membership service may do so; anything
// else bypasses the lock set and the reconciler, and makes the script exit 1.

type repoField struct {
	Name     string `json:"name"`
	RepoType string `json:"repo_type"`
	Guarded  bool   `json:"guarded"`
}

type methodStats struct {
	StructName         string   `json:"struct_name"`
	Method             string   `json:"method"`
	File               string   `json:"file"`
	Line               int      `json:"line"`
	GuardedWriteCalls  int      `json:"guarded_write_calls"`
	GuardedFields      []string `json:"guarded_fields_written"`
	ReconcilerCalls    int      `json:"reconciler_calls"`
	ReconcilerMethods  []string `json:"reconciler_methods"`
	InsideMembershipSv bool     `json:"inside_membership_service"`
}

type auditReport struct {
	GuardedWriteCallsites int           `json:"guarded_write_callsites"`
	ReconcilerCallsites   int           `json:"reconciler_callsites"`
	Methods               []methodStats `json:"methods"`
	Violations            []methodStats `json:"violations"`
	GuardedFieldInventory []repoField   `json:"guarded_field_inventory"`
}

type structFields struct {
	RepoFields       map[string]repoField
	ReconcilerFields map[string]bool
}

const membershipServiceStruct = "membershipService"

var guardedRepoTypes = map[string]bool{
	"MembershipRepo": true,
	"CommandRepo":    true,
}

var repoWriteMethods = map[string]bool{
	"ReplaceDeviceGroups":  true,
	"ReplaceGroupDevices":  true,
	"ReplaceGroupProfiles": true,
	"ReplaceProfileGroups": true,
	"Append":               true,
	"Transition":           true,
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	servicesDir := filepath.Join(root, "internal", "services")
	fset := token.NewFileSet()

	pkgs, err := parser.ParseDir(fset, servicesDir, func(fi os.FileInfo) bool {
		name := fi.Name()
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}, 0)
	if err != nil {
		exitf("parse dir: %v", err)
	}

	pkg, ok := pkgs["services"]
	if !ok {
		exitf("services package not found in %s", servicesDir)
	}

	fieldsByStruct := map[string]structFields{}
	for _, f := range pkg.Files {
		collectStructFields(f, fieldsByStruct)
	}

	var methods []methodStats
	for filePath, f := range pkg.Files {
		rel, err := filepath.Rel(root, filePath)
		if err != nil {
			rel = filePath
		}
		collectMethodStats(fset, f, rel, fieldsByStruct, &methods)
	}

	report := buildReport(fieldsByStruct, methods)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitf("marshal report: %v", err)
	}
	fmt.Println(string(out))
	if len(report.Violations) > 0 {
		os.Exit(1)
	}
}

func collectStructFields(file *ast.File, out map[string]structFields) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			sf := structFields{
				RepoFields:       map[string]repoField{},
				ReconcilerFields: map[string]bool{},
			}
			for _, field := range st.Fields.List {
				if len(field.Names) == 0 {
					continue
				}
				fieldName := field.Names[0].Name
				typ := field.Type
				if star, ok := typ.(*ast.StarExpr); ok {
					typ = star.X
				}
				sel, ok := typ.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				pkgIdent, ok := sel.X.(*ast.Ident)
				if !ok {
					continue
				}
				switch pkgIdent.Name {
				case "repos":
					repoType := strings.TrimSpace(sel.Sel.Name)
					if !strings.HasSuffix(repoType, "Repo") {
						continue
					}
					sf.RepoFields[fieldName] = repoField{
						Name:     fieldName,
						RepoType: repoType,
						Guarded:  guardedRepoTypes[repoType],
					}
				case "reconcile":
					if sel.Sel.Name == "Reconciler" {
						sf.ReconcilerFields[fieldName] = true
					}
				}
			}
			if len(sf.RepoFields) > 0 || len(sf.ReconcilerFields) > 0 {
				out[ts.Name.Name] = sf
			}
		}
	}
}

func collectMethodStats(
	fset *token.FileSet,
	file *ast.File,
	relFile string,
	fieldsByStruct map[string]structFields,
	out *[]methodStats,
) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || fd.Body == nil || len(fd.Recv.List) == 0 {
			continue
		}

		recvName, recvType := recvInfo(fd.Recv.List[0])
		if recvType == "" || recvName == "" {
			continue
		}
		sf, ok := fieldsByStruct[recvType]
		if !ok {
			continue
		}

		writeCalls := 0
		writtenFields := map[string]bool{}
		reconcilerCalls := 0
		reconcilerMethods := map[string]bool{}

		// Closures count toward the enclosing method, which covers mutation.run bodies.
		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			fnSel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			rcvSel, ok := fnSel.X.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			baseIdent, ok := rcvSel.X.(*ast.Ident)
			if !ok || baseIdent.Name != recvName {
				return true
			}

			field := strings.TrimSpace(rcvSel.Sel.Name)
			method := strings.TrimSpace(fnSel.Sel.Name)

			if rf, ok := sf.RepoFields[field]; ok && rf.Guarded && repoWriteMethods[method] {
				writeCalls++
				writtenFields[field] = true
				return true
			}
			if sf.ReconcilerFields[field] {
				reconcilerCalls++
				reconcilerMethods[method] = true
			}
			return true
		})

		*out = append(*out, methodStats{
			StructName:         recvType,
			Method:             fd.Name.Name,
			File:               filepath.ToSlash(relFile),
			Line:               fset.Position(fd.Pos()).Line,
			GuardedWriteCalls:  writeCalls,
			GuardedFields:      sortedKeys(writtenFields),
			ReconcilerCalls:    reconcilerCalls,
			ReconcilerMethods:  sortedKeys(reconcilerMethods),
			InsideMembershipSv: recvType == membershipServiceStruct,
		})
	}
}

func buildReport(fieldsByStruct map[string]structFields, methods []methodStats) auditReport {
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].File == methods[j].File {
			return methods[i].Line < methods[j].Line
		}
		return methods[i].File < methods[j].File
	})

	var report auditReport
	for _, m := range methods {
		if m.GuardedWriteCalls == 0 && m.ReconcilerCalls == 0 {
			continue
		}
		report.Methods = append(report.Methods, m)
		report.GuardedWriteCallsites += m.GuardedWriteCalls
		report.ReconcilerCallsites += m.ReconcilerCalls
		if !m.InsideMembershipSv {
			report.Violations = append(report.Violations, m)
		}
	}

	inventory := map[string]repoField{}
	for structName, sf := range fieldsByStruct {
		for _, rf := range sf.RepoFields {
			if rf.Guarded {
				inventory[structName+"."+rf.Name] = rf
			}
		}
	}
	keys := make([]string, 0, len(inventory))
	for k := range inventory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		report.GuardedFieldInventory = append(report.GuardedFieldInventory, inventory[k])
	}
	return report
}

func recvInfo(field *ast.Field) (string, string) {
	if field == nil || len(field.Names) == 0 {
		return "", ""
	}
	recvName := field.Names[0].Name
	switch t := field.Type.(type) {
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return recvName, id.Name
		}
	case *ast.Ident:
		return recvName, t.Name
	}
	return "", ""
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
