// Package pipeline implements C3, the Per-File Parse Pipeline: the
// straight-line, sum-type-returning function that turns one file's bytes
// into a parsed artifact bundle or one of the reasons it couldn't produce
// one (§4.3).
package pipeline

import (
	"context"
	"sort"

	"github.com/standardbeagle/flowparse/internal/debug"
	"github.com/standardbeagle/flowparse/internal/docblock"
	"github.com/standardbeagle/flowparse/internal/filesig"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/remoteexec"
	"github.com/standardbeagle/flowparse/internal/sourceparse"
	"github.com/standardbeagle/flowparse/internal/typesig"
)

// OutcomeKind tags the closed set of ParseOutcome variants (§3.1, §9: "use
// the target language's closed-variant construct... never open-class
// polymorphism").
type OutcomeKind uint8

const (
	OutcomeOk OutcomeKind = iota
	OutcomeRecovered
	OutcomeExn
	OutcomeSkip
)

// SkipReason tags the closed set of Skip sub-variants.
type SkipReason uint8

const (
	SkipResource SkipReason = iota
	SkipNonFlow
	SkipPackage
)

// PackageInfo is the semantic extraction of a package.json, parameterized
// by node_main_fields (§4.3 step 1).
type PackageInfo struct {
	Name         string
	MainEntries  map[string]string // main-field name -> resolved path
	Dependencies []string
}

// PackageError reports a malformed package.json.
type PackageError struct {
	Message string
}

func (e *PackageError) Error() string { return e.Message }

// TolerableError is any error the pipeline can absorb and still produce a
// usable bundle: file-signature extraction errors and strict-mode
// signature-verification errors both surface this way (§4.3 steps 5, 9).
type TolerableError struct {
	Line    int
	Column  int
	Message string
}

// Imports is the derived import surface of a file: requires, ES import
// specifiers, and the names the module binds at its top level as collected
// by extractGlobals (§4.3 steps 8 and 10).
type Imports struct {
	Requires      []string
	ImportSources []string
	Globals       []string
}

// Bundle is the Ok artifact (§3.1's ParseOutcome::Ok payload).
type Bundle struct {
	AST             *sourceparse.AST
	Requires        []string
	FileSig         filesig.FileSig
	Locs            []typesig.Loc
	TypeSig         typesig.TypeSig
	TolerableErrors []TolerableError
	Exports         []string
	Imports         Imports
	CASDigest       *remoteexec.Digest
}

// RecoveredBundle is the Recovered payload: everything Ok would have
// produced through file-signature extraction, but syntax errors meant
// steps 8–11 never ran (§4.3 step 7).
type RecoveredBundle struct {
	AST             *sourceparse.AST
	Requires        []string
	FileSig         filesig.FileSig
	TolerableErrors []TolerableError
	ParseErrors     []sourceparse.ParseError
}

// Outcome is the ParseOutcome sum type. At most one of the pointer fields
// is non-nil, selected by Kind (and, for Skip, by SkipKind: only a
// SkipPackage outcome carries a pointer).
type Outcome struct {
	Kind OutcomeKind

	Ok        *Bundle
	Recovered *RecoveredBundle
	Exn       *ExnInfo
	SkipKind  SkipReason
	Package   *PackageOutcome // valid when Kind==Skip && SkipKind==SkipPackage
}

// ExnInfo captures an uncaught panic from inside steps 4–11, converted to
// data rather than propagated (§4.3 "Exception safety").
type ExnInfo struct {
	Message string
}

// PackageOutcome is Skip(Package(Ok pkg | Err err)).
type PackageOutcome struct {
	Info *PackageInfo
	Err  *PackageError
}

// Inputs bundles everything the pipeline needs beyond (file_key, content):
// the resolved per-file options, the parsed docblock (already run through
// the noflow override by the caller per §9), and the optional uploader for
// step 11.
type Inputs struct {
	Options  popts.ParsingOptions
	Docblock docblock.Docblock
	Uploader remoteexec.Uploader
}

// Run executes the twelve-step pipeline of §4.3. It never panics outward:
// any panic inside steps 4–11 is recovered and converted to
// Outcome{Kind: OutcomeExn}, per the exception-safety contract.
func Run(ctx context.Context, key fkey.FileKey, content []byte, in Inputs) (outcome Outcome) {
	// Step 1: dispatch by FileKey variant.
	switch key.Kind() {
	case fkey.Resource:
		return Outcome{Kind: OutcomeSkip, SkipKind: SkipResource}
	case fkey.Json:
		if key.IsPackageJSON() {
			info, perr := parsePackageJSON(content, in.Options.NodeMainFields)
			return Outcome{
				Kind:     OutcomeSkip,
				SkipKind: SkipPackage,
				Package:  &PackageOutcome{Info: info, Err: perr},
			}
		}
		return Outcome{Kind: OutcomeSkip, SkipKind: SkipResource}
	}

	// Step 3: types-checked gate (step 2, docblock parsing + noflow
	// override, is the caller's responsibility per Inputs.Docblock).
	if !popts.TypesChecked(in.Options.TypesMode, in.Docblock) {
		return Outcome{Kind: OutcomeSkip, SkipKind: SkipNonFlow}
	}

	return runGuarded(ctx, key, content, in)
}

// runGuarded wraps steps 4–11 in a recover() so an uncaught panic inside
// any collaborator call becomes an Exn outcome instead of crashing the
// worker that invoked Run.
func runGuarded(ctx context.Context, key fkey.FileKey, content []byte, in Inputs) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			debug.Exception(key.String(), r)
			outcome = Outcome{Kind: OutcomeExn, Exn: &ExnInfo{Message: panicMessage(r)}}
		}
	}()

	// Step 4: source parse. ES proposal syntax and enums are always
	// parsed; types are always requested here (gating already happened
	// at step 3).
	ast, parseErrors := sourceparse.ParseSource(content, key, sourceparse.Options{
		Components:                   in.Options.ComponentSyntax,
		Enums:                        true,
		EsproposalDecorators:         true,
		Types:                        true,
		UseStrict:                    in.Options.UseStrict,
		ModuleRefPrefix:              in.Options.ModuleRefPrefix,
		ModuleRefPrefixLegacyInterop: in.Options.ModuleRefPrefixLegacyInterop,
	})

	// Step 5: file signature.
	relayPrefix := in.Options.RelayModulePrefixFor(key.Path())
	relayEnabled := in.Options.EnableRelayIntegration && !in.Options.RelayDisabledFor(key.Path())
	fileSig, sigErrs := filesig.Extract(ast, filesig.Options{
		EnableEnums:            in.Options.EnableEnums,
		EnableRelayIntegration: relayEnabled,
		RelayModulePrefix:      relayPrefix,
	})
	tolerable := toTolerable(sigErrs)

	// Step 6: requires.
	requires := filesig.SortUniqueRequires(fileSig)

	// Step 7: recovery branch.
	if len(parseErrors) > 0 {
		return Outcome{
			Kind: OutcomeRecovered,
			Recovered: &RecoveredBundle{
				AST:             ast,
				Requires:        requires,
				FileSig:         fileSig,
				TolerableErrors: tolerable,
				ParseErrors:     parseErrors,
			},
		}
	}

	// Step 8: scope/SSA pass.
	globals := extractGlobals(ast, in.Options.EnableEnums)

	// Step 9: type signature.
	sigErrors, locs, typeSig := typesig.Pack(ast, in.Docblock.IsStrict, in.Options)
	for _, se := range sigErrors {
		if se.Kind != typesig.SigError {
			continue
		}
		var loc typesig.Loc
		if se.LocIdx >= 0 && se.LocIdx < len(locs) {
			loc = locs[se.LocIdx]
		}
		tolerable = append(tolerable, TolerableError{
			Line:    loc.Line,
			Column:  loc.Column,
			Message: "SignatureVerificationError: " + se.Message,
		})
	}

	// Step 10: module exports/imports.
	exports := exportsOfModule(typeSig, fileSig)
	imports := Imports{
		Requires:      requires,
		ImportSources: fileSig.ImportSources,
		Globals:       globals,
	}

	// Step 11: CAS digest.
	var digest *remoteexec.Digest
	if in.Options.Distributed && in.Uploader != nil {
		d, err := in.Uploader.UploadBlob(ctx, encodeTypeSig(typeSig))
		if err == nil {
			digest = &d
		}
	}

	// Step 12: Ok.
	return Outcome{
		Kind: OutcomeOk,
		Ok: &Bundle{
			AST:             ast,
			Requires:        requires,
			FileSig:         fileSig,
			Locs:            locs,
			TypeSig:         typeSig,
			TolerableErrors: tolerable,
			Exports:         exports,
			Imports:         imports,
			CASDigest:       digest,
		},
	}
}

func toTolerable(errs []filesig.TolerableError) []TolerableError {
	out := make([]TolerableError, len(errs))
	for i, e := range errs {
		out[i] = TolerableError{Line: e.Line, Column: e.Column, Message: e.Message}
	}
	return out
}

// exportsOfModule derives the exported name set from the packed type
// signature, restricted to names the AST actually marked as exported
// (fileSig.ExportNames): a declaration can be present in TypeSig without
// being exported, e.g. a private helper function.
func exportsOfModule(sig typesig.TypeSig, fileSig filesig.FileSig) []string {
	exported := make(map[string]bool, len(fileSig.ExportNames))
	for _, n := range fileSig.ExportNames {
		exported[n] = true
	}
	var out []string
	for _, b := range sig.Bindings {
		if exported[b.Name] {
			out = append(out, b.Name)
		}
	}
	sort.Strings(out)
	return out
}

func encodeTypeSig(sig typesig.TypeSig) []byte {
	var buf []byte
	for _, b := range sig.Bindings {
		buf = append(buf, b.Name...)
		buf = append(buf, ':')
		buf = append(buf, b.Signature...)
		buf = append(buf, '\n')
	}
	return buf
}

func panicMessage(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}
