package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chronicle/internal/compiler"
)

// LoadMode controls how errors are handled during config loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the coordinates and taxonomies loaded from a
// directory.
type LoadResult struct {
	Config    *compiler.Config
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during config loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadConfig loads the CUE files in dir and compiles their coordinate and
// taxonomy blocks against env.
func LoadConfig(dir string, env compiler.Env, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	cfg, compileErrs := compiler.Compile(value, env, mode == LoadModeFailFast)
	result := &LoadResult{Config: cfg, FileCount: len(cueFiles)}

	errs := make([]error, 0, len(compileErrs))
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err))
	}
	if len(errs) == 0 && len(cfg.Coordinates) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no coordinates found in config"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Coordinate definition errors
	ErrCodeCoordinatePaths    = "E101" // Missing or unknown paths
	ErrCodeCoordinateTime     = "E102" // Invalid time
	ErrCodeCoordinateStrategy = "E103" // Unknown contradiction strategy
	ErrCodeCoordinateModules  = "E104" // Module parent configuration
	ErrCodeTaxonomy           = "E110" // Invalid taxonomy definition

	// Store and stream errors
	ErrCodeCorrupt      = "E201" // Corrupt IBDF record
	ErrCodeUnknownRef   = "E202" // UUID, name or nid not in the store
	ErrCodeDatabase     = "E203" // Snapshot database error
	ErrCodeDiffConfig   = "E210" // Invalid diff options
	ErrCodeDiffFound    = "E211" // Differences found with --fail-on-diff
	ErrCodeAmbiguous    = "E220" // Contradicted latest version with --strict
	ErrCodeUnknownName  = "E221" // Unknown coordinate or taxonomy name
	ErrCodeImportFailed = "E230" // Import failed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "paths", "paths.path", "paths.modules":
		return ErrCodeCoordinatePaths
	case "time":
		return ErrCodeCoordinateTime
	case "strategy", "strategy.kind", "strategy.paths":
		return ErrCodeCoordinateStrategy
	case "module_parent_assemblage", "relax_modules":
		return ErrCodeCoordinateModules
	case "stamp", "premise", "is_a", "roots":
		return ErrCodeTaxonomy
	default:
		return ErrCodeGeneric
	}
}
