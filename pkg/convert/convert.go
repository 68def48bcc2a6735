// Package convert runs the PSSG to OBJ conversion pipeline for whole files.
package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/pssgconv/pkg/math"
	"github.com/Faultbox/pssgconv/pkg/mesh"
	"github.com/Faultbox/pssgconv/pkg/obj"
	"github.com/Faultbox/pssgconv/pkg/pssg"
)

// ErrNoObjects is returned when a document yields no render data sources.
var ErrNoObjects = errors.New("document contains no triangle render data sources")

// OutputExt is the suffix of written interchange files.
const OutputExt = ".obj"

// Policy decides what happens when one object fails to assemble.
type Policy int

const (
	// PolicySkip drops the failing object, converts its siblings and
	// reports the combined error.
	PolicySkip Policy = iota
	// PolicyAbort fails the whole file; nothing is written.
	PolicyAbort
)

// ParsePolicy maps a config value to a Policy. Unknown values yield PolicySkip.
func ParsePolicy(s string) Policy {
	if s == "abort" {
		return PolicyAbort
	}
	return PolicySkip
}

// String returns the config name of the policy.
func (p Policy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "skip"
}

// Options configures a conversion.
type Options struct {
	OutputDir string // empty writes next to the input
	Policy    Policy
	Format    obj.Format
	Logger    *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// ObjectError records an object that failed to assemble.
type ObjectError struct {
	Ordinal int // 1-based position among the document's render data sources
	Source  string
	Err     error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object %d (%s): %v", e.Ordinal, e.Source, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// Entity is the result of assembling every object of one document.
type Entity struct {
	Objects     []*mesh.Object
	Ordinals    []int // Ordinals[i] is the 1-based source position of Objects[i]
	SourceCount int   // render data sources retained by the document
	Transform   math.Mat4
	Failed      []*ObjectError
}

// Err returns the combined object errors, or nil.
func (e *Entity) Err() error {
	var err error
	for _, f := range e.Failed {
		err = multierr.Append(err, f)
	}
	return err
}

// Load parses the document at path and assembles its objects. Under
// PolicySkip the returned entity holds the objects that assembled and
// Entity.Failed lists the rest; under PolicyAbort the first failure is
// returned as the error.
func Load(path string, opts Options) (*Entity, error) {
	log := opts.logger().With(zap.String("file", filepath.Base(path)))
	log.Info("parsing file", zap.String("path", path))

	doc, err := pssg.LoadDocument(path, log)
	if err != nil {
		return nil, err
	}
	return Assemble(doc, opts.Policy, log)
}

// Assemble builds every object of doc. The root transform is shared by all
// objects of the document; each object carries its translation.
func Assemble(doc *pssg.Document, policy Policy, log *zap.Logger) (*Entity, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(doc.Sources) == 0 {
		return nil, ErrNoObjects
	}

	transform, err := mesh.Transform(doc.Root)
	if err != nil {
		return nil, err
	}
	translation := transform.Translation()

	entity := &Entity{SourceCount: len(doc.Sources), Transform: transform}
	for i, src := range doc.Sources {
		o, err := mesh.Assemble(doc.DataBlocks, src,
			mesh.WithLogger(log),
			mesh.WithTranslation(translation))
		if err != nil {
			objErr := &ObjectError{Ordinal: i + 1, Source: src.ID, Err: err}
			if policy == PolicyAbort {
				return nil, objErr
			}
			log.Warn("skipping object", zap.Int("object", i+1), zap.String("source", src.ID), zap.Error(err))
			entity.Failed = append(entity.Failed, objErr)
			continue
		}
		entity.Objects = append(entity.Objects, o)
		entity.Ordinals = append(entity.Ordinals, i+1)
	}
	return entity, nil
}

// OutputPath returns the interchange file name for the object at ordinal
// (1-based) out of count objects. A single object keeps the input's base
// name; several objects get a "-n" suffix.
func OutputPath(input, outputDir string, ordinal, count int) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name := base + OutputExt
	if count > 1 {
		name = fmt.Sprintf("%s-%d%s", base, ordinal, OutputExt)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(input)
	}
	return filepath.Join(outputDir, name)
}

// Result describes one converted file.
type Result struct {
	Input   string
	Entity  *Entity
	Outputs []string
}

// File converts the document at path and writes one OBJ file per object.
// Every object is serialized and staged in a temporary file before any
// output is renamed into place, so a failure while writing leaves no new
// outputs behind. Under PolicySkip the successfully assembled objects are
// written and the object errors are returned together with the result.
func File(path string, opts Options) (*Result, error) {
	log := opts.logger()

	entity, err := Load(path, opts)
	if err != nil {
		return nil, err
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	staged := make([]stagedFile, 0, len(entity.Objects))
	for i, o := range entity.Objects {
		out := OutputPath(path, opts.OutputDir, entity.Ordinals[i], entity.SourceCount)
		tmp, err := stageFile(out, obj.Marshal(o, opts.Format))
		if err != nil {
			removeStaged(staged)
			return nil, fmt.Errorf("writing %s: %w", out, err)
		}
		staged = append(staged, stagedFile{tmp: tmp, dest: out})
	}

	if err := commitStaged(staged); err != nil {
		removeStaged(staged)
		return nil, err
	}

	res := &Result{Input: path, Entity: entity}
	for i, f := range staged {
		res.Outputs = append(res.Outputs, f.dest)
		o := entity.Objects[i]
		log.Info("wrote object",
			zap.String("path", f.dest),
			zap.Int("vertices", len(o.Vertices)),
			zap.Int("uvs", len(o.UVs)),
			zap.Int("faces", len(o.Faces)))
	}

	return res, entity.Err()
}

type stagedFile struct {
	tmp  string
	dest string
}

// stageFile writes data to a temporary file next to dest and returns its name.
func stageFile(dest string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}

// commitStaged renames staged files over their destinations. Destinations
// are checked first so that a non-file in the way fails before any rename.
func commitStaged(staged []stagedFile) error {
	for _, f := range staged {
		fi, err := os.Lstat(f.dest)
		if err == nil && !fi.Mode().IsRegular() {
			return fmt.Errorf("writing %s: destination is not a regular file", f.dest)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("writing %s: %w", f.dest, err)
		}
	}
	for _, f := range staged {
		if err := os.Rename(f.tmp, f.dest); err != nil {
			return fmt.Errorf("writing %s: %w", f.dest, err)
		}
	}
	return nil
}

// removeStaged deletes temporary files that were not renamed.
func removeStaged(staged []stagedFile) {
	for _, f := range staged {
		os.Remove(f.tmp)
	}
}
