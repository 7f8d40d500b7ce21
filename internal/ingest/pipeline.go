// Package ingest moves documents from raw/pending into the managed/
// tree: parse, validate identity, write, archive or quarantine, then
// commit the batch as a whole.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/internal/layout"
	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/resources"
)

// DefaultPatterns matches the structured-document extensions the
// pipeline understands. JSON parses as YAML, one document per file.
var DefaultPatterns = []string{"*.yaml", "*.yml", "*.json"}

// Recorder is notified of every document that lands under managed/.
// The registry implements it; tests use a stub.
type Recorder interface {
	RecordIngested(ctx context.Context, fabricID string, doc *resources.Document, repoHash string) error
}

// FileStatus classifies what happened to one pending file.
type FileStatus string

const (
	FileProcessed   FileStatus = "processed"
	FileQuarantined FileStatus = "quarantined"
	FileSkipped     FileStatus = "skipped"
)

// DocAction classifies what happened to one document within a file.
type DocAction string

const (
	DocCreated DocAction = "created"
	DocUpdated DocAction = "updated"
	DocSkipped DocAction = "skipped"
)

// DocOutcome is the result for one parsed document.
type DocOutcome struct {
	Resource resources.Ref `json:"resource"`
	Action   DocAction     `json:"action"`
	Path     string        `json:"path"`
}

// FileOutcome is the result for one pending file.
type FileOutcome struct {
	File      string       `json:"file"`
	Status    FileStatus   `json:"status"`
	Documents []DocOutcome `json:"documents,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Result aggregates one ingestion batch.
type Result struct {
	Files      []FileOutcome `json:"files"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	CommitHash string        `json:"commit_hash,omitempty"`
}

// Options controls one ingestion run.
type Options struct {
	// Patterns filters raw/pending by glob; empty means DefaultPatterns.
	Patterns []string
	// Strict aborts the whole batch on the first invalid document,
	// before anything is written.
	Strict bool
	// NoArchive leaves processed source files in place instead of
	// moving them to raw/processed.
	NoArchive bool
}

// Pipeline ingests one fabric's pending files.
type Pipeline struct {
	fabric   *fabrics.Fabric
	repo     gitrepo.Client
	recorder Recorder
	logger   *zerolog.Logger
}

// NewPipeline wires an ingestion pipeline. recorder may be nil.
func NewPipeline(fabric *fabrics.Fabric, repo gitrepo.Client, recorder Recorder, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{fabric: fabric, repo: repo, recorder: recorder, logger: logger}
}

// Ingest processes every matching file under raw/pending. Safe to
// re-run: a document whose managed/ target already has identical
// content is skipped, not recorded as an update. One commit covers the
// whole batch.
func (p *Pipeline) Ingest(ctx context.Context, opts Options) (*Result, error) {
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	files, err := p.pendingFiles(patterns)
	if err != nil {
		return nil, err
	}

	if opts.Strict {
		// Validate the entire batch before touching anything.
		for _, file := range files {
			if _, err := p.parseFile(file); err != nil {
				return nil, fmt.Errorf("strict ingestion aborted at %s: %w", filepath.Base(file), err)
			}
		}
	}

	result := &Result{}
	var staged []string

	for _, file := range files {
		outcome := p.ingestFile(ctx, file, opts, result, &staged)
		result.Files = append(result.Files, outcome)
		if outcome.Status == FileQuarantined {
			result.Failed++
		}
	}

	if len(staged) > 0 {
		sort.Strings(staged)
		if err := p.repo.Stage(ctx, staged...); err != nil {
			return result, err
		}
		hash, err := p.repo.Commit(ctx, commitMessage(result))
		if err != nil {
			return result, err
		}
		result.CommitHash = hash
	}

	p.logger.Info().
		Str("fabric", p.fabric.ID).
		Int("files", len(files)).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("ingestion batch finished")
	return result, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, file string, opts Options, result *Result, staged *[]string) FileOutcome {
	outcome := FileOutcome{File: filepath.Base(file)}

	docs, err := p.parseFile(file)
	if err != nil {
		outcome.Status = FileQuarantined
		outcome.Error = err.Error()
		if paths, qErr := p.quarantine(file, err); qErr != nil {
			outcome.Error += "; quarantine failed: " + qErr.Error()
		} else {
			*staged = append(*staged, paths...)
		}
		return outcome
	}

	changed := false
	for _, doc := range docs {
		action, err := p.writeDocument(ctx, doc)
		if err != nil {
			outcome.Status = FileQuarantined
			outcome.Error = err.Error()
			if paths, qErr := p.quarantine(file, err); qErr != nil {
				outcome.Error += "; quarantine failed: " + qErr.Error()
			} else {
				*staged = append(*staged, paths...)
			}
			return outcome
		}
		outcome.Documents = append(outcome.Documents, DocOutcome{
			Resource: doc.Ref(),
			Action:   action,
			Path:     doc.Path(),
		})
		switch action {
		case DocCreated:
			result.Created++
			changed = true
		case DocUpdated:
			result.Updated++
			changed = true
		case DocSkipped:
			result.Skipped++
		}
		if action != DocSkipped {
			*staged = append(*staged, doc.Path())
		}
	}

	if !changed && len(docs) > 0 {
		// Content-identical re-run: leave no new archive entry behind.
		outcome.Status = FileSkipped
		return outcome
	}

	outcome.Status = FileProcessed
	if !opts.NoArchive {
		archived, err := p.archive(file)
		if err != nil {
			outcome.Error = "archive failed: " + err.Error()
			return outcome
		}
		*staged = append(*staged, archived, p.rel(file))
	}
	return outcome
}

// writeDocument lands one document under managed/, skipping when the
// target already holds identical content.
func (p *Pipeline) writeDocument(ctx context.Context, doc *resources.Document) (DocAction, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}

	target := p.fabric.TreePath(doc.Path())
	data, err := doc.Marshal()
	if err != nil {
		return "", err
	}

	action := DocCreated
	if existing, err := os.ReadFile(target); err == nil {
		current, parseErr := resources.Unmarshal(existing)
		if parseErr == nil && resources.Equal(current, doc) {
			return DocSkipped, nil
		}
		action = DocUpdated
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.WrapIO("create", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", errors.WrapIO("write", doc.Path(), err)
	}

	if p.recorder != nil {
		if err := p.recorder.RecordIngested(ctx, p.fabric.ID, doc, resources.Hash(doc)); err != nil {
			return "", err
		}
	}
	return action, nil
}

func (p *Pipeline) parseFile(file string) ([]*resources.Document, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WrapIO("read", p.rel(file), err)
	}
	docs, err := resources.UnmarshalAll(data)
	if err != nil {
		return nil, errors.WrapParse("yaml", filepath.Base(file), err)
	}
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// quarantine moves a rejected file into raw/errors and writes a sibling
// error report so raw/pending stays clean. It returns the repository
// paths the move touched (the removed pending file, the quarantined
// copy, the report); the batch commit must include them, or the next
// sync's working-tree refresh wipes the quarantine and resurrects the
// bad file in raw/pending.
func (p *Pipeline) quarantine(file string, cause error) ([]string, error) {
	base := filepath.Base(file)
	dest := p.fabric.TreePath(layout.RawErrors)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, errors.WrapIO("create", layout.RawErrors, err)
	}
	if err := os.Rename(file, filepath.Join(dest, base)); err != nil {
		return nil, errors.WrapIO("move", base, err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	report := fmt.Sprintf("file: %s\nquarantined_at: %q\nerror: %q\n", base, stamp, cause.Error())
	reportName := strings.TrimSuffix(base, filepath.Ext(base)) + "_error_" + stamp + ".yaml"
	if err := os.WriteFile(filepath.Join(dest, reportName), []byte(report), 0o644); err != nil {
		return nil, errors.WrapIO("write", reportName, err)
	}

	p.logger.Warn().Str("fabric", p.fabric.ID).Str("file", base).Err(cause).Msg("file quarantined")
	return []string{
		p.rel(file),
		layout.RawErrors + "/" + base,
		layout.RawErrors + "/" + reportName,
	}, nil
}

// archive moves a processed source into raw/processed with a timestamp
// suffix; sources are never deleted outright. Returns the archived
// path, repository relative.
func (p *Pipeline) archive(file string) (string, error) {
	base := filepath.Base(file)
	ext := filepath.Ext(base)
	stamp := time.Now().UTC().Format("20060102T150405Z")
	name := strings.TrimSuffix(base, ext) + "_" + stamp + ext

	dest := p.fabric.TreePath(layout.RawProcessed)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", errors.WrapIO("create", layout.RawProcessed, err)
	}
	if err := os.Rename(file, filepath.Join(dest, name)); err != nil {
		return "", errors.WrapIO("move", base, err)
	}
	return layout.RawProcessed + "/" + name, nil
}

// pendingFiles lists raw/pending entries matching the glob patterns,
// sorted for deterministic batch order.
func (p *Pipeline) pendingFiles(patterns []string) ([]string, error) {
	pending := p.fabric.TreePath(layout.RawPending)
	entries, err := os.ReadDir(pending)
	if err != nil {
		return nil, errors.WrapIO("read", layout.RawPending, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, pat := range patterns {
			if ok, _ := filepath.Match(pat, e.Name()); ok {
				files = append(files, filepath.Join(pending, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Pipeline) rel(file string) string {
	rel, err := filepath.Rel(p.fabric.WorkDir, file)
	if err != nil {
		return file
	}
	return filepath.ToSlash(rel)
}

func commitMessage(r *Result) string {
	msg := fmt.Sprintf("ingest: %d created, %d updated, %d skipped", r.Created, r.Updated, r.Skipped)
	if r.Failed > 0 {
		msg += fmt.Sprintf(", %d quarantined", r.Failed)
	}
	return msg
}
