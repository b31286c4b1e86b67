// Package export copies promoted model artifacts and run summaries to an
// off-box location. Local directories, FTP, and SFTP targets share one
// Target interface; the daemon enqueues exports after each pass so a slow
// target never blocks training.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
)

// Target stores one named payload somewhere durable.
type Target interface {
	Name() string
	Store(ctx context.Context, name string, data []byte) error
}

// Exporter writes registry and audit payloads through the configured target.
// A disabled Exporter is valid and drops everything silently.
type Exporter struct {
	settings *conf.Settings
	target   Target
	log      *slog.Logger
}

// NewExporter builds an Exporter from settings. The export type must be one
// of local, ftp, or sftp.
func NewExporter(settings *conf.Settings) (*Exporter, error) {
	log := logging.ForService("export")
	if log == nil {
		log = slog.Default().With("service", "export")
	}

	e := &Exporter{settings: settings, log: log}
	if !settings.Export.Enabled {
		return e, nil
	}

	var (
		target Target
		err    error
	)
	switch settings.Export.Type {
	case "local", "":
		target, err = newLocalTarget(settings.Export.Path)
	case "ftp":
		target, err = newFTPTarget(&settings.Export)
	case "sftp":
		target, err = newSFTPTarget(&settings.Export)
	default:
		return nil, errors.Newf("unknown export type %q", settings.Export.Type).
			Component("export").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}
	e.target = target

	return e, nil
}

// Enabled reports whether exports will actually be written.
func (e *Exporter) Enabled() bool {
	return e.target != nil
}

// Target returns the active target name, or "" when disabled.
func (e *Exporter) Target() string {
	if e.target == nil {
		return ""
	}
	return e.target.Name()
}

// ExportModel writes one promoted model's artifact. The file name carries
// tag, version, and kind so exports from successive promotions never collide.
func (e *Exporter) ExportModel(ctx context.Context, rec *datastore.ModelRecord) error {
	if e.target == nil {
		return nil
	}

	name := fmt.Sprintf("%s_v%d_%s.json", sanitizeName(rec.Tag), rec.Version, sanitizeName(rec.Kind))
	if err := e.target.Store(ctx, name, rec.Artifact); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("target", e.target.Name()).
			ModelContext(rec.Tag, rec.Kind).
			Build()
	}

	e.log.Info("Model artifact exported",
		"tag", rec.Tag,
		"version", rec.Version,
		"target", e.target.Name(),
		"file", name,
	)
	return nil
}

// ExportRun writes one pass summary as indented JSON.
func (e *Exporter) ExportRun(ctx context.Context, rec *datastore.RunRecord) error {
	if e.target == nil {
		return nil
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", rec.RunID, err)
	}

	name := fmt.Sprintf("run_%s.json", sanitizeName(rec.RunID))
	if err := e.target.Store(ctx, name, data); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("target", e.target.Name()).
			Context("run_id", rec.RunID).
			Build()
	}

	e.log.Info("Run summary exported",
		"run_id", rec.RunID,
		"target", e.target.Name(),
		"file", name,
	)
	return nil
}

// sanitizeName keeps file names flat and shell-safe regardless of what
// characters a tag carries.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
