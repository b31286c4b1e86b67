package diagnostics

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
)

const redactedValue = "[redacted]"

// WriteSupportDump writes a zip archive with the report and a redacted copy
// of the settings into dir, and returns the archive path.
func WriteSupportDump(settings *conf.Settings, store datastore.Interface, dir string) (string, error) {
	report := Collect(settings, store)

	name := fmt.Sprintf("foresight-support-%s.zip", report.CollectedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "create_dump").
			Build()
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	reportYAML, err := yaml.Marshal(report)
	if err != nil {
		return "", errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryGeneric).
			Context("operation", "marshal_report").
			Build()
	}
	if err := addZipEntry(zw, "report.yaml", reportYAML); err != nil {
		return "", err
	}

	settingsYAML, err := yaml.Marshal(redactSettings(settings))
	if err != nil {
		return "", errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryGeneric).
			Context("operation", "marshal_settings").
			Build()
	}
	if err := addZipEntry(zw, "settings.yaml", settingsYAML); err != nil {
		return "", err
	}

	if err := zw.Close(); err != nil {
		return "", errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "close_dump").
			Build()
	}
	return path, nil
}

func addZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err == nil {
		_, err = w.Write(data)
	}
	if err != nil {
		return errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("entry", name).
			Build()
	}
	return nil
}

// redactSettings returns a copy of settings safe to attach to an issue:
// passwords, the Sentry DSN, and notification URLs are masked. The original
// settings are left untouched.
func redactSettings(settings *conf.Settings) *conf.Settings {
	s := *settings
	if s.Database.MySQL.Password != "" {
		s.Database.MySQL.Password = redactedValue
	}
	if s.MQTT.Password != "" {
		s.MQTT.Password = redactedValue
	}
	if s.Export.FTP.Password != "" {
		s.Export.FTP.Password = redactedValue
	}
	if s.Export.SFTP.Password != "" {
		s.Export.SFTP.Password = redactedValue
	}
	if s.Sentry.DSN != "" {
		s.Sentry.DSN = redactedValue
	}
	if len(s.Notification.Urls) > 0 {
		urls := make([]string, len(s.Notification.Urls))
		for i := range urls {
			urls[i] = redactedValue
		}
		s.Notification.Urls = urls
	}
	return &s
}
