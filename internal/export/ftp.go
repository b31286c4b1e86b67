package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tphakala/foresight-go/internal/conf"
)

const ftpTimeout = 30 * time.Second

// ftpTarget uploads exports over plain FTP. Each Store opens a fresh
// connection; export volume is a handful of files per day.
type ftpTarget struct {
	host     string
	port     int
	username string
	password string
	basePath string
}

func newFTPTarget(cfg *conf.ExportSettings) (*ftpTarget, error) {
	if cfg.FTP.Host == "" {
		return nil, fmt.Errorf("ftp export: host is required")
	}
	port := cfg.FTP.Port
	if port == 0 {
		port = 21
	}
	return &ftpTarget{
		host:     cfg.FTP.Host,
		port:     port,
		username: cfg.FTP.Username,
		password: cfg.FTP.Password,
		basePath: strings.TrimRight(cfg.Path, "/"),
	}, nil
}

func (t *ftpTarget) Name() string {
	return "ftp"
}

// Store uploads under a temporary name and renames once complete, so a
// dropped connection cannot leave a partial file under the final name.
func (t *ftpTarget) Store(ctx context.Context, name string, data []byte) error {
	conn, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Quit() }()

	if t.basePath != "" {
		// MakeDir fails when the directory exists, which is fine
		_ = conn.MakeDir(t.basePath)
	}

	tempPath := path.Join(t.basePath, "tmp-"+name)
	finalPath := path.Join(t.basePath, name)

	if err := conn.Stor(tempPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("ftp export: uploading %s: %w", name, err)
	}
	if err := conn.Rename(tempPath, finalPath); err != nil {
		_ = conn.Delete(tempPath)
		return fmt.Errorf("ftp export: renaming %s into place: %w", name, err)
	}
	return nil
}

// connect dials in a goroutine so a hanging server cannot outlive ctx.
func (t *ftpTarget) connect(ctx context.Context) (*ftp.ServerConn, error) {
	type connResult struct {
		conn *ftp.ServerConn
		err  error
	}
	resultChan := make(chan connResult, 1)

	go func() {
		addr := fmt.Sprintf("%s:%d", t.host, t.port)
		conn, err := ftp.Dial(addr, ftp.DialWithTimeout(ftpTimeout))
		if err != nil {
			resultChan <- connResult{nil, fmt.Errorf("ftp export: connecting to %s: %w", addr, err)}
			return
		}
		if t.username != "" {
			if err := conn.Login(t.username, t.password); err != nil {
				_ = conn.Quit()
				resultChan <- connResult{nil, fmt.Errorf("ftp export: login failed: %w", err)}
				return
			}
		}
		resultChan <- connResult{conn, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		return result.conn, result.err
	}
}
