// Package fetcher syncs supplier drop-boxes over FTP. Suppliers push
// catalogs, price lists, and product images to a shared FTP directory;
// Sync pulls down whatever is new.
package fetcher

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config holds the connection parameters for one supplier drop-box.
type Config struct {
	Host      string        `yaml:"host" mapstructure:"host"`
	Username  string        `yaml:"username" mapstructure:"username"`
	Password  string        `yaml:"password" mapstructure:"password"`
	RemoteDir string        `yaml:"remote_dir" mapstructure:"remote_dir"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// FileKind classifies a remote file by what the pipeline does with it.
type FileKind int

// Remote file kinds.
const (
	KindUnknown FileKind = iota
	KindDocument
	KindImage
)

// Classify maps a filename to its pipeline role by extension.
func Classify(name string) FileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".xlsx", ".csv":
		return KindDocument
	case ".jpg", ".jpeg", ".png", ".webp":
		return KindImage
	}
	return KindUnknown
}

// RemoteFile describes one entry in the drop-box.
type RemoteFile struct {
	Name string
	Size uint64
	Time time.Time
}

// SyncResult reports one drop-box sync pass.
type SyncResult struct {
	Documents []string // local paths of downloaded documents
	Images    []string // local paths of downloaded images
	Skipped   []string // remote names already present or unrecognized
}

// DropBox downloads new supplier files over FTP.
type DropBox struct {
	cfg Config
}

// New creates a DropBox fetcher.
func New(cfg Config) *DropBox {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DropBox{cfg: cfg}
}

func (d *DropBox) connect(ctx context.Context) (*ftp.ServerConn, error) {
	host := d.cfg.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(d.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: dial %s", host)
	}

	user, pass := d.cfg.Username, d.cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "fetcher: login")
	}
	return conn, nil
}

// List returns the drop-box contents without downloading anything.
func (d *DropBox) List(ctx context.Context) ([]RemoteFile, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(d.cfg.RemoteDir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: list %s", d.cfg.RemoteDir)
	}

	var files []RemoteFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		files = append(files, RemoteFile{Name: e.Name, Size: e.Size, Time: e.Time})
	}
	return files, nil
}

// Sync downloads every remote file not already present locally, sorting
// documents and images into their own subdirectories. A local file with
// the same name and size counts as already synced.
func (d *DropBox) Sync(ctx context.Context, localDir string) (*SyncResult, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(d.cfg.RemoteDir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: list %s", d.cfg.RemoteDir)
	}

	docDir := filepath.Join(localDir, "documents")
	imgDir := filepath.Join(localDir, "images")
	for _, dir := range []string{docDir, imgDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "fetcher: mkdir %s", dir)
		}
	}

	result := &SyncResult{}
	for _, e := range entries {
		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "fetcher: sync cancelled")
		}
		if e.Type != ftp.EntryTypeFile {
			continue
		}

		var targetDir string
		switch Classify(e.Name) {
		case KindDocument:
			targetDir = docDir
		case KindImage:
			targetDir = imgDir
		default:
			result.Skipped = append(result.Skipped, e.Name)
			continue
		}

		local := filepath.Join(targetDir, e.Name)
		if alreadySynced(local, e.Size) {
			result.Skipped = append(result.Skipped, e.Name)
			continue
		}

		if err := d.download(conn, path.Join(d.cfg.RemoteDir, e.Name), local); err != nil {
			return result, err
		}
		if targetDir == docDir {
			result.Documents = append(result.Documents, local)
		} else {
			result.Images = append(result.Images, local)
		}
	}

	zap.L().Info("fetcher: drop-box synced",
		zap.String("host", d.cfg.Host),
		zap.Int("documents", len(result.Documents)),
		zap.Int("images", len(result.Images)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (d *DropBox) download(conn *ftp.ServerConn, remotePath, localPath string) error {
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return eris.Wrapf(err, "fetcher: retrieve %s", remotePath)
	}
	defer resp.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return eris.Wrapf(err, "fetcher: create %s", localPath)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp); err != nil {
		return eris.Wrapf(err, "fetcher: write %s", localPath)
	}
	return nil
}

// alreadySynced reports whether a local copy with the expected size exists.
func alreadySynced(path string, size uint64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return uint64(info.Size()) == size
}
