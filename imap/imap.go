// Package imap appends extracted .eml artifacts to a mailbox on an
// IMAP server.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	DryRun             bool
}

// Summary counts the outcome of one upload run.
type Summary struct {
	Uploaded int
	Skipped  int
}

type Uploader struct {
	opts   Options
	logger *slog.Logger
}

func NewUploader(opts Options, logger *slog.Logger) (*Uploader, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{opts: opts, logger: logger}, nil
}

// UploadDir appends every .eml file under dir, in lexicographic order,
// to the target folder. In dry-run mode no connection is made.
func (u *Uploader) UploadDir(ctx context.Context, dir string) (Summary, error) {
	files, err := listEmlFiles(dir)
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		return Summary{}, fmt.Errorf("no .eml files found in %s", dir)
	}

	summary := Summary{}

	if u.opts.DryRun {
		for _, path := range files {
			u.logger.Info("dry-run upload", "file", filepath.Base(path), "target", u.targetFolder())
			summary.Uploaded++
		}
		return summary, nil
	}

	client, cleanup, err := u.dial(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer cleanup()

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			u.logger.Warn("skipping unreadable file", "file", filepath.Base(path), "err", err)
			summary.Skipped++
			continue
		}

		if err := u.appendMessage(client, raw); err != nil {
			return summary, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
		}

		summary.Uploaded++
		u.logger.Debug("uploaded message", "file", filepath.Base(path), "target", u.targetFolder())
	}

	u.logger.Info("upload complete", "uploaded", summary.Uploaded, "skipped", summary.Skipped, "target", u.targetFolder())
	return summary, nil
}

func listEmlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (u *Uploader) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	options := &imapclient.Options{}

	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if u.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := u.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "target", u.targetFolder(), "tls", u.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				u.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			u.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (u *Uploader) appendMessage(client *imapclient.Client, raw []byte) error {
	target := u.targetFolder()
	size := int64(len(raw))

	var opts *imapv2.AppendOptions
	if when, err := messageDate(raw); err == nil {
		opts = &imapv2.AppendOptions{Time: when}
	}

	cmd := client.Append(target, size, opts)

	remaining := raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}

// messageDate parses the Date header for the APPEND timestamp.
func messageDate(raw []byte) (time.Time, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return time.Time{}, err
	}
	return msg.Header.Date()
}

func (u *Uploader) targetFolder() string {
	if u.opts.TargetFolder == "" {
		return "INBOX"
	}
	return u.opts.TargetFolder
}

func (u *Uploader) ensureMailbox(client *imapclient.Client) error {
	target := u.targetFolder()
	cmd := client.Create(target, nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) {
			if respErr.Code == imapv2.ResponseCodeAlreadyExists {
				u.logger.Debug("imap mailbox already exists", "mailbox", target)
				return nil
			}
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	u.logger.Info("imap mailbox created", "mailbox", target)
	return nil
}
