package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/mobilitydash/internal/httputil"
	"github.com/lox/mobilitydash/internal/metrics"
	"github.com/lox/mobilitydash/internal/store"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxElapsed = 2 * time.Minute
)

// Loader turns a source into an immutable table. It holds no state between
// calls; memoising is store.Cache's job.
type Loader struct {
	logger      *slog.Logger
	client      *http.Client
	timeout     time.Duration
	maxElapsed  time.Duration
	ftpUser     string
	ftpPassword string
	newBackOff  func() backoff.BackOff
}

type Option func(*Loader)

// WithTimeout bounds a remote load, including retries.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxElapsed caps the total time spent retrying HTTP fetches.
func WithMaxElapsed(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.maxElapsed = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

func WithFTPCredentials(user, password string) Option {
	return func(l *Loader) {
		l.ftpUser = user
		l.ftpPassword = password
	}
}

// WithBackOff replaces the retry policy for HTTP fetches.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(l *Loader) { l.newBackOff = f }
}

func NewLoader(logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		logger:      logger,
		timeout:     DefaultTimeout,
		maxElapsed:  DefaultMaxElapsed,
		ftpUser:     "anonymous",
		ftpPassword: "anonymous",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = httputil.NewClient(l.timeout)
	}
	if l.newBackOff == nil {
		l.newBackOff = func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = l.maxElapsed
			return bo
		}
	}
	return l
}

// Load reads source, parses and normalises every row, and returns the
// sorted table. Any failure is a *LoadError and no table is returned.
func (l *Loader) Load(ctx context.Context, source string) (*store.Table, error) {
	start := time.Now()

	ref, err := ParseSource(source)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("unknown", "error").Inc()
		return nil, loadErr(KindSource, source, err)
	}
	kind := ref.Kind()

	table, err := l.load(ctx, ref)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues(kind, "error").Inc()
		l.logger.Error("dataset load failed", "source", source, "kind", kind, "error", err)
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.LoadsTotal.WithLabelValues(kind, "ok").Inc()
	metrics.LoadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	metrics.RowsLoaded.Set(float64(table.Len()))
	metrics.LocalitiesLoaded.Set(float64(len(table.Localities())))

	l.logger.Info("dataset loaded",
		"source", source,
		"kind", kind,
		"rows", table.Len(),
		"localities", len(table.Localities()),
		"min_date", table.MinDate().Format("2006-01-02"),
		"max_date", table.MaxDate().Format("2006-01-02"),
		"duration", elapsed,
	)
	return table, nil
}

func (l *Loader) load(ctx context.Context, ref SourceRef) (*store.Table, error) {
	if ref.Remote() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	header, rows, err := l.readRaw(ctx, ref)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
			errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, loadErr(KindTimeout, ref.Raw, fmt.Errorf("after %s: %w", l.timeout, err))
		}
		var le *LoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, loadErr(KindSource, ref.Raw, err)
	}
	if len(header) == 0 {
		return nil, loadErr(KindEmpty, ref.Raw, errors.New("source has no header"))
	}

	records, stats, err := parseRecords(ref.Raw, header, rows)
	if err != nil {
		return nil, err
	}
	for flag, n := range stats.flags {
		l.logger.Warn("rows with suspect values", "source", ref.Raw, "flag", flag, "rows", n)
	}

	table, err := store.NewTable(records)
	if err != nil {
		return nil, loadErr(KindEmpty, ref.Raw, err)
	}
	return table, nil
}

// readRaw returns the header and rows of the source container.
func (l *Loader) readRaw(ctx context.Context, ref SourceRef) ([]string, [][]string, error) {
	if ref.Format == FormatSQLite {
		return l.readSQLite(ctx, ref)
	}

	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	var header []string
	var rows [][]string
	switch ref.Format {
	case FormatCSV:
		header, rows, err = readCSV(bytes.NewReader(data))
	case FormatXLSX:
		header, rows, err = readXLSX(data)
	default:
		err = fmt.Errorf("unsupported format %q", ref.Format)
	}
	if err != nil {
		return nil, nil, loadErr(KindFormat, ref.Raw, err)
	}
	return header, rows, nil
}

func (l *Loader) fetch(ctx context.Context, ref SourceRef) ([]byte, error) {
	switch ref.Scheme {
	case SchemeHTTP:
		return l.fetchHTTP(ctx, ref.URL.String())
	case SchemeFTP:
		return l.fetchFTP(ctx, ref)
	default:
		return os.ReadFile(ref.Path)
	}
}

func (l *Loader) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := l.client.Do(req)
		if err != nil {
			metrics.FetchAttempts.WithLabelValues("http", "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch: %w", err)
		}
		defer resp.Body.Close()
		metrics.FetchAttempts.WithLabelValues("http", strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			l.logger.Warn("remote source unavailable, retrying", "url", url, "status", resp.StatusCode)
			return fmt.Errorf("fetch: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(l.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (l *Loader) fetchFTP(ctx context.Context, ref SourceRef) ([]byte, error) {
	addr := ref.URL.Host
	if ref.URL.Port() == "" {
		addr = net.JoinHostPort(ref.URL.Hostname(), "21")
	}

	conn, err := ftp.Dial(addr, ftp.DialWithDialFunc(l.ftpDialer(ctx)))
	if err != nil {
		metrics.FetchAttempts.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, password := l.ftpUser, l.ftpPassword
	if ref.URL.User != nil {
		user = ref.URL.User.Username()
		if p, ok := ref.URL.User.Password(); ok {
			password = p
		}
	}
	if err := conn.Login(user, password); err != nil {
		metrics.FetchAttempts.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(ref.Path)
	if err != nil {
		metrics.FetchAttempts.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp retrieve %s: %w", ref.Path, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		metrics.FetchAttempts.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp read: %w", err)
	}
	metrics.FetchAttempts.WithLabelValues("ftp", "ok").Inc()
	return data, nil
}

// ftpDialer opens the control and data connections of an FTP session. Each
// connection carries the context deadline, and cancelling ctx expires it,
// so a stalled transfer cannot outlive the load.
func (l *Loader) ftpDialer(ctx context.Context) func(network, address string) (net.Conn, error) {
	return func(network, address string) (net.Conn, error) {
		d := net.Dialer{Timeout: l.timeout}
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}
		context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
		return conn, nil
	}
}

func (l *Loader) readSQLite(ctx context.Context, ref SourceRef) ([]string, [][]string, error) {
	// sql.Open would create a missing file.
	if _, err := os.Stat(ref.Path); err != nil {
		return nil, nil, err
	}
	db, err := store.OpenSQLite(ref.Path)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	st := store.New(db, l.logger)
	version, err := st.CheckSchema(ctx)
	if err != nil {
		return nil, nil, loadErr(KindFormat, ref.Raw, err)
	}
	header, rows, err := st.RawTable(ctx)
	if err != nil {
		return nil, nil, loadErr(KindFormat, ref.Raw, err)
	}

	snap, err := st.LatestSnapshot(ctx)
	switch {
	case err != nil:
		l.logger.Warn("snapshot provenance unavailable", "path", ref.Path, "error", err)
	case snap != nil:
		l.logger.Info("reading sqlite snapshot",
			"path", ref.Path,
			"schema_version", version,
			"imported_from", snap.Source,
			"imported_at", snap.ImportedAt,
			"rows", snap.RowCount,
		)
	}
	return header, rows, nil
}

// ReadRaw exposes the raw header and rows of a source without parsing,
// for importing into a SQLite snapshot.
func (l *Loader) ReadRaw(ctx context.Context, source string) ([]string, [][]string, error) {
	ref, err := ParseSource(source)
	if err != nil {
		return nil, nil, loadErr(KindSource, source, err)
	}
	if ref.Remote() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	header, rows, err := l.readRaw(ctx, ref)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, nil, le
		}
		return nil, nil, loadErr(KindSource, source, err)
	}
	if len(header) == 0 {
		return nil, nil, loadErr(KindEmpty, source, errors.New("source has no header"))
	}
	return header, rows, nil
}
