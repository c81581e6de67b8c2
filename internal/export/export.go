// Package export renders pending lead exports and uploads them to
// S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/billow/internal/model"
)

const leadPageSize = 500

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Configured reports whether enough is set to reach a bucket.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ExportStore is the subset of the export store the worker drives.
type ExportStore interface {
	ListPending(ctx context.Context, limit int) ([]model.Export, error)
	MarkComplete(ctx context.Context, id, objectKey string, size int64) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// LeadLister pages through an organization's leads.
type LeadLister interface {
	List(ctx context.Context, orgID string, limit, offset int) ([]model.Lead, error)
}

// Worker polls for pending exports and processes them one at a time.
type Worker struct {
	client   s3Client
	bucket   string
	exports  ExportStore
	leads    LeadLister
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker returns a worker, or a disabled one when storage is not configured.
func NewWorker(cfg S3Config, exports ExportStore, leads LeadLister, logger *slog.Logger) *Worker {
	w := &Worker{
		bucket:   cfg.Bucket,
		exports:  exports,
		leads:    leads,
		interval: 15 * time.Second,
		logger:   logger,
	}
	if cfg.Configured() {
		w.client = newS3Client(cfg)
	}
	return w
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the worker has object storage to write to.
func (w *Worker) Enabled() bool {
	return w.client != nil
}

// Start begins the polling loop. It is a no-op when the worker is disabled.
func (w *Worker) Start(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("export worker disabled: object storage not configured")
		return
	}

	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.ProcessPending(ctx); err != nil {
					w.logger.Error("process pending exports", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight export to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// ProcessPending runs every pending export and returns how many completed.
// A failing export is marked failed and does not stop the batch.
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.exports.ListPending(ctx, 50)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, exp := range pending {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if err := w.Process(ctx, exp); err != nil {
			w.logger.Error("export failed", "export_id", exp.ID, "organization_id", exp.OrganizationID, "error", err)
			if mErr := w.exports.MarkFailed(ctx, exp.ID, err.Error()); mErr != nil {
				return completed, mErr
			}
			continue
		}
		completed++
	}
	return completed, nil
}

// Process renders one export and uploads it.
func (w *Worker) Process(ctx context.Context, exp model.Export) error {
	if w.client == nil {
		return fmt.Errorf("export storage not configured")
	}

	var buf bytes.Buffer
	if err := w.render(ctx, &buf, exp); err != nil {
		return err
	}
	size := int64(buf.Len())
	key := ObjectKey(exp)

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(exp.Format)),
	})
	if err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}

	if err := w.exports.MarkComplete(ctx, exp.ID, key, size); err != nil {
		return err
	}
	w.logger.Info("export complete", "export_id", exp.ID, "organization_id", exp.OrganizationID, "bytes", size)
	return nil
}

func (w *Worker) render(ctx context.Context, out io.Writer, exp model.Export) error {
	var leads []model.Lead
	for offset := 0; ; offset += leadPageSize {
		page, err := w.leads.List(ctx, exp.OrganizationID, leadPageSize, offset)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}
		leads = append(leads, page...)
		if len(page) < leadPageSize {
			break
		}
	}

	switch exp.Format {
	case "json":
		if leads == nil {
			leads = []model.Lead{}
		}
		return json.NewEncoder(out).Encode(leads)
	case "csv":
		cw := csv.NewWriter(out)
		cw.Write([]string{"id", "name", "email", "source", "created_at"})
		for _, l := range leads {
			cw.Write([]string{l.ID, l.Name, l.Email, l.Source, l.CreatedAt.UTC().Format(time.RFC3339)})
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported export format %q", exp.Format)
	}
}

// Open streams a completed export from storage.
func (w *Worker) Open(ctx context.Context, exp model.Export) (io.ReadCloser, error) {
	if w.client == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	if exp.Status != model.ExportComplete || exp.ObjectKey == "" {
		return nil, fmt.Errorf("export %s is not complete", exp.ID)
	}
	result, err := w.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(exp.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	return result.Body, nil
}

// Remove deletes an export's object. Exports without one are ignored.
func (w *Worker) Remove(ctx context.Context, exp model.Export) error {
	if w.client == nil || exp.ObjectKey == "" {
		return nil
	}
	_, err := w.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(exp.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object %s: %w", exp.ObjectKey, err)
	}
	return nil
}

// ObjectKey is where an export's rendered file is stored.
func ObjectKey(exp model.Export) string {
	return fmt.Sprintf("exports/%s/%s.%s", exp.OrganizationID, exp.ID, exp.Format)
}

func contentType(format string) string {
	if format == "json" {
		return "application/json"
	}
	return "text/csv"
}
