package buffer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/crawlsource/internal/kvutil"
	"github.com/arloliu/crawlsource/types"
)

// Defaults for JetStreamConfig.
const (
	DefaultStream        = "CRAWLSOURCE_RECORDS"
	DefaultSubjectPrefix = "crawlsource.records"
)

// HeaderRecordKey carries Record.Key on published messages.
const HeaderRecordKey = "Crawlsource-Record-Key"

// JetStreamConfig configures the JetStream buffer.
type JetStreamConfig struct {
	// Stream is the stream records are published to (default CRAWLSOURCE_RECORDS).
	Stream string `yaml:"stream"`

	// SubjectPrefix is prepended to the sanitized record key (default crawlsource.records).
	SubjectPrefix string `yaml:"subjectPrefix"`

	// Replicas is the stream replica count (default 1).
	Replicas int `yaml:"replicas"`

	// MemoryStorage keeps the stream in memory instead of on disk.
	MemoryStorage bool `yaml:"memoryStorage"`

	// DuplicateWindow drops re-published records with the same key inside
	// the window. Zero keeps the server default.
	DuplicateWindow time.Duration `yaml:"duplicateWindow"`
}

// JetStream publishes records to a JetStream stream.
//
// Each record goes to <prefix>.<sanitized key> with the record key as the
// message ID, so a page re-fetched after a crash is deduplicated by the
// stream within its duplicate window. Attributes become message headers.
type JetStream struct {
	js     jetstream.JetStream
	prefix string
}

var _ types.Buffer = (*JetStream)(nil)

// NewJetStream creates or updates the record stream and returns a buffer publishing to it.
//
// Parameters:
//   - ctx: Context for stream creation
//   - js: JetStream context
//   - cfg: Stream configuration, zero fields take defaults
//
// Returns:
//   - *JetStream: Buffer bound to the stream
//   - error: Stream creation failure
func NewJetStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) (*JetStream, error) {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}

	storage := jetstream.FileStorage
	if cfg.MemoryStorage {
		storage = jetstream.MemoryStorage
	}

	_, err := kvutil.EnsureStreamWithRetry(ctx, js, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "crawlsource downstream records",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Storage:     storage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}, 0)
	if err != nil {
		return nil, err
	}

	return &JetStream{js: js, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject rec is published to.
func (b *JetStream) Subject(rec types.Record) string {
	return b.prefix + "." + SanitizeToken(rec.Key)
}

// Write publishes rec and waits for the stream acknowledgement.
//
// Returns:
//   - error: ErrBufferTimeout if no acknowledgement arrived within timeout,
//     ctx.Err() if ctx was cancelled first
func (b *JetStream) Write(ctx context.Context, rec types.Record, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pubCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg := nats.NewMsg(b.Subject(rec))
	msg.Data = rec.Data
	msg.Header.Set(HeaderRecordKey, rec.Key)
	for k, v := range rec.Attributes {
		msg.Header.Set(k, v)
	}

	var opts []jetstream.PublishOpt
	if rec.Key != "" {
		opts = append(opts, jetstream.WithMsgID(rec.Key))
	}

	if _, err := b.js.PublishMsg(pubCtx, msg, opts...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return fmt.Errorf("publish %s: %w", msg.Subject, types.ErrBufferTimeout)
		}

		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	return nil
}

// SanitizeToken maps key to a single NATS subject token.
//
// Characters outside [A-Za-z0-9_-] become '_' so keys never add wildcards or
// extra tokens. An empty key maps to "_".
func SanitizeToken(key string) string {
	if key == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, key)
}
