package buffer

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	cstest "github.com/arloliu/crawlsource/testing"
	"github.com/arloliu/crawlsource/types"
)

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "_"},
		{"page-1", "page-1"},
		{"a.b", "a_b"},
		{"org/repo*>", "org_repo__"},
		{"with space", "with_space"},
		{"ünï", "_n_"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeToken(tt.in), tt.in)
	}
}

func TestJetStream_Write(t *testing.T) {
	_, nc := cstest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	buf, err := NewJetStream(t.Context(), js, JetStreamConfig{
		Stream:        "RECORDS",
		SubjectPrefix: "test.records",
		MemoryStorage: true,
	})
	require.NoError(t, err)

	rec := types.Record{
		Key:        "repo/a.0",
		Data:       []byte(`{"n":1}`),
		Attributes: map[string]string{"item": "repo-a"},
	}
	require.Equal(t, "test.records.repo_a_0", buf.Subject(rec))
	require.NoError(t, buf.Write(t.Context(), rec, time.Second))

	// Same key again is dropped by the duplicate window
	require.NoError(t, buf.Write(t.Context(), rec, time.Second))
	require.NoError(t, buf.Write(t.Context(), types.Record{Key: "repo/a.1"}, time.Second))

	stream, err := js.Stream(t.Context(), "RECORDS")
	require.NoError(t, err)
	info, err := stream.Info(t.Context())
	require.NoError(t, err)
	require.Equal(t, uint64(2), info.State.Msgs)

	msg, err := stream.GetMsg(t.Context(), 1)
	require.NoError(t, err)
	require.Equal(t, "test.records.repo_a_0", msg.Subject)
	require.JSONEq(t, `{"n":1}`, string(msg.Data))
	require.Equal(t, "repo/a.0", msg.Header.Get(HeaderRecordKey))
	require.Equal(t, "repo-a", msg.Header.Get("item"))
}

func TestJetStream_WriteWithoutStreamFails(t *testing.T) {
	_, nc := cstest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	buf, err := NewJetStream(t.Context(), js, JetStreamConfig{Stream: "GONE", SubjectPrefix: "gone", MemoryStorage: true})
	require.NoError(t, err)
	require.NoError(t, js.DeleteStream(t.Context(), "GONE"))

	err = buf.Write(t.Context(), types.Record{Key: "k"}, 50*time.Millisecond)
	require.Error(t, err)
}

func TestNewJetStream_Defaults(t *testing.T) {
	_, nc := cstest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	buf, err := NewJetStream(t.Context(), js, JetStreamConfig{MemoryStorage: true})
	require.NoError(t, err)
	require.Equal(t, DefaultSubjectPrefix+".k", buf.Subject(types.Record{Key: "k"}))

	// Creating twice reuses the stream
	_, err = NewJetStream(t.Context(), js, JetStreamConfig{MemoryStorage: true})
	require.NoError(t, err)

	_, err = js.Stream(t.Context(), DefaultStream)
	require.NoError(t, err)
}
