package persist

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
)

const design = `{"format":"otc/logical","version":1,"components":[],"connections":[]}`

func roundTrip(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Save(ctx, []byte(design)))
	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, design, string(got))

	require.NoError(t, b.Save(ctx, []byte(`{"components":[]}`)))
	got, err = b.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"components":[]}`, string(got))
}

func TestMemory(t *testing.T) {
	roundTrip(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "designs", "divider.otc.json")
	f := NewFile(path)
	roundTrip(t, f)
	assert.Equal(t, path, f.Path())

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary files are cleaned up")
}

type fakeRow struct {
	blob *string
}

func (r fakeRow) Scan(dest ...any) error {
	if r.blob == nil {
		return pgx.ErrNoRows
	}
	*dest[0].(*string) = *r.blob
	return nil
}

// fakeDB stores rows by design name the way the upsert would.
type fakeDB struct {
	mu    sync.Mutex
	rows  map[string]string
	execs []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if strings.Contains(sql, "INSERT") {
		f.rows[args[0].(string)] = args[1].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{}
	}
	return fakeRow{blob: &blob}
}

func TestPostgres(t *testing.T) {
	db := &fakeDB{rows: make(map[string]string)}
	p := newPostgres(db, PostgresConfig{Design: "divider"}, nil)
	require.NoError(t, p.EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], `"otc_designs"`)
	assert.Contains(t, db.execs[0], "JSONB")

	roundTrip(t, p)
	assert.Len(t, db.rows, 1)
	assert.Equal(t, "postgres", p.Name())
	p.Close()
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3(t *testing.T) {
	objects := &fakeObjects{objects: make(map[string][]byte)}
	b := newS3(objects, "designs", "divider.json", nil)
	roundTrip(t, b)
	assert.Contains(t, objects.objects, "designs/divider.json")
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Key: "x"}, nil)
	assert.Error(t, err)
}

func TestDebouncerCoalesces(t *testing.T) {
	mem := NewMemory()
	var snapshots atomic.Int32
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := NewDebouncer(mem, 20*time.Millisecond, func() ([]byte, error) {
		snapshots.Add(1)
		return []byte(design), nil
	}, WithDebounceMetrics(m))

	for i := 0; i < 5; i++ {
		d.Trigger()
	}
	require.Eventually(t, func() bool { return mem.Saves() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, mem.Saves())
	assert.Equal(t, int32(1), snapshots.Load())

	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, 1, mem.Saves(), "nothing pending")

	d.Trigger()
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, mem.Saves(), "close flushes")
	d.Trigger()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, mem.Saves(), "closed debouncer ignores triggers")

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "otc_persist_saves_total"), "one memory/success series")
}
