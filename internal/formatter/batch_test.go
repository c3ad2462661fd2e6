package formatter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/booth-harvest/internal/storage/local"
)

// idFormatter echoes the input id, dropping ids listed in drop.
type idFormatter struct {
	mu   sync.Mutex
	drop map[string]bool
	seen []string
}

func (f *idFormatter) Format(_ context.Context, raw json.RawMessage) (*FormattedRecord, error) {
	var in struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.seen = append(f.seen, in.ID)
	f.mu.Unlock()
	if f.drop[in.ID] {
		return nil, nil
	}
	return &FormattedRecord{ID: in.ID, Title: in.Title, GameType: GameTypeTRPG, GMRequired: GMRequiredYes}, nil
}

func newBatch(t *testing.T, f RecordFormatter, workers int) (*Batch, string, *recordingPauser) {
	t.Helper()
	outDir := filepath.Join(t.TempDir(), "formatted")
	out, err := local.New(local.Config{BaseDir: outDir})
	require.NoError(t, err)
	pauser := &recordingPauser{}
	b, err := NewBatch(f, out, BatchConfig{Workers: workers}, pauser, nil)
	require.NoError(t, err)
	return b, outDir, pauser
}

func writeInput(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readRecords(t *testing.T, path string) []FormattedRecord {
	t.Helper()
	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var recs []FormattedRecord
	require.NoError(t, json.Unmarshal(raw, &recs))
	return recs
}

func TestProcessFileArray(t *testing.T) {
	t.Parallel()

	f := &idFormatter{drop: map[string]bool{"2": true}}
	b, outDir, pauser := newBatch(t, f, 1)
	in := filepath.Join(t.TempDir(), "booth_data_マダミス.json")
	writeInput(t, in, `[{"id":"1","title":"a"},{"id":"2","title":"b"},{"id":"3","title":"c"}]`)

	n, err := b.ProcessFile(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2", "3"}, f.seen)

	recs := readRecords(t, filepath.Join(outDir, "booth_data_マダミス.json"))
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "3", recs[1].ID)
	// The delay follows every item, dropped ones included.
	assert.Equal(t, 3, len(pauser.delays))
	assert.Equal(t, DefaultItemDelay, pauser.delays[0])
}

func TestProcessFileObject(t *testing.T) {
	t.Parallel()

	b, outDir, pauser := newBatch(t, &idFormatter{}, 1)
	in := filepath.Join(t.TempDir(), "single.json")
	writeInput(t, in, `{"id":"7","title":"one"}`)

	n, err := b.ProcessFile(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, pauser.delays)

	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(filepath.Join(outDir, "single.json"))
	require.NoError(t, err)
	var rec FormattedRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "7", rec.ID)
}

func TestProcessFileDroppedObjectWritesNothing(t *testing.T) {
	t.Parallel()

	b, outDir, _ := newBatch(t, &idFormatter{drop: map[string]bool{"7": true}}, 1)
	in := filepath.Join(t.TempDir(), "single.json")
	writeInput(t, in, `{"id":"7"}`)

	n, err := b.ProcessFile(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoFileExists(t, filepath.Join(outDir, "single.json"))
}

func TestProcessFileRejectsScalars(t *testing.T) {
	t.Parallel()

	b, _, _ := newBatch(t, &idFormatter{}, 1)
	in := filepath.Join(t.TempDir(), "scalar.json")
	writeInput(t, in, `42`)

	_, err := b.ProcessFile(context.Background(), in)
	require.Error(t, err)
}

func TestProcessDir(t *testing.T) {
	t.Parallel()

	f := &idFormatter{}
	b, outDir, _ := newBatch(t, f, 2)
	inDir := t.TempDir()
	writeInput(t, filepath.Join(inDir, "a.json"), `[{"id":"1"},{"id":"2"}]`)
	writeInput(t, filepath.Join(inDir, "nested", "b.json"), `[{"id":"3"}]`)
	writeInput(t, filepath.Join(inDir, "broken.json"), `[{"id":`)
	writeInput(t, filepath.Join(inDir, "notes.txt"), `ignored`)

	n, err := b.ProcessPath(context.Background(), inDir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, f.seen)
	assert.Len(t, readRecords(t, filepath.Join(outDir, "a.json")), 2)
	assert.Len(t, readRecords(t, filepath.Join(outDir, "nested", "b.json")), 1)
}

func TestProcessDirKeepsSameNamedFilesApart(t *testing.T) {
	t.Parallel()

	f := &idFormatter{}
	b, outDir, _ := newBatch(t, f, 2)
	inDir := t.TempDir()
	writeInput(t, filepath.Join(inDir, "dirA", "x.json"), `[{"id":"a1"},{"id":"a2"}]`)
	writeInput(t, filepath.Join(inDir, "dirB", "x.json"), `[{"id":"b1"}]`)

	n, err := b.ProcessDir(context.Background(), inDir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	a := readRecords(t, filepath.Join(outDir, "dirA", "x.json"))
	require.Len(t, a, 2)
	assert.Equal(t, "a1", a[0].ID)
	bRecs := readRecords(t, filepath.Join(outDir, "dirB", "x.json"))
	require.Len(t, bRecs, 1)
	assert.Equal(t, "b1", bRecs[0].ID)
	assert.NoFileExists(t, filepath.Join(outDir, "x.json"))
}

func TestProcessDirSkipsOutputDir(t *testing.T) {
	t.Parallel()

	inDir := t.TempDir()
	out, err := local.New(local.Config{BaseDir: filepath.Join(inDir, "formatted")})
	require.NoError(t, err)
	f := &idFormatter{}
	b, err := NewBatch(f, out, BatchConfig{}, &recordingPauser{}, nil)
	require.NoError(t, err)

	writeInput(t, filepath.Join(inDir, "a.json"), `[{"id":"1"}]`)
	writeInput(t, filepath.Join(inDir, "formatted", "old.json"), `[{"id":"old"}]`)

	n, err := b.ProcessDir(context.Background(), inDir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1"}, f.seen)
}

func TestProcessDirCancelled(t *testing.T) {
	t.Parallel()

	b, _, _ := newBatch(t, &idFormatter{}, 1)
	inDir := t.TempDir()
	writeInput(t, filepath.Join(inDir, "a.json"), `[{"id":"1"},{"id":"2"}]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.ProcessDir(ctx, inDir)
	require.ErrorIs(t, err, context.Canceled)
}
