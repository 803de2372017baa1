package batch_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jcrypt/internal/crypto"
	"github.com/TheMichaelB/jcrypt/internal/models"
	"github.com/TheMichaelB/jcrypt/internal/services/batch"
	"github.com/TheMichaelB/jcrypt/internal/state"
	"github.com/TheMichaelB/jcrypt/internal/storage"
	"github.com/TheMichaelB/jcrypt/internal/workers"
	"github.com/TheMichaelB/jcrypt/test/testutil"
)

var corpus = map[string][]byte{
	"alpha.txt": []byte("the quick brown fox"),
	"beta.txt":  []byte("jumps over the lazy dog"),
	"gamma.txt": []byte("and runs away\nwith a second line\n"),
}

func newLocalEngine(t *testing.T, out *testutil.SafeBuffer) *batch.Engine {
	t.Helper()
	logger := testutil.NewTestLogger()
	return batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), storage.NewLocalStore(logger), nil, out, logger)
}

func sealAll(t *testing.T, store *storage.MockStore, password string, files map[string][]byte) []string {
	t.Helper()
	codec := crypto.NewCodec()

	paths := make([]string, 0, len(files))
	for name, data := range files {
		rec, err := codec.Encrypt(password, data)
		require.NoError(t, err)
		require.NoError(t, store.WriteRecord(name+".encrypted", rec))
		paths = append(paths, name+".encrypted")
	}
	return paths
}

func TestEngine_EncryptThenDecrypt(t *testing.T) {
	dir := t.TempDir()
	paths := testutil.WriteFiles(t, dir, corpus)
	engine := newLocalEngine(t, &testutil.SafeBuffer{})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Encrypt beside the sources
	report, err := engine.Run(ctx, &batch.Request{
		Files:           paths,
		EncryptPassword: "swordfish",
		SaveToFile:      true,
		Workers:         4,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())
	assert.Equal(t, models.OpEncrypt, report.Mode)
	assert.Equal(t, 3, report.Outcome.Completed)
	assert.Equal(t, 4, report.Workers)
	assert.Equal(t, workers.DefaultStrategy, report.Strategy)
	assert.False(t, report.Outcome.Cancelled)

	encrypted := make([]string, len(paths))
	codec := crypto.NewCodec()
	for i, p := range paths {
		encrypted[i] = p + ".encrypted"
		raw, err := os.ReadFile(encrypted[i])
		require.NoError(t, err)

		rec, err := models.ParseRecord(raw)
		require.NoError(t, err)
		clear, err := codec.Decrypt("swordfish", rec)
		require.NoError(t, err)
		assert.Equal(t, corpus[filepath.Base(p)], clear)
	}

	// Decrypt into a separate directory
	outDir := filepath.Join(dir, "restored")
	report, err = engine.Run(ctx, &batch.Request{
		Files:           encrypted,
		DecryptPassword: "swordfish",
		SaveToFile:      true,
		OutputDir:       outDir,
		Workers:         4,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())
	assert.Equal(t, models.OpDecrypt, report.Mode)

	for _, p := range paths {
		testutil.CompareFiles(t, p, filepath.Join(outDir, filepath.Base(p)))
	}
}

func TestEngine_WrongPassword(t *testing.T) {
	store := storage.NewMockStore()
	paths := sealAll(t, store, "swordfish", corpus)
	logger := testutil.NewTestLogger()
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, logger)

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           paths,
		DecryptPassword: "wrong",
		SaveToFile:      true,
		Workers:         4,
	})
	require.NoError(t, err)

	assert.Zero(t, report.Outcome.Completed)
	require.Len(t, report.Outcome.Failures, 3)
	assert.True(t, report.Outcome.AllFailed())

	for i, f := range report.Outcome.Failures {
		assert.Equal(t, i, f.Index)
		kind := models.KindOf(f.Err)
		assert.Contains(t, []models.ErrorKind{models.KindChecksumMismatch, models.KindDecryptionFailed}, kind)
		assert.Contains(t, f.Err.Error(), paths[i])
	}

	// Nothing but the three records was written
	assert.Len(t, store.Paths(), 3)
}

func TestEngine_StdoutRouting(t *testing.T) {
	store := storage.NewMockStore()
	paths := sealAll(t, store, "swordfish", corpus)
	out := &testutil.SafeBuffer{}
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, out, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           paths,
		DecryptPassword: "swordfish",
		Workers:         2,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())

	got := out.String()
	for _, data := range corpus {
		assert.Contains(t, got, string(data)+"\n")
	}
	assert.Len(t, store.Paths(), 3, "stdout routing must not write files")
}

func TestEngine_StdoutEncryptWritesCiphertextOnly(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("hello.txt", []byte("hello world"))
	out := &testutil.SafeBuffer{}
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, out, testutil.NewTestLogger())

	_, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"hello.txt"},
		EncryptPassword: "swordfish",
		Workers:         1,
	})
	require.NoError(t, err)

	rec, err := crypto.NewCodec().Encrypt("swordfish", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, append(rec.Content, '\n'), out.Bytes())
}

func TestEngine_Reencrypt(t *testing.T) {
	store := storage.NewMockStore()
	sealAll(t, store, "old", map[string][]byte{"notes.txt": []byte("rotate me")})
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"notes.txt.encrypted"},
		DecryptPassword: "old",
		EncryptPassword: "new",
		SaveToFile:      true,
		Workers:         1,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())
	assert.Equal(t, models.OpReencrypt, report.Mode)

	rec, err := store.ReadRecord("notes.txt.encrypted.encrypted")
	require.NoError(t, err)

	clear, err := crypto.NewCodec().Decrypt("new", rec)
	require.NoError(t, err)
	assert.Equal(t, "rotate me", string(clear))

	_, err = crypto.NewCodec().Decrypt("old", rec)
	assert.Error(t, err)

	// The intermediate plaintext is only written on request.
	_, ok := store.Get("notes.txt")
	assert.False(t, ok)
}

func TestEngine_CrackNotImplemented(t *testing.T) {
	store := storage.NewMockStore()
	paths := sealAll(t, store, "secret", corpus)
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:   paths,
		Crack:   true,
		Workers: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OpCrack, report.Mode)
	require.Len(t, report.Outcome.Failures, 3)
	for _, f := range report.Outcome.Failures {
		assert.ErrorIs(t, f.Err, models.ErrNotImplemented)
	}
}

func TestEngine_CrackReencryptWithCracker(t *testing.T) {
	store := storage.NewMockStore()
	sealAll(t, store, "forgotten", map[string][]byte{"lost.txt": []byte("recovered")})

	cracker := testutil.NewMockCracker()
	cracker.On("Crack", mock.Anything, mock.AnythingOfType("*models.EncryptedRecord")).
		Return([]byte("recovered"), nil).Once()

	engine := batch.NewEngine(crypto.NewCodec(), cracker, store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"lost.txt.encrypted"},
		Crack:           true,
		EncryptPassword: "fresh",
		SaveToFile:      true,
		Workers:         1,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())
	assert.Equal(t, models.OpCrackReencrypt, report.Mode)

	rec, err := store.ReadRecord("lost.txt.encrypted.encrypted")
	require.NoError(t, err)
	clear, err := crypto.NewCodec().Decrypt("fresh", rec)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(clear))

	testutil.AssertMockExpectations(t, cracker)
}

func TestEngine_EncryptionFailure(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("a.txt", []byte("a"))
	store.Put("b.txt", []byte("b"))

	codec := testutil.NewMockCodec()
	codec.On("Encrypt", "pw", []byte("a")).
		Return(nil, models.NewError(models.KindEncryptionFailed, "encrypt", errors.New("cipher unavailable")))
	codec.On("Encrypt", "pw", []byte("b")).
		Return(&models.EncryptedRecord{Checksum: 1, Content: []byte("12345678")}, nil)

	engine := batch.NewEngine(codec, crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"a.txt", "b.txt"},
		EncryptPassword: "pw",
		SaveToFile:      true,
		Workers:         2,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Outcome.Completed)
	require.Len(t, report.Outcome.Failures, 1)
	assert.Equal(t, 0, report.Outcome.Failures[0].Index)
	assert.Equal(t, models.KindEncryptionFailed, models.KindOf(report.Outcome.Failures[0].Err))

	_, ok := store.Get("b.txt.encrypted")
	assert.True(t, ok)
	_, ok = store.Get("a.txt.encrypted")
	assert.False(t, ok)

	codec.AssertExpectations(t)
}

func TestEngine_MissingAndFailingFiles(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("ok.txt", []byte("fine"))
	store.Put("locked.txt", []byte("nope"))
	store.FailOn("locked.txt.encrypted", models.KindWriteFailed)

	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"missing.txt", "ok.txt", "locked.txt"},
		EncryptPassword: "pw",
		SaveToFile:      true,
		Workers:         3,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Outcome.Completed)
	require.Len(t, report.Outcome.Failures, 2)
	assert.Equal(t, 0, report.Outcome.Failures[0].Index)
	assert.ErrorIs(t, report.Outcome.Failures[0].Err, models.ErrNotFound)
	assert.Equal(t, 2, report.Outcome.Failures[1].Index)
	assert.ErrorIs(t, report.Outcome.Failures[1].Err, models.ErrWriteFailed)
}

func TestEngine_AllStrategies(t *testing.T) {
	files := make(map[string][]byte)
	for i := 0; i < 25; i++ {
		files[string(rune('a'+i))+".txt"] = bytes.Repeat([]byte{byte(i)}, i*7)
	}

	for _, strategy := range workers.Strategies() {
		t.Run(string(strategy), func(t *testing.T) {
			store := storage.NewMockStore()
			var paths []string
			for name, data := range files {
				store.Put(name, data)
				paths = append(paths, name)
			}

			engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())
			report, err := engine.Run(context.Background(), &batch.Request{
				Files:           paths,
				EncryptPassword: "pw",
				SaveToFile:      true,
				Workers:         4,
				Strategy:        strategy,
			})
			require.NoError(t, err)
			require.NoError(t, report.Outcome.Err())
			assert.Equal(t, strategy, report.Strategy)
			assert.Equal(t, len(files), report.Outcome.Completed)
			assert.Equal(t, len(files), store.Writes())
		})
	}
}

func TestEngine_EventsAndProgress(t *testing.T) {
	store := storage.NewMockStore()
	paths := sealAll(t, store, "pw", corpus)
	store.FailOn(paths[0], models.KindReadFailed)

	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())
	assert.Nil(t, engine.GetProgress())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           paths,
		DecryptPassword: "pw",
		SaveToFile:      true,
		Workers:         2,
	})
	require.NoError(t, err)

	counts := make(map[batch.EventType]int)
	var last batch.Event
	for ev := range engine.Events() {
		counts[ev.Type]++
		last = ev
	}

	assert.Equal(t, 1, counts[batch.EventStarted])
	assert.Equal(t, 3, counts[batch.EventTaskStarted])
	assert.Equal(t, 2, counts[batch.EventTaskComplete])
	assert.Equal(t, 1, counts[batch.EventTaskFailed])
	assert.Equal(t, batch.EventCompleted, last.Type)

	progress := engine.GetProgress()
	require.NotNil(t, progress)
	assert.Equal(t, "completed", progress.Phase)
	assert.Equal(t, report.RunID, progress.RunID)
	assert.Equal(t, 3, progress.TotalFiles)
	assert.Equal(t, 3, progress.ProcessedFiles)
	assert.Equal(t, 1, progress.FailedFiles)
	assert.Empty(t, progress.CurrentFile)
	assert.Equal(t, report.Outcome.Bytes, progress.Bytes)
}

func TestEngine_History(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("a.txt", []byte("aaa"))
	history := state.NewMockStore()

	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, history, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"a.txt", "missing.txt"},
		EncryptPassword: "pw",
		SaveToFile:      true,
		Workers:         2,
		Strategy:        workers.StrategyLock,
	})
	require.NoError(t, err)

	ids, err := history.List()
	require.NoError(t, err)
	require.Equal(t, []string{report.RunID}, ids)

	rec, err := history.Load(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.OpEncrypt, rec.Mode)
	assert.Equal(t, string(workers.StrategyLock), rec.Strategy)
	assert.Equal(t, []string{"a.txt", "missing.txt"}, rec.Files)
	assert.Equal(t, 1, rec.Completed)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Failures, 1)
	assert.Equal(t, 1, rec.Failures[0].Index)
	assert.Equal(t, "NotFound", rec.Failures[0].Kind)
}

func TestEngine_HistorySaveFailure(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("a.txt", []byte("aaa"))
	history := state.NewMockStore()
	history.SaveErr = errors.New("disk full")

	logs := testutil.NewLogOutput()
	logger := testutil.NewTestLoggerTo(logs)
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, history, &testutil.SafeBuffer{}, logger)

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"a.txt"},
		EncryptPassword: "pw",
		SaveToFile:      true,
		Workers:         1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcome.Completed)
	assert.True(t, logs.HasMessage("Failed to save run history"))
	assert.True(t, logs.HasMessage("Encrypting a.txt"))
}

func TestEngine_CancelledContext(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("a.txt", []byte("a"))
	store.Put("b.txt", []byte("b"))

	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.Run(ctx, &batch.Request{
		Files:           []string{"a.txt", "b.txt"},
		EncryptPassword: "pw",
		SaveToFile:      true,
		Workers:         2,
	})
	require.NoError(t, err)

	assert.True(t, report.Outcome.Cancelled)
	assert.Zero(t, report.Outcome.Processed())
	assert.Equal(t, "cancelled", engine.GetProgress().Phase)
	assert.Zero(t, store.Writes())
}

func TestEngine_RejectsConcurrentRun(t *testing.T) {
	store := storage.NewMockStore()
	sealAll(t, store, "pw", map[string][]byte{"slow.txt": []byte("slow")})
	store.Put("fast.txt", []byte("fast"))

	entered := make(chan struct{})
	release := make(chan struct{})

	cracker := testutil.NewMockCracker()
	cracker.On("Crack", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]byte("slow"), nil)

	engine := batch.NewEngine(crypto.NewCodec(), cracker, store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := engine.Run(context.Background(), &batch.Request{
			Files:   []string{"slow.txt.encrypted"},
			Crack:   true,
			Workers: 1,
		})
		assert.NoError(t, err)
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never started")
	}

	_, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"fast.txt"},
		EncryptPassword: "pw",
		Workers:         1,
	})
	assert.ErrorIs(t, err, batch.ErrBatchInProgress)

	close(release)
	wg.Wait()

	// The engine is reusable once the first batch finishes
	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"fast.txt"},
		EncryptPassword: "pw",
		SaveToFile:      true,
		Workers:         1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcome.Completed)
}

func TestEngine_InvalidRequest(t *testing.T) {
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), storage.NewMockStore(), nil,
		&testutil.SafeBuffer{}, testutil.NewTestLogger())

	_, err := engine.Run(context.Background(), &batch.Request{Files: []string{"a"}, Workers: 1})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	_, err = engine.Run(context.Background(), &batch.Request{
		Files:           []string{"a"},
		EncryptPassword: "pw",
		Workers:         1,
		Strategy:        workers.Strategy("spin"),
	})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestEngine_InvalidRequestClosesEvents(t *testing.T) {
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), storage.NewMockStore(), nil,
		&testutil.SafeBuffer{}, testutil.NewTestLogger())

	var got []batch.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range engine.Events() {
			got = append(got, event)
		}
	}()

	_, err := engine.Run(context.Background(), &batch.Request{Files: []string{"a"}, Workers: 1})
	require.ErrorIs(t, err, models.ErrInvalidConfiguration)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events channel left open after a rejected request")
	}

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, batch.EventFailed, last.Type)
	assert.ErrorIs(t, last.Error, models.ErrInvalidConfiguration)

	// A later rejected run gets a fresh channel that is closed again.
	_, err = engine.Run(context.Background(), &batch.Request{
		Files:           []string{"a"},
		EncryptPassword: "pw",
		Workers:         1,
		Strategy:        workers.Strategy("spin"),
	})
	require.Error(t, err)

	var types []batch.EventType
	for event := range engine.Events() {
		types = append(types, event.Type)
	}
	assert.Equal(t, []batch.EventType{batch.EventFailed}, types)
}

func TestEngine_KeepPlaintext(t *testing.T) {
	store := storage.NewMockStore()
	sealAll(t, store, "old", map[string][]byte{"notes.txt": []byte("rotate me")})
	engine := batch.NewEngine(crypto.NewCodec(), crypto.NewCracker(), store, nil, &testutil.SafeBuffer{}, testutil.NewTestLogger())

	report, err := engine.Run(context.Background(), &batch.Request{
		Files:           []string{"notes.txt.encrypted"},
		DecryptPassword: "old",
		EncryptPassword: "new",
		SaveToFile:      true,
		KeepPlaintext:   true,
		Workers:         1,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())

	clear, ok := store.Get("notes.txt")
	require.True(t, ok)
	assert.Equal(t, "rotate me", string(clear))

	rec, err := store.ReadRecord("notes.txt.encrypted.encrypted")
	require.NoError(t, err)
	clear, err = crypto.NewCodec().Decrypt("new", rec)
	require.NoError(t, err)
	assert.Equal(t, "rotate me", string(clear))
}

func TestService_Run(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TestConfigWithDir(dir)
	paths := testutil.WriteFiles(t, filepath.Join(dir, "in"), corpus)
	out := &testutil.SafeBuffer{}

	svc, err := batch.NewService(cfg, out, testutil.NewTestLogger())
	require.NoError(t, err)
	defer svc.Close()

	report, err := svc.Run(context.Background(), &batch.Request{
		Files:           paths,
		EncryptPassword: "swordfish",
		SaveToFile:      true,
		OutputDir:       cfg.Crypt.OutputDir,
		Workers:         cfg.Crypt.Workers,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome.Err())

	for _, p := range paths {
		_, err := os.Stat(filepath.Join(cfg.Crypt.OutputDir, filepath.Base(p)+".encrypted"))
		assert.NoError(t, err)
	}

	require.NotNil(t, svc.History())
	rec, err := svc.History().Load(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Completed)
	assert.True(t, strings.HasPrefix(rec.ID, report.StartedAt.UTC().Format("20060102")))
}
