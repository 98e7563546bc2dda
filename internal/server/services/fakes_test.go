package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/keyedmutex"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/facts"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/filekeeper/internal/server/scanner"
	"github.com/dmitrijs2005/filekeeper/internal/server/storage"
)

// In-memory repository fakes. They ignore the DBTX they are vended with, so
// transactional code paths can be exercised without a real database; the
// Begin/Commit pair is still asserted through sqlmock.

type fakeBlobRepo struct {
	mu    sync.Mutex
	rows  map[string]*models.Blob
	byKey map[string]string // content hash -> id
}

func newFakeBlobRepo() *fakeBlobRepo {
	return &fakeBlobRepo{rows: make(map[string]*models.Blob), byKey: make(map[string]string)}
}

func (r *fakeBlobRepo) Create(ctx context.Context, b *models.Blob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[b.ContentHash]; ok {
		return common.ErrDuplicateContent
	}
	cp := *b
	r.rows[b.ID] = &cp
	r.byKey[b.ContentHash] = b.ID
	return nil
}

func (r *fakeBlobRepo) GetByID(ctx context.Context, id string) (*models.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBlobRepo) GetByHash(ctx context.Context, hash string) (*models.Blob, error) {
	r.mu.Lock()
	id, ok := r.byKey[hash]
	r.mu.Unlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *fakeBlobRepo) IncrementRefByHash(ctx context.Context, hash string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[hash]
	if !ok {
		return "", common.ErrorNotFound
	}
	r.rows[id].RefCount++
	return id, nil
}

func (r *fakeBlobRepo) IncrementRef(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	b.RefCount++
	return b.RefCount, nil
}

func (r *fakeBlobRepo) DecrementRef(ctx context.Context, id string) (*models.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	b.RefCount--
	cp := *b
	return &cp, nil
}

func (r *fakeBlobRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.byKey, b.ContentHash)
	delete(r.rows, id)
	return nil
}

func (r *fakeBlobRepo) UpdateScanState(ctx context.Context, id string, status string, result *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	now := time.Now()
	b.ScanStatus = &status
	b.ScanResult = result
	b.ScannedAt = &now
	return nil
}

func (r *fakeBlobRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeFileRepo struct {
	mu   sync.Mutex
	rows map[string]*models.FileEntry
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{rows: make(map[string]*models.FileEntry)}
}

func (r *fakeFileRepo) put(e *models.FileEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.rows[e.ID] = &cp
}

func (r *fakeFileRepo) Create(ctx context.Context, e *models.FileEntry) error {
	r.put(e)
	return nil
}

func (r *fakeFileRepo) GetOwned(ctx context.Context, ownerID, id string) (*models.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.OwnerID != ownerID || !e.Live() {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeFileRepo) GetAnyOwned(ctx context.Context, ownerID, id string) (*models.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeFileRepo) FindLiveByName(ctx context.Context, ownerID string, parentID *string, name string) (*models.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if e.OwnerID == ownerID && e.Name == name && !e.IsFolder && e.Live() && sameParent(e.ParentID, parentID) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeFileRepo) ListChildren(ctx context.Context, parentID string) ([]*models.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.FileEntry
	for _, e := range r.rows {
		if e.ParentID != nil && *e.ParentID == parentID && e.Live() {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *fakeFileRepo) ListRoot(ctx context.Context, ownerID string) ([]*models.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.FileEntry
	for _, e := range r.rows {
		if e.OwnerID == ownerID && e.ParentID == nil && e.Live() {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *fakeFileRepo) SoftDelete(ctx context.Context, id string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || !e.Live() {
		return 0, nil
	}
	e.DeletedAt = &at
	return 1, nil
}

func (r *fakeFileRepo) Restore(ctx context.Context, id string, parentID *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.Live() {
		return 0, nil
	}
	e.DeletedAt = nil
	e.ParentID = parentID
	return 1, nil
}

func (r *fakeFileRepo) SetParent(ctx context.Context, ownerID, id string, parentID *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.OwnerID != ownerID || !e.Live() {
		return 0, nil
	}
	e.ParentID = parentID
	return 1, nil
}

func (r *fakeFileRepo) Rename(ctx context.Context, ownerID, id, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.OwnerID != ownerID || !e.Live() {
		return 0, nil
	}
	e.Name = name
	return 1, nil
}

func (r *fakeFileRepo) SetBlob(ctx context.Context, id, blobID string, expiresAt *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || !e.Live() {
		return 0, nil
	}
	e.BlobID = &blobID
	e.ExpiresAt = expiresAt
	return 1, nil
}

func (r *fakeFileRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.FileEntry
	for _, e := range r.rows {
		if e.ExpiresAt != nil && e.ExpiresAt.Before(now) && len(result) < limit {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *fakeFileRepo) HardDelete(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return 0, nil
	}
	delete(r.rows, id)
	return 1, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type fakeSessionRepo struct {
	mu     sync.Mutex
	pruned int64
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruned, nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	err    error
}

func (r *fakeAuditRepo) Insert(ctx context.Context, e *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *fakeAuditRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fakeFactsRepo recomputes aggregates from the sibling fakes the way the
// SQL implementation aggregates from the live tables.
type fakeFactsRepo struct {
	files *fakeFileRepo
	blobs *fakeBlobRepo

	mu    sync.Mutex
	saved map[string]*models.OwnerFacts
}

func (r *fakeFactsRepo) Recompute(ctx context.Context, ownerID string) (*models.OwnerFacts, error) {
	f := &models.OwnerFacts{OwnerID: ownerID}
	r.files.mu.Lock()
	defer r.files.mu.Unlock()
	for _, e := range r.files.rows {
		if e.OwnerID != ownerID || e.IsFolder || !e.Live() || e.BlobID == nil {
			continue
		}
		f.TotalFiles++
		if b, err := r.blobs.GetByID(ctx, *e.BlobID); err == nil {
			f.TotalSize += b.Size
		}
	}
	return f, nil
}

func (r *fakeFactsRepo) Upsert(ctx context.Context, f *models.OwnerFacts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[string]*models.OwnerFacts)
	}
	r.saved[f.OwnerID] = f
	return nil
}

type fakeRepoManager struct {
	blobRepo    blobs.Repository
	fileRepo    files.Repository
	sessionRepo sessions.Repository
	auditRepo   audit.Repository
	factsRepo   facts.Repository
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Blobs(db dbx.DBTX) blobs.Repository                  { return m.blobRepo }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository                  { return m.fileRepo }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository            { return m.sessionRepo }
func (m *fakeRepoManager) Audit(db dbx.DBTX) audit.Repository                  { return m.auditRepo }
func (m *fakeRepoManager) Facts(db dbx.DBTX) facts.Repository                  { return m.factsRepo }

// fakeScanner returns a fixed result or error.
type fakeScanner struct {
	result scanner.Result
	err    error
	calls  int
}

func (s *fakeScanner) Scan(ctx context.Context, r io.Reader) (scanner.Result, error) {
	s.calls++
	if _, err := io.Copy(io.Discard, r); err != nil {
		return scanner.Result{}, err
	}
	if s.err != nil {
		return scanner.Result{}, s.err
	}
	return s.result, nil
}

func (s *fakeScanner) HealthCheck(ctx context.Context) bool { return s.err == nil }

// testEnv bundles everything a service test needs. The sqlmock connection
// only sees Begin/Commit/Rollback; SQL goes to the map-backed fakes.
type testEnv struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	blobs   *fakeBlobRepo
	files   *fakeFileRepo
	audits  *fakeAuditRepo
	factsDB *fakeFactsRepo
	repos   *fakeRepoManager
	store   *storage.MemStore
	scan    *fakeScanner

	lifecycle *Lifecycle
	facts     *Facts
	svc       *FileService
}

func newTestEnv(t *testing.T, opts FileServiceOptions) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobRepo := newFakeBlobRepo()
	fileRepo := newFakeFileRepo()
	auditRepo := &fakeAuditRepo{}
	factsRepo := &fakeFactsRepo{files: fileRepo, blobs: blobRepo}
	repos := &fakeRepoManager{
		blobRepo:    blobRepo,
		fileRepo:    fileRepo,
		sessionRepo: &fakeSessionRepo{},
		auditRepo:   auditRepo,
		factsRepo:   factsRepo,
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	store := storage.NewMemStore()
	scan := &fakeScanner{}

	lifecycle := NewLifecycle(repos, store, logger)
	factsSvc := NewFacts(db, repos, logger)
	svc := NewFileService(db, repos, store, scan, lifecycle, factsSvc, nil,
		keyedmutex.New(), logger, opts)

	return &testEnv{
		db:        db,
		mock:      mock,
		blobs:     blobRepo,
		files:     fileRepo,
		audits:    auditRepo,
		factsDB:   factsRepo,
		repos:     repos,
		store:     store,
		scan:      scan,
		lifecycle: lifecycle,
		facts:     factsSvc,
		svc:       svc,
	}
}

// attachAuditor gives the service a real recorder so tests can observe
// queued audit events; the consumer is never started, events stay buffered.
func (e *testEnv) attachAuditor(t *testing.T) *AuditRecorder {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := NewAuditRecorder(e.db, e.repos, logger, 16)
	e.svc.auditor = rec
	return rec
}

// expectTx queues one Begin/Commit pair on the mock connection.
func (e *testEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

// expectTxRollback queues a Begin/Rollback pair for a failing transaction.
func (e *testEnv) expectTxRollback() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

func strptr(s string) *string { return &s }
