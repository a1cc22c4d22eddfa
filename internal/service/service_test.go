package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"gorm.io/gorm"

	"silo-go/internal/model"
	"silo-go/internal/pipeline"
)

// ---- 测试用协作方假实现 ----

type fakeFileRepo struct {
	records   map[string]*model.FileRecord
	updated   int
	updateErr error
}

func newFakeFileRepo(records ...*model.FileRecord) *fakeFileRepo {
	r := &fakeFileRepo{records: make(map[string]*model.FileRecord)}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *fakeFileRepo) Create(record *model.FileRecord) error {
	r.records[record.ID] = record
	return nil
}

func (r *fakeFileRepo) Update(record *model.FileRecord) error {
	r.updated++
	if r.updateErr != nil {
		return r.updateErr
	}
	r.records[record.ID] = record
	return nil
}

func (r *fakeFileRepo) FindByID(tenantID, id string) (*model.FileRecord, error) {
	record, ok := r.records[id]
	if !ok || record.TenantID != tenantID || record.Deleted {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (r *fakeFileRepo) FindByChecksum(tenantID, checksum string) ([]model.FileRecord, error) {
	var out []model.FileRecord
	for _, record := range r.records {
		if record.TenantID == tenantID && record.Checksum == checksum && !record.Deleted {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) FindByTenant(tenantID string, _, _ int) ([]model.FileRecord, error) {
	var out []model.FileRecord
	for _, record := range r.records {
		if record.TenantID == tenantID && !record.Deleted {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) SoftDelete(tenantID, id string) error {
	record, err := r.FindByID(tenantID, id)
	if err != nil {
		return err
	}
	record.Deleted = true
	return nil
}

func (r *fakeFileRepo) Archive(tenantID, id string) error {
	record, err := r.FindByID(tenantID, id)
	if err != nil {
		return err
	}
	record.Status = model.StatusArchived
	return nil
}

// fakeVersionRepo 与真实实现保持同一分配规则：版本号按 (租户, 逻辑路径) 递增。
type fakeVersionRepo struct {
	versions map[string][]model.FileVersion
	counters map[string]int
}

func (r *fakeVersionRepo) CreateVersion(_ context.Context, record *model.FileRecord, description, versionType string) (*model.FileVersion, error) {
	if r.versions == nil {
		r.versions = make(map[string][]model.FileVersion)
		r.counters = make(map[string]int)
	}
	key := record.TenantID + "/" + record.LogicalPath()
	r.counters[key]++
	v := model.FileVersion{
		FileID:            record.ID,
		TenantID:          record.TenantID,
		Path:              record.LogicalPath(),
		StoragePath:       record.StoragePath,
		VersionNumber:     r.counters[key],
		VersionType:       versionType,
		ChangeDescription: description,
	}
	r.versions[record.ID] = append(r.versions[record.ID], v)
	return &v, nil
}

func (r *fakeVersionRepo) FindByFile(fileID string) ([]model.FileVersion, error) {
	return r.versions[fileID], nil
}

type fakeHashIndex struct {
	entries map[string][]string
	err     error
}

func (i *fakeHashIndex) Upsert(_ context.Context, digest, fileID string) error {
	if i.entries == nil {
		i.entries = make(map[string][]string)
	}
	i.entries[digest] = append(i.entries[digest], fileID)
	return i.err
}

func (i *fakeHashIndex) Lookup(_ context.Context, digest string) ([]string, error) {
	return i.entries[digest], i.err
}

type fakeSigner struct {
	url string
	err error

	lastObject string
}

func (s *fakeSigner) PresignedURL(_ context.Context, _, objectName string, _ time.Duration) (string, error) {
	s.lastObject = objectName
	return s.url, s.err
}

type fakeRemover struct {
	removed []string
	err     error
}

func (r *fakeRemover) Remove(_ context.Context, fileID string) error {
	r.removed = append(r.removed, fileID)
	return r.err
}

type fakeObjectStore struct {
	content string
	err     error
}

func (s *fakeObjectStore) Upload(_ context.Context, _, objectName string, reader io.Reader, _ int64, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, reader)
	return objectName, s.err
}

func (s *fakeObjectStore) Download(_ context.Context, _, _ string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.content)), nil
}

type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) ExtractText(_ context.Context, reader io.Reader, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, reader)
	return buf.String(), nil
}

type fakeProvider struct {
	name       string
	extraction *pipeline.Extraction
	err        error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Extract(context.Context, pipeline.ExtractionRequest) (*pipeline.Extraction, error) {
	return p.extraction, p.err
}

type fakeFactory struct {
	provider pipeline.AIProvider
}

func (f *fakeFactory) Provider() pipeline.AIProvider { return f.provider }

type fakeSearchIndex struct {
	docs map[string]model.EsFileDocument
	err  error
}

func (s *fakeSearchIndex) Index(_ context.Context, doc model.EsFileDocument) error {
	if s.err != nil {
		return s.err
	}
	if s.docs == nil {
		s.docs = make(map[string]model.EsFileDocument)
	}
	s.docs[doc.FileID] = doc
	return nil
}

func (s *fakeSearchIndex) Update(ctx context.Context, doc model.EsFileDocument) error {
	return s.Index(ctx, doc)
}

var errBoom = errors.New("boom")
