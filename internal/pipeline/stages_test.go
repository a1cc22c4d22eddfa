package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silo-go/internal/config"
	"silo-go/internal/model"
)

// ---- 测试用协作方假实现 ----

type fakeScanner struct {
	result *model.ScanResult
	err    error
}

func (s *fakeScanner) Scan(_ context.Context, reader io.Reader, _ string) (*model.ScanResult, error) {
	// 扫描会消费整个文件流
	_, _ = io.Copy(io.Discard, reader)
	return s.result, s.err
}

type fakeStore struct {
	objects map[string][]byte
	err     error
}

func (s *fakeStore) Upload(_ context.Context, tenantID, objectName string, reader io.Reader, _ int64, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[tenantID+"/"+objectName] = data
	return fmt.Sprintf("silo-%s/%s", tenantID, objectName), nil
}

func (s *fakeStore) Download(_ context.Context, tenantID, objectName string) (io.ReadCloser, error) {
	data, ok := s.objects[tenantID+"/"+objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeSearch struct {
	docs map[string]model.EsFileDocument
	err  error
}

func (s *fakeSearch) Index(_ context.Context, doc model.EsFileDocument) error {
	if s.err != nil {
		return s.err
	}
	if s.docs == nil {
		s.docs = make(map[string]model.EsFileDocument)
	}
	s.docs[doc.FileID] = doc
	return nil
}

func (s *fakeSearch) Update(ctx context.Context, doc model.EsFileDocument) error {
	return s.Index(ctx, doc)
}

type fakeHashIndex struct {
	entries map[string][]string
	err     error
}

func (i *fakeHashIndex) Upsert(_ context.Context, digest, fileID string) error {
	if i.err != nil {
		return i.err
	}
	if i.entries == nil {
		i.entries = make(map[string][]string)
	}
	i.entries[digest] = append(i.entries[digest], fileID)
	return nil
}

func (i *fakeHashIndex) Lookup(_ context.Context, digest string) ([]string, error) {
	return i.entries[digest], i.err
}

// fakeVersions 复刻版本仓库的分配规则：按 (租户, 逻辑路径) 递增计数。
type fakeVersions struct {
	counters map[string]int
	err      error
}

func (v *fakeVersions) CreateVersion(_ context.Context, record *model.FileRecord, description, versionType string) (*model.FileVersion, error) {
	if v.err != nil {
		return nil, v.err
	}
	if v.counters == nil {
		v.counters = make(map[string]int)
	}
	key := record.TenantID + "/" + record.LogicalPath()
	v.counters[key]++
	return &model.FileVersion{
		FileID:            record.ID,
		TenantID:          record.TenantID,
		Path:              record.LogicalPath(),
		StoragePath:       record.StoragePath,
		Checksum:          record.Checksum,
		VersionNumber:     v.counters[key],
		VersionType:       versionType,
		ChangeDescription: description,
	}, nil
}

type fakeProvider struct {
	name       string
	extraction *Extraction
	err        error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Extract(context.Context, ExtractionRequest) (*Extraction, error) {
	return p.extraction, p.err
}

type fakeFactory struct {
	provider AIProvider
}

func (f *fakeFactory) Provider() AIProvider { return f.provider }

type fakeThumbnailer struct {
	supported bool
	data      []byte
	err       error
}

func (t *fakeThumbnailer) Supports(string) bool { return t.supported }

func (t *fakeThumbnailer) Generate(io.Reader, string) ([]byte, string, error) {
	return t.data, "image/png", t.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (e *fakeExtractor) ExtractText(context.Context, io.Reader, string) (string, error) {
	return e.text, e.err
}

func cleanScan() *model.ScanResult {
	return &model.ScanResult{Clean: true, ScannerName: "clamav", ScannerVersion: "1.3", ScannedAt: time.Now()}
}

// ---- 单阶段行为 ----

const helloWorldSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHashingStageComputesDigestAndResetsStream(t *testing.T) {
	ec := NewExecutionContext(
		&model.FileRecord{ID: "f1", FileName: "a.txt"},
		bytes.NewReader([]byte("hello world")), "acme")

	res := NewHashingStage().Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, helloWorldSHA256, ec.Record.Checksum)
	digest, ok := ec.ScratchString(ScratchContentHash)
	require.True(t, ok)
	assert.Equal(t, helloWorldSHA256, digest)

	// 流必须已重置到起始位置，后续阶段可以完整重读
	rest, err := io.ReadAll(ec.Stream)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(rest))
}

func TestHashingStageIsDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		ec := NewExecutionContext(&model.FileRecord{ID: "f1"}, bytes.NewReader([]byte("hello world")), "acme")
		res := NewHashingStage().Run(context.Background(), ec)
		require.True(t, res.Success)
		assert.Equal(t, helloWorldSHA256, ec.Record.Checksum)
		assert.Len(t, ec.Record.Checksum, 64)
	}
}

func TestHashIndexStageRequiresDigest(t *testing.T) {
	idx := &fakeHashIndex{}
	ec := NewExecutionContext(&model.FileRecord{ID: "f1"}, bytes.NewReader(nil), "acme")

	res := NewHashIndexStage(idx).Run(context.Background(), ec)
	assert.False(t, res.Success)

	ec.SetScratch(ScratchContentHash, "abc123")
	res = NewHashIndexStage(idx).Run(context.Background(), ec)
	require.True(t, res.Success)
	assert.Equal(t, []string{"f1"}, idx.entries["abc123"])
}

func TestScanStageQuarantinesThreat(t *testing.T) {
	scan := &fakeScanner{result: &model.ScanResult{Clean: false, ThreatName: "EICAR-Test", ScannerName: "clamav"}}
	ec := NewExecutionContext(&model.FileRecord{ID: "f1", FileName: "evil.exe"}, bytes.NewReader([]byte("x")), "acme")

	res := NewScanStage(scan).Run(context.Background(), ec)

	require.False(t, res.Success)
	assert.Equal(t, model.StatusQuarantined, ec.Record.Status)
	require.NotNil(t, ec.Record.ScanResult)
	assert.Equal(t, "EICAR-Test", ec.Record.ScanResult.ThreatName)
	assert.Equal(t, "EICAR-Test", res.Metadata["threat"])
}

func TestScanStageInfraFailureSetsErrorStatus(t *testing.T) {
	scan := &fakeScanner{err: errors.New("connection refused")}
	ec := NewExecutionContext(&model.FileRecord{ID: "f1"}, bytes.NewReader([]byte("x")), "acme")

	res := NewScanStage(scan).Run(context.Background(), ec)

	require.False(t, res.Success)
	// 扫描服务不可达时不放行文件
	assert.Equal(t, model.StatusError, ec.Record.Status)
	assert.Nil(t, ec.Record.ScanResult)
}

func TestScanStageCleanAdvancesToProcessing(t *testing.T) {
	ec := NewExecutionContext(&model.FileRecord{ID: "f1"}, bytes.NewReader([]byte("x")), "acme")

	res := NewScanStage(&fakeScanner{result: cleanScan()}).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, model.StatusProcessing, ec.Record.Status)
}

func TestStoreStageMarksRecordStored(t *testing.T) {
	store := &fakeStore{}
	record := &model.FileRecord{ID: "f1", FileName: "a.txt", Status: model.StatusProcessing, Size: 11}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("hello world")), "acme")

	res := NewStoreStage(store).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, model.StatusIndexed, record.Status)
	assert.Equal(t, "silo-acme/files/f1/a.txt", record.StoragePath)
	require.NotNil(t, record.ProcessedAt)
	assert.Equal(t, []byte("hello world"), store.objects["acme/files/f1/a.txt"])
}

func TestStoreStageFailureKeepsStatus(t *testing.T) {
	store := &fakeStore{err: errors.New("minio down")}
	record := &model.FileRecord{ID: "f1", FileName: "a.txt", Status: model.StatusProcessing}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("x")), "acme")

	res := NewStoreStage(store).Run(context.Background(), ec)

	require.False(t, res.Success)
	assert.Equal(t, model.StatusProcessing, record.Status)
	assert.Empty(t, record.StoragePath)
	assert.Nil(t, record.ProcessedAt)
}

func TestThumbnailStageSkipsUnsupportedType(t *testing.T) {
	ec := NewExecutionContext(&model.FileRecord{ID: "f1", MimeType: "application/pdf"}, bytes.NewReader([]byte("x")), "acme")

	res := NewThumbnailStage(&fakeThumbnailer{supported: false}, &fakeStore{}).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, true, res.Metadata["skipped"])
	assert.Empty(t, ec.Record.ThumbnailPath)
}

func TestThumbnailStageUploadsDerivative(t *testing.T) {
	store := &fakeStore{}
	thumb := &fakeThumbnailer{supported: true, data: []byte("png-bytes")}
	ec := NewExecutionContext(&model.FileRecord{ID: "f1", MimeType: "image/png"}, bytes.NewReader([]byte("x")), "acme")

	res := NewThumbnailStage(thumb, store).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, "silo-acme/thumbs/f1.png", ec.Record.ThumbnailPath)
	assert.Equal(t, []byte("png-bytes"), store.objects["acme/thumbs/f1.png"])
}

func TestAIStageProviderUnavailable(t *testing.T) {
	ec := NewExecutionContext(&model.FileRecord{ID: "f1"}, bytes.NewReader([]byte("x")), "acme")

	res := NewAIStage(&fakeFactory{}, nil, 0.5, 0).Run(context.Background(), ec)

	// AI 不可用是软成功，同时标记需要异步补充提取
	require.True(t, res.Success)
	_, flagged := ec.Scratch(ScratchAIUnavailable)
	assert.True(t, flagged)
}

func TestAIStageProviderErrorIsSoft(t *testing.T) {
	factory := &fakeFactory{provider: &fakeProvider{name: "openai", err: errors.New("rate limited")}}
	ec := NewExecutionContext(&model.FileRecord{ID: "f1"}, bytes.NewReader([]byte("x")), "acme")

	res := NewAIStage(factory, nil, 0.5, 0).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, true, res.Metadata["unavailable"])
	_, flagged := ec.Scratch(ScratchAIUnavailable)
	assert.True(t, flagged)
}

func TestAIStageMergesExtraction(t *testing.T) {
	factory := &fakeFactory{provider: &fakeProvider{
		name: "openai",
		extraction: &Extraction{
			Success:     true,
			Category:    "report",
			Description: "季度财务报告",
			Tags:        []string{"finance", "q3"},
			Fields:      map[string]interface{}{"language": "zh"},
			Confidence:  0.92,
		},
	}}
	record := &model.FileRecord{ID: "f1", FileName: "report.txt", ExtractedText: "营收摘要"}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("x")), "acme")

	res := NewAIStage(factory, &fakeExtractor{text: "ignored"}, 0.5, 0).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, []string{"report"}, record.Categories)
	assert.ElementsMatch(t, []string{"finance", "q3"}, record.Tags)
	assert.Equal(t, "openai", record.Metadata["ai.provider"])
	assert.Equal(t, "zh", record.Metadata["ai.openai.language"])
}

func TestMergeExtractionIsAdditive(t *testing.T) {
	record := &model.FileRecord{ID: "f1"}
	record.SetMetadata("ai.provider", "existing")
	record.AddTags("manual")

	MergeExtraction(record, "openai", &Extraction{
		Success:    true,
		Category:   "doc",
		Tags:       []string{"auto", "manual"},
		Confidence: 0.9,
	}, 0.5)

	// 已有键从不被覆盖，标签合并去重
	assert.Equal(t, "existing", record.Metadata["ai.provider"])
	assert.Equal(t, []string{"manual", "auto"}, record.Tags)
	assert.Equal(t, []string{"doc"}, record.Categories)
}

func TestMergeExtractionLowConfidenceGatesClassification(t *testing.T) {
	record := &model.FileRecord{ID: "f1"}

	MergeExtraction(record, "openai", &Extraction{
		Success:    true,
		Category:   "doc",
		Tags:       []string{"auto"},
		Confidence: 0.3,
	}, 0.6)

	assert.Empty(t, record.Categories)
	assert.Empty(t, record.Tags)
	assert.Equal(t, true, record.Metadata["ai.low_confidence"])
	assert.Equal(t, 0.3, record.Metadata["ai.confidence"])
}

func TestVersionStageAssignsVersionNumber(t *testing.T) {
	versions := &fakeVersions{}
	record := &model.FileRecord{ID: "f1", FileName: "a.txt", StoragePath: "silo-acme/files/f1/a.txt"}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("x")), "acme")

	res := NewVersionStage(versions).Run(context.Background(), ec)

	require.True(t, res.Success)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, 1, res.Metadata["versionNumber"])
}

func TestVersionStageIncrementsForSameLogicalPath(t *testing.T) {
	store := &fakeStore{}
	versions := &fakeVersions{}
	stage := NewVersionStage(versions)

	// 同一租户反复上传同名文件：记录 ID 和存储路径每次都不同，
	// 版本号必须沿逻辑路径递增而不是每次都回到 1
	for i, id := range []string{"f1", "f2", "f3"} {
		record := &model.FileRecord{
			ID: id, TenantID: "acme", FileName: "report.pdf", OriginalPath: "report.pdf",
			Status: model.StatusProcessing,
		}
		ec := NewExecutionContext(record, bytes.NewReader([]byte("v")), "acme")

		res := NewStoreStage(store).Run(context.Background(), ec)
		require.True(t, res.Success)
		assert.Equal(t, fmt.Sprintf("silo-acme/files/%s/report.pdf", id), record.StoragePath)

		res = stage.Run(context.Background(), ec)
		require.True(t, res.Success)
		assert.Equal(t, i+1, record.Version)
		assert.Equal(t, i+1, res.Metadata["versionNumber"])
	}

	// 其他路径、其他租户各自独立计数
	other := &model.FileRecord{ID: "f4", TenantID: "acme", FileName: "notes.txt", OriginalPath: "notes.txt"}
	res := stage.Run(context.Background(), NewExecutionContext(other, bytes.NewReader([]byte("v")), "acme"))
	require.True(t, res.Success)
	assert.Equal(t, 1, other.Version)

	foreign := &model.FileRecord{ID: "f5", TenantID: "globex", FileName: "report.pdf", OriginalPath: "report.pdf"}
	res = stage.Run(context.Background(), NewExecutionContext(foreign, bytes.NewReader([]byte("v")), "globex"))
	require.True(t, res.Success)
	assert.Equal(t, 1, foreign.Version)
}

// ---- 完整管道场景 ----

func fullPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		ContinueOnStageFailure: true,
		CriticalStages:         []string{StageScan, StageStore},
		NonCriticalStages:      []string{StageHashIndex, StageThumbnail, StageAI},
	}
}

func newFullOrchestrator(cfg config.PipelineConfig, scan Scanner, store ObjectStore, search SearchIndex,
	hashIdx HashIndex, versions VersionCreator, factory AIFactory) *Orchestrator {
	return NewOrchestrator(cfg,
		NewHashingStage(),
		NewHashIndexStage(hashIdx),
		NewScanStage(scan),
		NewStoreStage(store),
		NewThumbnailStage(&fakeThumbnailer{supported: false}, store),
		NewAIStage(factory, nil, 0.5, 0),
		NewIndexStage(search),
		NewVersionStage(versions),
	)
}

func TestPipelineCleanFileEndToEnd(t *testing.T) {
	store := &fakeStore{}
	search := &fakeSearch{}
	hashIdx := &fakeHashIndex{}
	versions := &fakeVersions{}
	factory := &fakeFactory{provider: &fakeProvider{
		name:       "openai",
		extraction: &Extraction{Success: true, Category: "note", Confidence: 0.9},
	}}

	o := newFullOrchestrator(fullPipelineConfig(), &fakeScanner{result: cleanScan()}, store, search, hashIdx, versions, factory)

	record := &model.FileRecord{ID: "f1", TenantID: "acme", FileName: "hello.txt", MimeType: "text/plain", Size: 11, Status: model.StatusPending}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("hello world")), "acme")

	result := o.Execute(context.Background(), ec)

	require.True(t, result.Success, "failed stages: %v", result.FailedStages())
	assert.Len(t, result.Stages, 8)

	assert.Equal(t, model.StatusIndexed, record.Status)
	assert.Equal(t, helloWorldSHA256, record.Checksum)
	require.NotNil(t, record.ProcessedAt)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, []string{"note"}, record.Categories)

	// 文件字节在对象存储中，摘要索引与搜索索引都已登记
	assert.Equal(t, []byte("hello world"), store.objects["acme/files/f1/hello.txt"])
	assert.Equal(t, []string{"f1"}, hashIdx.entries[helloWorldSHA256])
	doc, ok := search.docs["f1"]
	require.True(t, ok)
	assert.Equal(t, helloWorldSHA256, doc.Checksum)
}

func TestPipelineThreatQuarantinesAndAborts(t *testing.T) {
	store := &fakeStore{}
	search := &fakeSearch{}
	scan := &fakeScanner{result: &model.ScanResult{Clean: false, ThreatName: "EICAR-Test", ScannerName: "clamav"}}

	o := newFullOrchestrator(fullPipelineConfig(), scan, store, search, &fakeHashIndex{}, &fakeVersions{}, &fakeFactory{})

	record := &model.FileRecord{ID: "f2", TenantID: "acme", FileName: "evil.bin", Status: model.StatusPending}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("malicious")), "acme")

	result := o.Execute(context.Background(), ec)

	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, model.StatusQuarantined, record.Status)

	// 关键的扫描阶段失败后，文件字节绝不进入对象存储或搜索索引
	assert.Empty(t, store.objects)
	assert.Empty(t, search.docs)
	assert.Empty(t, record.StoragePath)
	assert.Nil(t, record.ProcessedAt)
}

func TestPipelineAIUnavailableStillIndexes(t *testing.T) {
	store := &fakeStore{}
	search := &fakeSearch{}

	o := newFullOrchestrator(fullPipelineConfig(), &fakeScanner{result: cleanScan()}, store, search,
		&fakeHashIndex{}, &fakeVersions{}, &fakeFactory{})

	record := &model.FileRecord{ID: "f3", TenantID: "acme", FileName: "a.txt", MimeType: "text/plain", Status: model.StatusPending}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("hello world")), "acme")

	result := o.Execute(context.Background(), ec)

	// AI 缺席不阻断管道：整体成功，搜索索引照常写入
	require.True(t, result.Success)
	assert.Equal(t, model.StatusIndexed, record.Status)
	_, ok := search.docs["f3"]
	assert.True(t, ok)
	_, flagged := ec.Scratch(ScratchAIUnavailable)
	assert.True(t, flagged)
}

func TestPipelineScannerOutageFailsClosed(t *testing.T) {
	store := &fakeStore{}
	scan := &fakeScanner{err: errors.New("scanner unreachable")}

	o := newFullOrchestrator(fullPipelineConfig(), scan, store, &fakeSearch{}, &fakeHashIndex{}, &fakeVersions{}, &fakeFactory{})

	record := &model.FileRecord{ID: "f4", TenantID: "acme", FileName: "a.txt", Status: model.StatusPending}
	ec := NewExecutionContext(record, bytes.NewReader([]byte("hello")), "acme")

	result := o.Execute(context.Background(), ec)

	require.False(t, result.Success)
	assert.Equal(t, model.StatusError, record.Status)
	assert.Empty(t, store.objects)
}
