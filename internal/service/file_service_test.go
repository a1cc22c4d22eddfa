package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silo-go/internal/model"
)

func TestGenerateDownloadURL(t *testing.T) {
	repo := newFakeFileRepo(storedRecord())
	signer := &fakeSigner{url: "https://minio/presigned"}
	svc := NewFileService(repo, &fakeVersionRepo{}, &fakeHashIndex{}, signer, &fakeRemover{})

	url, err := svc.GenerateDownloadURL(context.Background(), "acme", "f1")
	require.NoError(t, err)
	assert.Equal(t, "https://minio/presigned", url)
	assert.Equal(t, "files/f1/report.txt", signer.lastObject)
}

func TestGenerateDownloadURLRequiresStoredFile(t *testing.T) {
	record := storedRecord()
	record.StoragePath = ""
	repo := newFakeFileRepo(record)
	svc := NewFileService(repo, &fakeVersionRepo{}, &fakeHashIndex{}, &fakeSigner{}, &fakeRemover{})

	_, err := svc.GenerateDownloadURL(context.Background(), "acme", "f1")
	assert.Error(t, err)
}

func TestDeleteFileRemovesSearchDocument(t *testing.T) {
	repo := newFakeFileRepo(storedRecord())
	remover := &fakeRemover{}
	svc := NewFileService(repo, &fakeVersionRepo{}, &fakeHashIndex{}, &fakeSigner{}, remover)

	require.NoError(t, svc.DeleteFile(context.Background(), "acme", "f1"))

	assert.Equal(t, []string{"f1"}, remover.removed)
	_, err := repo.FindByID("acme", "f1")
	assert.Error(t, err)
}

func TestDeleteFileToleratesIndexFailure(t *testing.T) {
	repo := newFakeFileRepo(storedRecord())
	svc := NewFileService(repo, &fakeVersionRepo{}, &fakeHashIndex{}, &fakeSigner{}, &fakeRemover{err: errBoom})

	// 记录删除成功即视为删除成功，索引清理失败只记录
	assert.NoError(t, svc.DeleteFile(context.Background(), "acme", "f1"))
}

func TestDeleteFileUnknownID(t *testing.T) {
	svc := NewFileService(newFakeFileRepo(), &fakeVersionRepo{}, &fakeHashIndex{}, &fakeSigner{}, &fakeRemover{})
	assert.Error(t, svc.DeleteFile(context.Background(), "acme", "missing"))
}

func TestArchiveFile(t *testing.T) {
	repo := newFakeFileRepo(storedRecord())
	svc := NewFileService(repo, &fakeVersionRepo{}, &fakeHashIndex{}, &fakeSigner{}, &fakeRemover{})

	require.NoError(t, svc.ArchiveFile("acme", "f1"))
	assert.Equal(t, model.StatusArchived, repo.records["f1"].Status)
}

func TestFindDuplicatesFiltersTenant(t *testing.T) {
	const digest = "abc123"
	mine := storedRecord()
	mine.Checksum = digest
	sameTenant := &model.FileRecord{ID: "f2", TenantID: "acme", FileName: "copy.txt", Checksum: digest}
	otherTenant := &model.FileRecord{ID: "f3", TenantID: "globex", FileName: "other.txt", Checksum: digest}

	repo := newFakeFileRepo(mine, sameTenant, otherTenant)
	hashIdx := &fakeHashIndex{entries: map[string][]string{digest: {"f1", "f2", "f3"}}}
	svc := NewFileService(repo, &fakeVersionRepo{}, hashIdx, &fakeSigner{}, &fakeRemover{})

	duplicates, err := svc.FindDuplicates(context.Background(), "acme", digest)
	require.NoError(t, err)

	// 摘要索引是全局的：绝不跨租户返回
	require.Len(t, duplicates, 2)
	assert.Equal(t, "f1", duplicates[0].ID)
	assert.Equal(t, "f2", duplicates[1].ID)
}

func TestFindDuplicatesUnknownChecksum(t *testing.T) {
	svc := NewFileService(newFakeFileRepo(storedRecord()), &fakeVersionRepo{}, &fakeHashIndex{}, &fakeSigner{}, &fakeRemover{})

	duplicates, err := svc.FindDuplicates(context.Background(), "acme", "deadbeef")
	require.NoError(t, err)
	assert.Empty(t, duplicates)

	duplicates, err = svc.FindDuplicates(context.Background(), "acme", "")
	require.NoError(t, err)
	assert.Empty(t, duplicates)
}

func TestListVersions(t *testing.T) {
	repo := newFakeFileRepo(storedRecord())
	versionRepo := &fakeVersionRepo{}
	_, err := versionRepo.CreateVersion(context.Background(), repo.records["f1"], "上传 report.txt", "upload")
	require.NoError(t, err)

	svc := NewFileService(repo, versionRepo, &fakeHashIndex{}, &fakeSigner{}, &fakeRemover{})

	versions, err := svc.ListVersions("acme", "f1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)

	_, err = svc.ListVersions("globex", "f1")
	assert.Error(t, err)
}
