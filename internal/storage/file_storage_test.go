// internal/storage/file_storage_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type sampleDoc struct {
	SchemaVersion int    `json:"schema_version"`
	Name          string `json:"name"`
	Count         int    `json:"count"`
}

func newStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	t.Cleanup(fs.Close)
	return fs
}

func TestJSONRoundTrip(t *testing.T) {
	fs := newStorage(t)

	saved := sampleDoc{SchemaVersion: 1, Name: "测试", Count: 7}
	if err := fs.SaveJSONFile("sessions/s1", "doc.json", saved); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	var loaded sampleDoc
	if err := fs.LoadJSONFile("sessions/s1", "doc.json", &loaded); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if loaded != saved {
		t.Errorf("往返数据不一致: %+v vs %+v", loaded, saved)
	}
}

func TestAtomicSaveLeavesNoTempFile(t *testing.T) {
	fs := newStorage(t)

	if err := fs.SaveTextFile("sessions/s1", "note.txt", []byte("内容")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, "sessions/s1"))
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("不应残留临时文件: %s", entry.Name())
		}
	}

	// 覆盖写入后读到新内容
	fs.SaveTextFile("sessions/s1", "note.txt", []byte("新内容"))
	content, err := fs.LoadTextFile("sessions/s1", "note.txt")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if string(content) != "新内容" {
		t.Errorf("覆盖写入未生效: %q", content)
	}
}

func TestLoadJSONOrDefault(t *testing.T) {
	fs := newStorage(t)

	// 文件缺失：保留默认值，返回 false
	doc := sampleDoc{Name: "默认"}
	if fs.LoadJSONOrDefault("sessions/s1", "missing.json", &doc) {
		t.Error("缺失文件应返回 false")
	}
	if doc.Name != "默认" {
		t.Errorf("缺失文件应保留默认值，得到 %q", doc.Name)
	}

	// 损坏文件：同样保留默认值
	if err := fs.SaveTextFile("sessions/s1", "broken.json", []byte("{not json")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	doc = sampleDoc{Name: "默认"}
	if fs.LoadJSONOrDefault("sessions/s1", "broken.json", &doc) {
		t.Error("损坏文件应返回 false")
	}
	if doc.Name != "默认" {
		t.Errorf("损坏文件应保留默认值，得到 %q", doc.Name)
	}

	// 正常文件：解析并返回 true
	fs.SaveJSONFile("sessions/s1", "ok.json", sampleDoc{Name: "已存档"})
	doc = sampleDoc{Name: "默认"}
	if !fs.LoadJSONOrDefault("sessions/s1", "ok.json", &doc) {
		t.Error("正常文件应返回 true")
	}
	if doc.Name != "已存档" {
		t.Errorf("应读到存档内容，得到 %q", doc.Name)
	}
}

func TestExistenceAndDeletion(t *testing.T) {
	fs := newStorage(t)

	if fs.FileExists("sessions/s1", "doc.json") {
		t.Error("不存在的文件不应报告存在")
	}
	if fs.DirExists("sessions/s1") {
		t.Error("不存在的目录不应报告存在")
	}

	fs.SaveJSONFile("sessions/s1", "doc.json", sampleDoc{Name: "x"})

	if !fs.FileExists("sessions/s1", "doc.json") || !fs.DirExists("sessions/s1") {
		t.Error("保存后文件与目录都应存在")
	}

	if err := fs.DeleteFile("sessions/s1", "doc.json"); err != nil {
		t.Fatalf("删除文件失败: %v", err)
	}
	if fs.FileExists("sessions/s1", "doc.json") {
		t.Error("删除后文件不应存在")
	}
	if err := fs.DeleteFile("sessions/s1", "doc.json"); err == nil {
		t.Error("重复删除应报错")
	}

	fs.SaveJSONFile("sessions/s1", "a.json", sampleDoc{})
	if err := fs.DeleteDir("sessions/s1"); err != nil {
		t.Fatalf("删除目录失败: %v", err)
	}
	if fs.DirExists("sessions/s1") {
		t.Error("删除后目录不应存在")
	}
}

func TestListFilesAndDirs(t *testing.T) {
	fs := newStorage(t)

	fs.SaveJSONFile("sessions/s1", "a.json", sampleDoc{})
	fs.SaveJSONFile("sessions/s1", "b.json", sampleDoc{})
	fs.SaveJSONFile("sessions/s2", "c.json", sampleDoc{})

	files, err := fs.ListFiles("sessions/s1")
	if err != nil {
		t.Fatalf("列举文件失败: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("应列出 2 个文件，得到 %v", files)
	}

	dirs, err := fs.ListDirs("sessions")
	if err != nil {
		t.Fatalf("列举目录失败: %v", err)
	}
	if len(dirs) != 2 {
		t.Errorf("应列出 2 个会话目录，得到 %v", dirs)
	}
}

func TestCacheInvalidationOnSave(t *testing.T) {
	fs := newStorage(t)

	fs.SaveTextFile("sessions/s1", "note.txt", []byte("v1"))
	if content, _ := fs.LoadTextFile("sessions/s1", "note.txt"); string(content) != "v1" {
		t.Fatalf("首次读取应为 v1，得到 %q", content)
	}

	// 再次保存后缓存应失效，读到新版本
	fs.SaveTextFile("sessions/s1", "note.txt", []byte("v2"))
	if content, _ := fs.LoadTextFile("sessions/s1", "note.txt"); string(content) != "v2" {
		t.Errorf("缓存应随写入失效，得到 %q", content)
	}
}
