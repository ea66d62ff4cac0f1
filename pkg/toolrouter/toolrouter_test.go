package toolrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute_CountFilesWithExtension(t *testing.T) {
	tool, params := Route("how many PDF files do I have?", "")
	assert.Equal(t, "count_files", tool)
	assert.Equal(t, "pdf", params["extension"])
}

func TestRoute_CountIntentOverridesKeywords(t *testing.T) {
	tool, params := Route("tell me about my files", "count")
	assert.Equal(t, "count_files", tool)
	assert.Equal(t, "", params["extension"])
}

func TestRoute_DiskUsage(t *testing.T) {
	tool, params := Route("what's my total disk usage overview", "")
	assert.Equal(t, "disk_usage", tool)
	assert.Empty(t, params)
}

func TestRoute_FolderStatsBySize(t *testing.T) {
	tool, params := Route("what are my biggest folders", "")
	assert.Equal(t, "folder_stats", tool)
	assert.Equal(t, "size", params["sort_by"])
}

func TestRoute_DirectoryTree(t *testing.T) {
	tool, _ := Route("show me the folder structure", "")
	assert.Equal(t, "directory_tree", tool)
}

func TestRoute_FileMetadataWithExtension(t *testing.T) {
	tool, params := Route("how big is report.pdf", "")
	assert.Equal(t, "file_metadata", tool)
	assert.Equal(t, "report.pdf", params["name_hint"])
}

func TestRoute_FileMetadataFallbackToken(t *testing.T) {
	tool, params := Route("how old is my resume", "")
	assert.Equal(t, "file_metadata", tool)
	assert.Equal(t, "resume", params["name_hint"])
}

func TestRoute_DefaultsToSemanticSearch(t *testing.T) {
	tool, params := Route("what did I write about the budget meeting", "")
	assert.Equal(t, "semantic_search", tool)
	assert.Equal(t, "what did I write about the budget meeting", params["query"])
}

func TestRoute_MetadataIntentOverridesKeywords(t *testing.T) {
	tool, _ := Route("tell me something", "metadata")
	assert.Equal(t, "folder_stats", tool)
}

func TestDetectExtension(t *testing.T) {
	assert.Equal(t, "pdf", DetectExtension("find all my PDFs"))
	assert.Equal(t, "md", DetectExtension("any markdown notes?"))
	assert.Equal(t, "", DetectExtension("nothing relevant here"))
}
