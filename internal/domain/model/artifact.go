package model

// FileArtifact describes one produced output file.
type FileArtifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// JobResult is the durable outcome of a completed job.
type JobResult struct {
	Files       []FileArtifact `json:"files"`
	DownloadURL string         `json:"download_url,omitempty"`
	FolderPath  string         `json:"folder_path,omitempty"`
}
