package core

// ArtifactKind identifies what a produced file is. Kinds are mutually
// exclusive per artifact.
type ArtifactKind string

const (
	// ArtifactOriginalSubs is the source-language subtitle file.
	ArtifactOriginalSubs ArtifactKind = "original_subs"

	// ArtifactTranslatedSubs is the target-language subtitle file.
	ArtifactTranslatedSubs ArtifactKind = "translated_subs"

	// ArtifactSubtitledVideo is the video with burned subtitles (and
	// optional watermark).
	ArtifactSubtitledVideo ArtifactKind = "subtitled_video"

	// ArtifactRawDownload is the acquired media file of a download-only
	// task.
	ArtifactRawDownload ArtifactKind = "raw_download"
)

// Artifact is a finished file awaiting publication. Path is absolute and
// inside the task workspace until the publish stage moves it to the
// artifact store.
type Artifact struct {
	// Kind identifies the content.
	Kind ArtifactKind

	// Path is the absolute workspace path.
	Path string

	// Filename is the published name, already sanitized.
	Filename string

	// CreatedBy is the stage ID that produced this artifact.
	CreatedBy string

	// SizeBytes is the file size at creation time.
	SizeBytes int64
}
