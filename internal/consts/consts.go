// Package consts defines application-wide constants.
package consts

import "time"

const (
	// ProgressEditInterval is the minimum spacing between byte-progress edits.
	ProgressEditInterval = 10 * time.Second
	// ProgressBarCells is the width of the rendered progress bar.
	ProgressBarCells = 20
	// AudioBitrate is the target bitrate of MP3 transcodes.
	AudioBitrate = "192k"
	// UpdatesTimeout is the long-poll timeout for bot updates, in seconds.
	UpdatesTimeout = 60
	// ActorBuffer is the per-requester event buffer size.
	ActorBuffer = 16
	// ActorIdleTimeout is how long a requester's actor waits for events before it exits.
	ActorIdleTimeout = 30 * time.Minute
)

// Bot commands.
const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandBatch  = "batch"
	CommandCancel = "cancel"
)

// Button tokens. The prefix before ':' names the question being answered.
const (
	TokenSitePublic         = "site:public"
	TokenSitePrivate        = "site:private"
	TokenFormatRaw          = "format:raw"
	TokenFormatMP3          = "format:mp3"
	TokenDeliveryArchive    = "mode:archive"
	TokenDeliveryIndividual = "mode:individual"
)

// User-visible messages.
const (
	MsgWelcome = "Hello! I can download and convert files for you.\n" +
		"Send /batch, then paste links (one per line) or upload a .txt file listing them."
	MsgHelp = "/batch - start a new batch\n/cancel - forget the current batch\n" +
		"Links can be sent as text or as a .txt file. Private sites need a cookies file."
	MsgSendLinks        = "Send the links, one per line, or upload a .txt file with them."
	MsgAskSiteType      = "Are these links from a public or a private site?"
	MsgAskCredentials   = "Upload the cookies file for the private site."
	MsgAskFormat        = "Which format do you want?"
	MsgAskDeliveryMode  = "How should the files be delivered?"
	MsgInvalidState     = "That input was not expected now. The session was reset, send /batch to start over."
	MsgBusy             = "A batch is still processing. Wait until it finishes."
	MsgCancelled        = "Cancelled."
	MsgNoLinks          = "No links found in that message."
	MsgFetchFailed      = "Could not receive that file. Please send it again."
	MsgStarting         = "Starting batch of %d links..."
	MsgDownloadStatus   = "Downloading"
	MsgUploadStatus     = "Uploading"
	MsgArchiving        = "Creating archive..."
	MsgToolMissing      = "The download tool is not available on the server. Batch aborted."
	MsgNothingDelivered = "No files were produced."
	MsgSummary          = "Done in %s.\nDownloaded: %d/%d, failed: %d, skipped: %d.\nSent: %d file(s), %s; failed to send: %d."
	MsgUnauthorized     = "not allowed"
)

// Button labels.
const (
	LabelPublic     = "Public site"
	LabelPrivate    = "Private site"
	LabelVideo      = "Video"
	LabelMP3        = "MP3"
	LabelArchive    = "Zip archive"
	LabelIndividual = "One by one"
)

// Tool identifiers used in logs and metrics.
const (
	ToolYTdlp = "yt-dlp"
)

// Directory and file names.
const (
	ExtractDirName = ".extract"
	ThumbSuffix    = ".thumb.jpg"
	ArchiveExt     = ".zip"
	LockFileName   = ".bulkdl.lock"
)
