package options

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/hybrid"
)

// ProgressCallback defines the signature for progress update functions.
type ProgressCallback func(
	currentFilename string,
	bytesTransferred int64,
	totalBytes int64,
	currentFileNumber int,
	totalFileCount int,
)

// Options represents the options for building an image
type Options struct {
	VolumeIdentifier      string
	SystemIdentifier      string
	PublisherIdentifier   string
	ApplicationIdentifier string
	RecordingTime         time.Time
	GUIDSource            hybrid.GUIDSource
	ESPLabel              string
	Logger                logr.Logger
	ProgressCallback      ProgressCallback
}

// Option represents a function that modifies the Options
type Option func(*Options)

// Defaults returns the options every build starts from. Dates are left unspecified and GUIDs are random.
func Defaults() *Options {
	return &Options{
		VolumeIdentifier:      consts.DEFAULT_VOLUME_IDENTIFIER,
		ApplicationIdentifier: consts.DEFAULT_APPLICATION_IDENTIFIER,
		GUIDSource:            hybrid.RandomGUIDs(),
		ESPLabel:              consts.DEFAULT_ESP_LABEL,
	}
}

// Apply returns Defaults modified by opts.
func Apply(opts ...Option) *Options {
	o := Defaults()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithProgress sets a progress callback function that will be called while file data is copied into the image.
// Parameters:
// - currentFilename: The image path of the file currently being copied.
// - bytesTransferred: The number of bytes copied so far for the current file.
// - totalBytes: The size of the current file.
// - currentFileNumber: The index of the current file being copied.
// - totalFileCount: The total number of files to be copied.
func WithProgress(callback ProgressCallback) Option {
	return func(o *Options) {
		o.ProgressCallback = callback
	}
}

// WithLogger sets the Logger used during the build
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithVolumeIdentifier sets the 32 character volume label of the Primary Volume Descriptor
func WithVolumeIdentifier(id string) Option {
	return func(o *Options) {
		o.VolumeIdentifier = id
	}
}

// WithSystemIdentifier sets the system identifier of the Primary Volume Descriptor
func WithSystemIdentifier(id string) Option {
	return func(o *Options) {
		o.SystemIdentifier = id
	}
}

// WithPublisherIdentifier sets the publisher identifier of the Primary Volume Descriptor
func WithPublisherIdentifier(id string) Option {
	return func(o *Options) {
		o.PublisherIdentifier = id
	}
}

// WithApplicationIdentifier sets the application identifier of the Primary Volume Descriptor
func WithApplicationIdentifier(id string) Option {
	return func(o *Options) {
		o.ApplicationIdentifier = id
	}
}

// WithRecordingTime stamps the volume descriptors and every directory record with t. The zero time, the default,
// writes "not specified" dates so that identical inputs produce identical images.
func WithRecordingTime(t time.Time) Option {
	return func(o *Options) {
		o.RecordingTime = t
	}
}

// WithGUIDSource sets the generator of the GPT disk and partition GUIDs. Use hybrid.SeededGUIDs for reproducible
// hybrid images.
func WithGUIDSource(src hybrid.GUIDSource) Option {
	return func(o *Options) {
		o.GUIDSource = src
	}
}

// WithESPLabel sets the FAT volume label of the generated EFI System Partition
func WithESPLabel(label string) Option {
	return func(o *Options) {
		o.ESPLabel = label
	}
}
