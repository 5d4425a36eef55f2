// Package codec turns HL7v2 text into message trees and back.
//
// PipeParser handles the classic ER7 (pipe and hat) encoding; the xmlcodec
// subpackage handles HL7 v2.xml. Both pick the message structure from MSH
// before decoding and fall back to a generic structure when the schema does
// not know the message.
package codec

import (
	"errors"
	"strings"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// Encoding names.
const (
	EncodingER7 = "VB"
	EncodingXML = "XML"
)

// Codec decodes and encodes one wire format.
type Codec interface {
	Encoding() string
	Parse(text string) (*model.Message, error)
	Encode(msg *model.Message) (string, error)
}

// DetectEncoding returns EncodingER7 or EncodingXML for text, or "" when the
// text is neither.
func DetectEncoding(text string) string {
	t := strings.TrimLeft(text, " \t\r\n\ufeff\x0b")
	switch {
	case strings.HasPrefix(t, "<"):
		return EncodingXML
	case strings.HasPrefix(t, "MSH"), strings.HasPrefix(t, "FHS"), strings.HasPrefix(t, "BHS"):
		if len(t) > 3 {
			return EncodingER7
		}
	}
	return ""
}

// Options configures decoding.
type Options struct {
	// Strict rejects segments the message structure does not declare
	// instead of keeping them as non-standard segments.
	Strict bool

	// DefaultVersion is used when MSH-12 is empty.
	DefaultVersion string

	// Validator is applied to every primitive value as it is decoded.
	Validator model.ValueValidator

	// FailFast turns the first validation failure into a decode error.
	FailFast bool
}

// Option is a functional option for configuring a codec.
type Option func(*Options)

// DefaultOptions returns the default decoding options.
func DefaultOptions() *Options {
	return &Options{
		DefaultVersion: "2.5",
	}
}

// WithStrict sets strict structural placement.
func WithStrict(strict bool) Option {
	return func(o *Options) {
		o.Strict = strict
	}
}

// WithDefaultVersion sets the version used when MSH-12 is empty.
func WithDefaultVersion(version string) Option {
	return func(o *Options) {
		o.DefaultVersion = version
	}
}

// WithValidator sets the primitive value validator.
func WithValidator(v model.ValueValidator) Option {
	return func(o *Options) {
		o.Validator = v
	}
}

// WithFailFast makes validation failures abort decoding.
func WithFailFast(enabled bool) Option {
	return func(o *Options) {
		o.FailFast = enabled
	}
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewMessage creates the empty message a decoder fills for header h. The
// structure comes from MSH-9-3, else from the provider's event map. Unknown
// structures and versions give a generic message unless o.Strict is set.
func NewMessage(p schema.Provider, h Header, o *Options) (*model.Message, error) {
	version := h.Version
	if version == "" {
		version = o.DefaultVersion
	}
	mopts := []model.Option{
		model.WithValidator(o.Validator),
		model.WithFailFast(o.FailFast),
	}

	structure := h.Structure
	if structure == "" {
		structure, _ = p.MessageStructure(version, h.MessageType, h.TriggerEvent)
	}
	if structure != "" {
		msg, err := model.New(p, version, structure, mopts...)
		if err == nil {
			return msg, nil
		}
		if o.Strict {
			return nil, err
		}
		if errors.Is(err, schema.ErrUnknownVersion) {
			logger.Warn("unknown HL7 version %s, decoding %s as a generic message", version, h.Type())
		} else {
			logger.Warn("unknown structure %s for %s, decoding as a generic message", structure, h.Type())
		}
	} else if o.Strict {
		return nil, hl7err.At(
			hl7err.Structural("no message structure for %s", h.Type()),
			hl7err.Location{Version: version, Segment: "MSH", Field: 9},
		)
	}
	return model.NewGeneric(p, version, mopts...), nil
}
