package types

import (
	"errors"
	"fmt"
	"strings"

	"study-agents/api/internal/llm"
	"study-agents/api/internal/util"
)

type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
	KindVideo Kind = "video"
)

var ErrEmptyInput = errors.New("empty input")

// PipelineRequest is raw input from a front-end, either media bytes or text, plus
// optional auxiliary text (OCR output, notes) that is appended, never substituted.
type PipelineRequest struct {
	Kind          Kind   `json:"kind"`
	DataBase64    string `json:"data_base64,omitempty"`
	MIMEType      string `json:"mime_type,omitempty"`
	Content       string `json:"content,omitempty"`
	AuxiliaryText string `json:"auxiliary_text,omitempty"`

	// Data lets in-process callers skip base64.
	Data []byte `json:"-"`
}

func ImageRequest(data []byte, mime string) PipelineRequest {
	return PipelineRequest{Kind: KindImage, Data: data, MIMEType: mime}
}

func TextRequest(content string) PipelineRequest {
	return PipelineRequest{Kind: KindText, Content: content}
}

// Parts converts the request to provider parts: primary content first, then the
// auxiliary text.
func (r PipelineRequest) Parts() ([]llm.Part, error) {
	var parts []llm.Part
	switch r.Kind {
	case KindImage, KindVideo:
		data, hint := r.Data, ""
		if len(data) == 0 {
			var err error
			data, hint, err = util.DecodeBase64MaybeDataURL(r.DataBase64)
			if err != nil {
				return nil, fmt.Errorf("bad data_base64: %w", err)
			}
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s request: %w", r.Kind, ErrEmptyInput)
		}
		mime := util.PickMIME(r.MIMEType, hint, data)
		if r.Kind == KindVideo && !util.IsVideoMIME(mime) {
			return nil, fmt.Errorf("video request: unsupported mime %q", mime)
		}
		parts = append(parts, llm.Blob(mime, data))
	case KindText, "":
		if strings.TrimSpace(r.Content) == "" {
			return nil, fmt.Errorf("text request: %w", ErrEmptyInput)
		}
		parts = append(parts, llm.Text(r.Content))
	default:
		return nil, fmt.Errorf("unknown request kind %q", r.Kind)
	}

	if aux := strings.TrimSpace(r.AuxiliaryText); aux != "" {
		parts = append(parts, llm.Text("Additional extracted context:\n"+aux))
	}
	return parts, nil
}

// IsMedia reports whether the request carries image or video bytes.
func (r PipelineRequest) IsMedia() bool {
	return r.Kind == KindImage || r.Kind == KindVideo
}
