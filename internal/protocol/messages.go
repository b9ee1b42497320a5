// Package protocol defines the message alphabet exchanged between the in-page
// engine and the host orchestrator. Every message is a flat JSON object
// discriminated by its "type" field; unknown types are ignored by both sides.
package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Type discriminates wire messages.
type Type string

// Engine to host.
const (
	TypeTranslateRequest         Type = "TRANSLATE_REQUEST"
	TypeBatchTranslateRequest    Type = "BATCH_TRANSLATE_REQUEST"
	TypeBatchTranslationComplete Type = "BATCH_TRANSLATION_COMPLETE"
	TypePageStateResponse        Type = "PAGE_STATE_RESPONSE"
	TypeJSONDownloadReady        Type = "JSON_DOWNLOAD_READY"
	TypeLayoutErrorDetected      Type = "LAYOUT_ERROR_DETECTED"
	TypeThemeColorDetected       Type = "THEME_COLOR_DETECTED"
	TypeExplainRequest           Type = "EXPLAIN_REQUEST"
	TypeSummarizeRequest         Type = "SUMMARIZE_REQUEST"
	TypeSimplifyRequest          Type = "SIMPLIFY_REQUEST"
	TypeMeaningRequest           Type = "MEANING_REQUEST"
)

// Host to engine.
const (
	TypeTranslationResult     Type = "TRANSLATION_RESULT"
	TypeBatchTranslateResponse Type = "BATCH_TRANSLATE_RESPONSE"
	TypeTriggerBatchTranslate Type = "TRIGGER_BATCH_TRANSLATE"
	TypeToggleMarquee         Type = "TOGGLE_MARQUEE"
	TypeLanguageUpdate        Type = "LANGUAGE_UPDATE"
	TypeRetranslateActive     Type = "RETRANSLATE_ACTIVE"
	TypeRequestPageState      Type = "REQUEST_PAGE_STATE"
	TypeRequestJSONDownload   Type = "REQUEST_JSON_DOWNLOAD"
	TypeRestorePageState      Type = "RESTORE_PAGE_STATE"
	TypeUpdateTranslation     Type = "UPDATE_TRANSLATION"
	TypeHighlightElement      Type = "HIGHLIGHT_ELEMENT"
)

// ErrUnknownType marks a message whose type is not in the alphabet. Receivers
// must treat it as "ignore", never as a failure.
var ErrUnknownType = errors.New("unknown message type")

// Message is implemented by every wire message.
type Message interface {
	MessageType() Type
}

// Poster delivers messages to the other side of the bus. Implementations
// deliver asynchronously and preserve send order per direction; they must not
// call back into the sender synchronously.
type Poster interface {
	Post(msg Message)
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(Message)

// Post implements Poster.
func (f PosterFunc) Post(msg Message) { f(msg) }

// --- engine → host ---

// TranslateRequest asks the host to translate one string.
type TranslateRequest struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BatchItem is one slot of a batch request.
type BatchItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BatchTranslateRequest asks the host to translate many strings. The response
// must carry exactly one result per item, in the same order.
type BatchTranslateRequest struct {
	Type    Type        `json:"type"`
	Payload []BatchItem `json:"payload"`
}

// BatchTranslationComplete reports that a batch was fully applied client-side.
type BatchTranslationComplete struct {
	Type  Type `json:"type"`
	Count int  `json:"count"`
}

// SnapshotEntry is one element's record inside a page snapshot.
type SnapshotEntry struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	ElementTag string `json:"elementTag"`
	IsLocked   bool   `json:"isLocked"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"timestamp"`
}

// PageState is a serializable image of every translated element.
type PageState struct {
	Translations map[string]SnapshotEntry `json:"translations"`
	Title        string                   `json:"title"`
}

// PageStateResponse carries a snapshot back to the host.
type PageStateResponse struct {
	Type    Type      `json:"type"`
	Payload PageState `json:"payload"`
}

// JSONDownloadReady carries the original→translated export bundle.
type JSONDownloadReady struct {
	Type     Type              `json:"type"`
	Payload  map[string]string `json:"payload"`
	Language string            `json:"language"`
}

// LayoutErrorDetected reports translation-induced layout breakage.
type LayoutErrorDetected struct {
	Type      Type   `json:"type"`
	ID        string `json:"id"`
	ErrorType string `json:"errorType"`
	Text      string `json:"text,omitempty"`
}

// ThemeColorDetected reports the page's dominant chrome color, once, on boot.
type ThemeColorDetected struct {
	Type  Type   `json:"type"`
	Color string `json:"color"`
}

// AIActionRequest is the shared shape of the four selection-toolbar actions.
// Type is one of TypeExplainRequest, TypeSummarizeRequest, TypeSimplifyRequest
// or TypeMeaningRequest.
type AIActionRequest struct {
	Type            Type   `json:"type"`
	SelectedText    string `json:"selectedText"`
	SurroundingText string `json:"surroundingText"`
	PageTitle       string `json:"pageTitle"`
}

// --- host → engine ---

// TranslationResult carries a single translation back to the engine.
type TranslationResult struct {
	Type           Type   `json:"type"`
	ID             string `json:"id"`
	TranslatedText string `json:"translatedText"`
	Success        bool   `json:"success"`
}

// BatchResult is one slot of a batch response.
type BatchResult struct {
	ID             string `json:"id"`
	TranslatedText string `json:"translatedText"`
	Success        bool   `json:"success"`
}

// BatchTranslateResponse carries batch results, positionally aligned with the
// request payload.
type BatchTranslateResponse struct {
	Type    Type          `json:"type"`
	Results []BatchResult `json:"results"`
}

// TriggerBatchTranslate asks the engine to translate everything in the viewport.
type TriggerBatchTranslate struct {
	Type Type `json:"type"`
}

// ToggleMarquee enters or exits area-selection mode.
type ToggleMarquee struct {
	Type     Type `json:"type"`
	IsActive bool `json:"isActive"`
}

// LanguageUpdate asks the engine to retranslate every non-locked element.
type LanguageUpdate struct {
	Type Type `json:"type"`
}

// RetranslateActive is the explicit form of LanguageUpdate.
type RetranslateActive struct {
	Type Type `json:"type"`
}

// RequestPageState asks the engine for a snapshot.
type RequestPageState struct {
	Type Type `json:"type"`
}

// RequestJSONDownload asks the engine for the export bundle.
type RequestJSONDownload struct {
	Type     Type   `json:"type"`
	Language string `json:"language"`
}

// RestoreEntry is one element's record inside a restore payload. Legacy
// snapshots store a bare translated string per ID; current ones store an
// object. UnmarshalJSON accepts both.
type RestoreEntry struct {
	Original   string `json:"original,omitempty"`
	Translated string `json:"translated"`
	IsLocked   bool   `json:"isLocked,omitempty"`
}

// UnmarshalJSON tolerates the legacy bare-string form.
func (r *RestoreEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		*r = RestoreEntry{Translated: s}
		return nil
	}
	type plain RestoreEntry
	var p plain
	if err := sonic.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RestoreEntry(p)
	return nil
}

// RestorePageState rehydrates the DOM from a saved snapshot.
type RestorePageState struct {
	Type         Type                    `json:"type"`
	Translations map[string]RestoreEntry `json:"translations"`
}

// UpdateTranslation overwrites one element's translation from the edit panel.
type UpdateTranslation struct {
	Type     Type   `json:"type"`
	ID       string `json:"id"`
	Text     string `json:"text"`
	IsLocked *bool  `json:"isLocked,omitempty"`
}

// HighlightElement scrolls an element into view and flashes it.
type HighlightElement struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

// MessageType implementations.
func (m TranslateRequest) MessageType() Type          { return TypeTranslateRequest }
func (m BatchTranslateRequest) MessageType() Type     { return TypeBatchTranslateRequest }
func (m BatchTranslationComplete) MessageType() Type  { return TypeBatchTranslationComplete }
func (m PageStateResponse) MessageType() Type         { return TypePageStateResponse }
func (m JSONDownloadReady) MessageType() Type         { return TypeJSONDownloadReady }
func (m LayoutErrorDetected) MessageType() Type       { return TypeLayoutErrorDetected }
func (m ThemeColorDetected) MessageType() Type        { return TypeThemeColorDetected }
func (m AIActionRequest) MessageType() Type           { return m.Type }
func (m TranslationResult) MessageType() Type         { return TypeTranslationResult }
func (m BatchTranslateResponse) MessageType() Type    { return TypeBatchTranslateResponse }
func (m TriggerBatchTranslate) MessageType() Type     { return TypeTriggerBatchTranslate }
func (m ToggleMarquee) MessageType() Type             { return TypeToggleMarquee }
func (m LanguageUpdate) MessageType() Type            { return TypeLanguageUpdate }
func (m RetranslateActive) MessageType() Type         { return TypeRetranslateActive }
func (m RequestPageState) MessageType() Type          { return TypeRequestPageState }
func (m RequestJSONDownload) MessageType() Type       { return TypeRequestJSONDownload }
func (m RestorePageState) MessageType() Type          { return TypeRestorePageState }
func (m UpdateTranslation) MessageType() Type         { return TypeUpdateTranslation }
func (m HighlightElement) MessageType() Type          { return TypeHighlightElement }

// Marshal encodes a message for the wire, stamping its type field.
func Marshal(msg Message) ([]byte, error) {
	stamped, err := withType(msg)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(stamped)
}

// withType returns a copy of msg with its Type field populated. All message
// structs expose the field; stamping here keeps constructors terse.
func withType(msg Message) (Message, error) {
	switch m := msg.(type) {
	case TranslateRequest:
		m.Type = m.MessageType()
		return m, nil
	case BatchTranslateRequest:
		m.Type = m.MessageType()
		return m, nil
	case BatchTranslationComplete:
		m.Type = m.MessageType()
		return m, nil
	case PageStateResponse:
		m.Type = m.MessageType()
		return m, nil
	case JSONDownloadReady:
		m.Type = m.MessageType()
		return m, nil
	case LayoutErrorDetected:
		m.Type = m.MessageType()
		return m, nil
	case ThemeColorDetected:
		m.Type = m.MessageType()
		return m, nil
	case AIActionRequest:
		if m.Type == "" {
			return nil, fmt.Errorf("AI action request requires an explicit type")
		}
		return m, nil
	case TranslationResult:
		m.Type = m.MessageType()
		return m, nil
	case BatchTranslateResponse:
		m.Type = m.MessageType()
		return m, nil
	case TriggerBatchTranslate:
		m.Type = m.MessageType()
		return m, nil
	case ToggleMarquee:
		m.Type = m.MessageType()
		return m, nil
	case LanguageUpdate:
		m.Type = m.MessageType()
		return m, nil
	case RetranslateActive:
		m.Type = m.MessageType()
		return m, nil
	case RequestPageState:
		m.Type = m.MessageType()
		return m, nil
	case RequestJSONDownload:
		m.Type = m.MessageType()
		return m, nil
	case RestorePageState:
		m.Type = m.MessageType()
		return m, nil
	case UpdateTranslation:
		m.Type = m.MessageType()
		return m, nil
	case HighlightElement:
		m.Type = m.MessageType()
		return m, nil
	default:
		return nil, fmt.Errorf("unregistered message %T", msg)
	}
}

// Unmarshal decodes a wire message by its type field. Returns ErrUnknownType
// for types outside the alphabet and never panics on malformed input.
func Unmarshal(data []byte) (Message, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := sonic.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	decode := func(dst Message) (Message, error) {
		if err := sonic.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", probe.Type, err)
		}
		return dst, nil
	}

	switch probe.Type {
	case TypeTranslateRequest:
		m, err := decode(&TranslateRequest{})
		return deref(m, err)
	case TypeBatchTranslateRequest:
		m, err := decode(&BatchTranslateRequest{})
		return deref(m, err)
	case TypeBatchTranslationComplete:
		m, err := decode(&BatchTranslationComplete{})
		return deref(m, err)
	case TypePageStateResponse:
		m, err := decode(&PageStateResponse{})
		return deref(m, err)
	case TypeJSONDownloadReady:
		m, err := decode(&JSONDownloadReady{})
		return deref(m, err)
	case TypeLayoutErrorDetected:
		m, err := decode(&LayoutErrorDetected{})
		return deref(m, err)
	case TypeThemeColorDetected:
		m, err := decode(&ThemeColorDetected{})
		return deref(m, err)
	case TypeExplainRequest, TypeSummarizeRequest, TypeSimplifyRequest, TypeMeaningRequest:
		m, err := decode(&AIActionRequest{})
		return deref(m, err)
	case TypeTranslationResult:
		m, err := decode(&TranslationResult{})
		return deref(m, err)
	case TypeBatchTranslateResponse:
		m, err := decode(&BatchTranslateResponse{})
		return deref(m, err)
	case TypeTriggerBatchTranslate:
		m, err := decode(&TriggerBatchTranslate{})
		return deref(m, err)
	case TypeToggleMarquee:
		m, err := decode(&ToggleMarquee{})
		return deref(m, err)
	case TypeLanguageUpdate:
		m, err := decode(&LanguageUpdate{})
		return deref(m, err)
	case TypeRetranslateActive:
		m, err := decode(&RetranslateActive{})
		return deref(m, err)
	case TypeRequestPageState:
		m, err := decode(&RequestPageState{})
		return deref(m, err)
	case TypeRequestJSONDownload:
		m, err := decode(&RequestJSONDownload{})
		return deref(m, err)
	case TypeRestorePageState:
		m, err := decode(&RestorePageState{})
		return deref(m, err)
	case TypeUpdateTranslation:
		m, err := decode(&UpdateTranslation{})
		return deref(m, err)
	case TypeHighlightElement:
		m, err := decode(&HighlightElement{})
		return deref(m, err)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, probe.Type)
	}
}

// deref returns the pointed-to message value so callers can type-switch on
// value types regardless of how the message was produced.
func deref(m Message, err error) (Message, error) {
	if err != nil {
		return nil, err
	}
	switch p := m.(type) {
	case *TranslateRequest:
		return *p, nil
	case *BatchTranslateRequest:
		return *p, nil
	case *BatchTranslationComplete:
		return *p, nil
	case *PageStateResponse:
		return *p, nil
	case *JSONDownloadReady:
		return *p, nil
	case *LayoutErrorDetected:
		return *p, nil
	case *ThemeColorDetected:
		return *p, nil
	case *AIActionRequest:
		return *p, nil
	case *TranslationResult:
		return *p, nil
	case *BatchTranslateResponse:
		return *p, nil
	case *TriggerBatchTranslate:
		return *p, nil
	case *ToggleMarquee:
		return *p, nil
	case *LanguageUpdate:
		return *p, nil
	case *RetranslateActive:
		return *p, nil
	case *RequestPageState:
		return *p, nil
	case *RequestJSONDownload:
		return *p, nil
	case *UpdateTranslation:
		return *p, nil
	case *RestorePageState:
		return *p, nil
	case *HighlightElement:
		return *p, nil
	default:
		return m, nil
	}
}
