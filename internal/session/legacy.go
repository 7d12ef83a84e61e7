package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
)

// Legacy shapes recognised by decodeDocument.
const (
	shapeBareMessages = "bare_message_list"
	shapeSessionsKey  = "sessions_key"
	shapeTopLevelMap  = "top_level_map"
)

// documentKeys are the scalar keys a current document may carry.
var documentKeys = map[string]bool{
	"version":          true,
	"order":            true,
	"selected_model":   true,
	"next_chat_number": true,
}

// decoded is the result of decodeDocument.
type decoded struct {
	doc *model.SessionDocument
	// legacy names the upgraded shape, empty when the data was current.
	legacy string
	// dropped lists document fields that failed to decode and were reset.
	dropped []string
}

// decodeDocument parses data in the current layout or any older one and
// returns a normalized document.
func decodeDocument(data []byte) (*decoded, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &decoded{doc: model.NewSessionDocument()}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var legacy string
	doc := model.NewSessionDocument()

	var convs map[string]json.RawMessage
	switch {
	case raw["conversations"] != nil:
		if err := json.Unmarshal(raw["conversations"], &convs); err != nil {
			return nil, fmt.Errorf("%w: conversations: %v", ErrCorruptDocument, err)
		}
	case raw["sessions"] != nil:
		if err := json.Unmarshal(raw["sessions"], &convs); err != nil {
			return nil, fmt.Errorf("%w: sessions: %v", ErrCorruptDocument, err)
		}
		legacy = shapeSessionsKey
	default:
		convs = make(map[string]json.RawMessage)
		for key, value := range raw {
			if documentKeys[key] {
				continue
			}
			if !isArray(value) {
				return nil, fmt.Errorf("%w: unexpected key %q", ErrCorruptDocument, key)
			}
			convs[key] = value
		}
		if len(convs) > 0 {
			legacy = shapeTopLevelMap
		}
	}

	for name, value := range convs {
		conv, bare, err := decodeConversation(value)
		if err != nil {
			return nil, fmt.Errorf("%w: conversation %q: %v", ErrCorruptDocument, name, err)
		}
		if bare && legacy == "" {
			legacy = shapeBareMessages
		}
		doc.Conversations[name] = conv
	}

	var dropped []string
	if !decodeField(raw, "selected_model", &doc.SelectedModel) {
		doc.SelectedModel = ""
		dropped = append(dropped, "selected_model")
	}
	if !decodeField(raw, "order", &doc.Order) {
		doc.Order = []string{}
		dropped = append(dropped, "order")
	}
	if !decodeField(raw, "next_chat_number", &doc.NextChatNumber) {
		doc.NextChatNumber = 1
		dropped = append(dropped, "next_chat_number")
	}

	normalize(doc)
	return &decoded{doc: doc, legacy: legacy, dropped: dropped}, nil
}

// decodeField unmarshals raw[key] into v. An absent key counts as success.
func decodeField(raw map[string]json.RawMessage, key string, v interface{}) bool {
	value, ok := raw[key]
	if !ok || isNull(value) {
		return true
	}
	return json.Unmarshal(value, v) == nil
}

// decodeConversation accepts either a structured conversation or a bare list
// of messages. bare reports the latter.
func decodeConversation(value json.RawMessage) (conv *model.Conversation, bare bool, err error) {
	conv = &model.Conversation{}
	switch {
	case isNull(value):
	case isArray(value):
		bare = true
		if err := json.Unmarshal(value, &conv.Messages); err != nil {
			return nil, false, err
		}
	default:
		if err := json.Unmarshal(value, conv); err != nil {
			return nil, false, err
		}
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	if conv.SelectedModel == "" {
		conv.SelectedModel = model.BaselineModel
	}
	return conv, bare, nil
}

// normalize repairs derived fields so the document upholds its invariants.
func normalize(doc *model.SessionDocument) {
	seen := make(map[string]bool, len(doc.Conversations))
	order := make([]string, 0, len(doc.Conversations))
	for _, name := range doc.Order {
		if _, ok := doc.Conversations[name]; ok && !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	var missing []string
	for name := range doc.Conversations {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	doc.Order = append(order, missing...)

	if doc.NextChatNumber < len(doc.Conversations)+1 {
		doc.NextChatNumber = len(doc.Conversations) + 1
	}
	doc.Version = model.DocumentVersion
}

func isArray(value json.RawMessage) bool {
	trimmed := bytes.TrimSpace(value)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}
